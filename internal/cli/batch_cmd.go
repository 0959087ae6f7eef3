package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/subscription-fleet/internal/app"
	"github.com/fairyhunter13/subscription-fleet/internal/config"
	"github.com/fairyhunter13/subscription-fleet/internal/domain"
	"github.com/fairyhunter13/subscription-fleet/internal/usecase"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run an interactive operator-triggered pause/resume batch (spec §4.9)",
	}

	cmd.AddCommand(newBatchRunCmd("pause", domain.KindPause))
	cmd.AddCommand(newBatchRunCmd("resume", domain.KindResume))
	return cmd
}

func newBatchRunCmd(use string, kind domain.TransitionKind) *cobra.Command {
	var (
		tasksPath       string
		concurrency     int
		batchSize       int
		retry           bool
		interTaskDelay  time.Duration
		interBatchDelay time.Duration
	)

	c := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Run a %s batch from a tasks file", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tasksPath == "" {
				return fmt.Errorf("op=cli.batch.%s: %w: --tasks is required", use, domain.ErrInvalidArgument)
			}

			tasks, err := usecase.LoadTasksFile(tasksPath)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()

			processor := a.NewBatchProcessor(kind)
			batchCfg := usecase.BatchConfig{
				Concurrency:     concurrency,
				BatchSize:       batchSize,
				RetryEnabled:    retry,
				InterTaskDelay:  interTaskDelay,
				InterBatchDelay: interBatchDelay,
			}

			events := make(chan usecase.BatchEvent, 16)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range events {
					logBatchEvent(ev)
				}
			}()

			outcomes := processor.Run(cmd.Context(), tasks, batchCfg, events)
			close(events)
			<-done

			return summarizeOutcomes(use, outcomes)
		},
	}

	c.Flags().StringVar(&tasksPath, "tasks", "", "path to a JSON file of tasks (required)")
	c.Flags().IntVar(&concurrency, "concurrency", 1, "bounded worker concurrency")
	c.Flags().IntVar(&batchSize, "batch-size", 10, "tasks per batch")
	c.Flags().BoolVar(&retry, "retry", true, "run one extra retry pass over failures")
	c.Flags().DurationVar(&interTaskDelay, "inter-task-delay", 0, "delay between tasks (only applied at --concurrency=1)")
	c.Flags().DurationVar(&interBatchDelay, "inter-batch-delay", 0, "delay between batches")

	return c
}

func logBatchEvent(ev usecase.BatchEvent) {
	switch ev.Kind {
	case usecase.EventBatchStart:
		slog.Info("batch start", slog.Int("batch", ev.Batch), slog.Int("total", ev.Total))
	case usecase.EventTaskComplete:
		slog.Info("task complete", slog.String("email", ev.Task.Email), slog.Int("done", ev.Done), slog.Int("total", ev.Total))
	case usecase.EventTaskFailed:
		slog.Warn("task failed", slog.String("email", ev.Task.Email), slog.Int("done", ev.Done), slog.Int("total", ev.Total))
	case usecase.EventTaskSkipped:
		slog.Info("task skipped", slog.String("email", ev.Task.Email), slog.Int("done", ev.Done), slog.Int("total", ev.Total))
	case usecase.EventProgress:
		slog.Info("progress", slog.Int("done", ev.Done), slog.Int("total", ev.Total))
	}
}

func summarizeOutcomes(use string, outcomes []usecase.TaskOutcome) error {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil || o.Outcome == domain.OutcomePermanentFailure || o.Outcome == domain.OutcomeRetryableFailure {
			failed++
		}
	}
	slog.Info("batch finished", slog.String("kind", use), slog.Int("total", len(outcomes)), slog.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("op=cli.batch.%s: %d/%d tasks did not reach a success outcome", use, failed, len(outcomes))
	}
	return nil
}
