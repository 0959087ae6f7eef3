package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/subscription-fleet/internal/app"
	"github.com/fairyhunter13/subscription-fleet/internal/config"
	"github.com/fairyhunter13/subscription-fleet/internal/domain"
	"github.com/fairyhunter13/subscription-fleet/internal/usecase"
)

func newWorkerCmd() *cobra.Command {
	var (
		continuous  bool
		interval    int
		resumeLead  int
		pauseLag    int
		retryCap    int
		windowMode  string
		debugMode   bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduled pause/resume worker loop",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Start the worker loop (spec §4.8)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			server := &http.Server{Addr: cfg.AdminAddr, Handler: a.Router}
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("admin http surface listening", slog.String("addr", cfg.AdminAddr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			runCtx, cancelRun := context.WithCancel(cmd.Context())
			dereg := a.Registry.Register(&usecase.ScheduledTask{
				ID:        "worker-run",
				Label:     "worker run",
				StartedAt: time.Now(),
				Cancel:    cancelRun,
			})
			defer dereg()

			opts := usecase.RunOptions{
				Continuous: continuous,
				WindowMode: windowMode,
				DebugMode:  debugMode,
				Override: domain.SchedulingConfig{
					ResumeLeadMinutes:    resumeLead,
					PauseLagMinutes:      pauseLag,
					CheckIntervalSeconds: interval,
					RetryCap:             retryCap,
				},
			}

			runErr := make(chan error, 1)
			go func() { runErr <- a.Worker.Run(runCtx, opts) }()

			select {
			case err := <-runErr:
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
				return err
			case err := <-serverErr:
				cancelRun()
				<-runErr
				return err
			}
		},
	}

	run.Flags().BoolVar(&continuous, "continuous", true, "tick forever instead of running a single cycle")
	run.Flags().IntVar(&interval, "interval", 0, "override CheckIntervalSeconds (0 = use SharedConfig)")
	run.Flags().IntVar(&resumeLead, "resume-lead", 0, "override ResumeLeadMinutes (0 = use SharedConfig)")
	run.Flags().IntVar(&pauseLag, "pause-lag", 0, "override PauseLagMinutes (0 = use SharedConfig)")
	run.Flags().IntVar(&retryCap, "retry-cap", 0, "override RetryCap (0 = use SharedConfig)")
	run.Flags().StringVar(&windowMode, "window", usecase.WindowBackground, "browser window mode: focus|background")
	run.Flags().BoolVar(&debugMode, "debug", false, "pass DebugMode through to the executor")

	cmd.AddCommand(run)
	return cmd
}
