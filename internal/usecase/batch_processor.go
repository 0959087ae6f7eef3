package usecase

import (
	"log/slog"
	"time"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// Task is one unit of work for the BatchProcessor (spec §4.9), pre-materialized
// by the operator (e.g. read from a file) rather than discovered by the
// scheduler.
type Task struct {
	Email      string `validate:"required,email"`
	ProfileID  string `validate:"omitempty"`
	RetryCount int
}

// BatchConfig tunes one BatchProcessor.Run invocation.
type BatchConfig struct {
	Concurrency     int
	BatchSize       int
	RetryEnabled    bool
	InterTaskDelay  time.Duration
	InterBatchDelay time.Duration
}

// TaskOutcome is one task's result, returned to the caller (and to the
// interactive progress dashboard via the Events channel).
type TaskOutcome struct {
	Task    Task
	Outcome domain.Outcome
	Result  domain.TransitionResult
	Err     error
}

// BatchEvent is one lifecycle event emitted on the Events channel (spec
// §4.9 point 6), replacing the teacher's string-keyed event bus with a
// typed struct per Design Note #9.
type BatchEvent struct {
	Kind  BatchEventKind
	Task  *Task
	Batch int
	Total int
	Done  int
}

// BatchEventKind enumerates the typed lifecycle events a BatchProcessor run
// emits.
type BatchEventKind string

const (
	EventBatchStart   BatchEventKind = "batch:start"
	EventTaskComplete BatchEventKind = "task:complete"
	EventTaskFailed   BatchEventKind = "task:failed"
	EventTaskSkipped  BatchEventKind = "task:skipped"
	EventProgress     BatchEventKind = "progress"
)

// BatchProcessor drives a pre-materialized task list through the same
// executor/classifier pair the scheduled loop uses, for interactive
// operator-triggered pause/resume runs (component I).
type BatchProcessor struct {
	executor domain.TransitionExecutor
	profiles *ProfileResolver
	kind     domain.TransitionKind
}

// NewBatchProcessor constructs a BatchProcessor for a fixed transition
// kind: one CLI invocation always runs either pause or resume, never both.
func NewBatchProcessor(executor domain.TransitionExecutor, profiles *ProfileResolver, kind domain.TransitionKind) *BatchProcessor {
	return &BatchProcessor{executor: executor, profiles: profiles, kind: kind}
}

// Run executes tasks per spec §4.9: batches of cfg.BatchSize, up to
// cfg.Concurrency tasks in flight per batch, an explicit interTaskDelay
// only under cfg.Concurrency == 1 (never under true parallelism — kept
// verbatim per the spec's explicit instruction not to "fix" this), an
// interBatchDelay between batches, and — if cfg.RetryEnabled — exactly one
// additional pass over the failures with retryCap forced to 0 to prevent
// recursive retry passes.
func (b *BatchProcessor) Run(ctx domain.Context, tasks []Task, cfg BatchConfig, events chan<- BatchEvent) []TaskOutcome {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = len(tasks)
		if cfg.BatchSize < 1 {
			cfg.BatchSize = 1
		}
	}

	results := b.runPass(ctx, tasks, cfg, events)

	if cfg.RetryEnabled {
		var failed []Task
		for _, r := range results {
			if r.Outcome == domain.OutcomeRetryableFailure || r.Outcome == domain.OutcomePermanentFailure {
				t := r.Task
				t.RetryCount = 0 // forced retryCap := 0 for the single retry pass
				failed = append(failed, t)
			}
		}
		if len(failed) > 0 {
			retryResults := b.runPass(ctx, failed, cfg, events)
			results = mergeRetryResults(results, retryResults)
		}
	}
	return results
}

func mergeRetryResults(original, retried []TaskOutcome) []TaskOutcome {
	byEmail := make(map[string]TaskOutcome, len(retried))
	for _, r := range retried {
		byEmail[r.Task.Email] = r
	}
	merged := make([]TaskOutcome, 0, len(original))
	for _, o := range original {
		if r, ok := byEmail[o.Task.Email]; ok {
			merged = append(merged, r)
			continue
		}
		merged = append(merged, o)
	}
	return merged
}

func (b *BatchProcessor) runPass(ctx domain.Context, tasks []Task, cfg BatchConfig, events chan<- BatchEvent) []TaskOutcome {
	results := make([]TaskOutcome, 0, len(tasks))
	batches := chunk(tasks, cfg.BatchSize)

	for bi, batch := range batches {
		emit(events, BatchEvent{Kind: EventBatchStart, Batch: bi, Total: len(batch)})
		batchResults := b.runBatch(ctx, batch, cfg, events)
		results = append(results, batchResults...)

		if bi < len(batches)-1 && cfg.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(cfg.InterBatchDelay):
			}
		}
	}
	return results
}

func (b *BatchProcessor) runBatch(ctx domain.Context, batch []Task, cfg BatchConfig, events chan<- BatchEvent) []TaskOutcome {
	results := make([]TaskOutcome, len(batch))

	if cfg.Concurrency == 1 {
		for i, task := range batch {
			results[i] = b.runTask(ctx, task, events)
			if i < len(batch)-1 && cfg.InterTaskDelay > 0 {
				select {
				case <-ctx.Done():
					return results[:i+1]
				case <-time.After(cfg.InterTaskDelay):
				}
			}
		}
		return results
	}

	sem := make(chan struct{}, cfg.Concurrency)
	done := make(chan struct{})
	for i := range batch {
		i := i
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- struct{}{} }()
			results[i] = b.runTask(ctx, batch[i], events)
		}()
	}
	for range batch {
		<-done
	}
	return results
}

func (b *BatchProcessor) runTask(ctx domain.Context, task Task, events chan<- BatchEvent) TaskOutcome {
	profileID := &task.ProfileID
	if task.ProfileID == "" {
		resolved, err := b.profiles.Resolve(ctx, task.Email)
		if err != nil {
			slog.Warn("batch: profile resolve failed", slog.String("email", task.Email), slog.Any("error", err))
		}
		profileID = resolved
	}

	result, err := b.executor.Execute(ctx, profileID, domain.AccountData{Email: task.Email}, b.kind, domain.ExecuteOptions{
		RetryCount: task.RetryCount,
	})
	if err != nil {
		emit(events, BatchEvent{Kind: EventTaskFailed, Task: &task})
		return TaskOutcome{Task: task, Outcome: domain.OutcomeRetryableFailure, Err: err}
	}

	outcome := domain.Classify(result, false)
	if outcome == domain.OutcomeSuccessAlready {
		emit(events, BatchEvent{Kind: EventTaskSkipped, Task: &task})
		return TaskOutcome{Task: task, Outcome: outcome, Result: result}
	}
	if outcome == domain.OutcomeRetryableFailure || outcome == domain.OutcomePermanentFailure || outcome == domain.OutcomeImageCaptchaRetry {
		emit(events, BatchEvent{Kind: EventTaskFailed, Task: &task})
	} else {
		emit(events, BatchEvent{Kind: EventTaskComplete, Task: &task})
	}
	return TaskOutcome{Task: task, Outcome: outcome, Result: result}
}

func emit(events chan<- BatchEvent, e BatchEvent) {
	if events == nil {
		return
	}
	select {
	case events <- e:
	default:
		// A slow/absent consumer must never stall batch processing; events
		// are a best-effort progress feed, not a delivery guarantee.
	}
}

func chunk(tasks []Task, size int) [][]Task {
	if size < 1 {
		size = len(tasks)
	}
	var out [][]Task
	for i := 0; i < len(tasks); i += size {
		end := i + size
		if end > len(tasks) {
			end = len(tasks)
		}
		out = append(out, tasks[i:end])
	}
	return out
}
