package usecase

import (
	"testing"
	"time"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

func TestBatchProcessorRunsAllTasks(t *testing.T) {
	executor := &scriptedExecutor{results: []domain.TransitionResult{
		{Success: true, Status: domain.TransitionSuccess},
	}}
	gw := newMemGateway()
	bp := NewBatchProcessor(executor, NewProfileResolver(gw, nil), domain.KindResume)

	tasks := []Task{{Email: "a@example.com"}, {Email: "b@example.com"}, {Email: "c@example.com"}}
	results := bp.Run(t.Context(), tasks, BatchConfig{Concurrency: 2, BatchSize: 2}, nil)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		if r.Outcome != domain.OutcomeSuccessNew {
			t.Errorf("email=%s outcome=%v, want success-new", r.Task.Email, r.Outcome)
		}
	}
}

func TestBatchProcessorAlreadyInTargetStateIsSkipped(t *testing.T) {
	executor := &scriptedExecutor{results: []domain.TransitionResult{
		{Success: true, Status: domain.TransitionAlreadyInTargetState},
	}}
	gw := newMemGateway()
	bp := NewBatchProcessor(executor, NewProfileResolver(gw, nil), domain.KindResume)

	results := bp.Run(t.Context(), []Task{{Email: "a@example.com"}}, BatchConfig{Concurrency: 1, BatchSize: 1}, nil)
	if results[0].Outcome != domain.OutcomeSuccessAlready {
		t.Errorf("Outcome = %v, want success-already", results[0].Outcome)
	}
}

func TestBatchProcessorRetryPassRunsOnce(t *testing.T) {
	executor := &scriptedExecutor{results: []domain.TransitionResult{
		{Status: domain.TransitionGenericFailure},
		{Success: true, Status: domain.TransitionSuccess},
	}}
	gw := newMemGateway()
	bp := NewBatchProcessor(executor, NewProfileResolver(gw, nil), domain.KindResume)

	results := bp.Run(t.Context(), []Task{{Email: "a@example.com"}}, BatchConfig{Concurrency: 1, BatchSize: 1, RetryEnabled: true}, nil)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Outcome != domain.OutcomeSuccessNew {
		t.Errorf("Outcome after retry pass = %v, want success-new", results[0].Outcome)
	}
	if executor.idx != 2 {
		t.Errorf("executor called %d times, want exactly 2 (one initial + one retry)", executor.idx)
	}
}

func TestBatchProcessorInterTaskDelayOnlyUnderConcurrencyOne(t *testing.T) {
	executor := &scriptedExecutor{results: []domain.TransitionResult{
		{Success: true, Status: domain.TransitionSuccess},
	}}
	gw := newMemGateway()
	bp := NewBatchProcessor(executor, NewProfileResolver(gw, nil), domain.KindResume)

	tasks := []Task{{Email: "a@example.com"}, {Email: "b@example.com"}}
	start := time.Now()
	bp.Run(t.Context(), tasks, BatchConfig{Concurrency: 1, BatchSize: 2, InterTaskDelay: 50 * time.Millisecond}, nil)
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 50ms from the single interTaskDelay", elapsed)
	}
}
