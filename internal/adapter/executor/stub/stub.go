// Package stub provides a deterministic, in-memory domain.TransitionExecutor
// for local development and tests, standing in for the real browser
// automation collaborator (spec §1 Non-goals: executor internals are out of
// scope for the core).
package stub

import (
	"sync"
	"time"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// Executor cycles through a fixed, caller-supplied sequence of results per
// account email, repeating the final entry once the sequence is exhausted.
// With no script configured for an email it always reports success.
type Executor struct {
	mu       sync.Mutex
	scripts  map[string][]domain.TransitionResult
	callIdx  map[string]int
	delay    time.Duration
}

// New constructs an Executor. delay simulates the executor's RPC latency.
func New(delay time.Duration) *Executor {
	return &Executor{
		scripts: make(map[string][]domain.TransitionResult),
		callIdx: make(map[string]int),
		delay:   delay,
	}
}

// Script registers the sequence of results Execute returns for email, one
// per call, holding on the last entry once exhausted.
func (e *Executor) Script(email string, results ...domain.TransitionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[email] = results
	e.callIdx[email] = 0
}

// Execute implements domain.TransitionExecutor.
func (e *Executor) Execute(ctx domain.Context, profileID *string, account domain.AccountData, kind domain.TransitionKind, opts domain.ExecuteOptions) (domain.TransitionResult, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return domain.TransitionResult{}, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	script := e.scripts[account.Email]
	if len(script) == 0 {
		return defaultSuccess(kind, profileID), nil
	}

	idx := e.callIdx[account.Email]
	if idx >= len(script) {
		idx = len(script) - 1
	} else {
		e.callIdx[account.Email] = idx + 1
	}
	result := script[idx]
	result.Kind = kind
	if result.ActualProfileIDUsed == "" && profileID != nil {
		result.ActualProfileIDUsed = *profileID
	}
	return result, nil
}

func defaultSuccess(kind domain.TransitionKind, profileID *string) domain.TransitionResult {
	date := domain.FormatLocalDate(time.Now().AddDate(0, 1, 0))
	id := ""
	if profileID != nil {
		id = *profileID
	}
	return domain.TransitionResult{
		Success:             true,
		Kind:                kind,
		Status:              domain.TransitionSuccess,
		NextBillingDate:     &date,
		DetectedLanguage:    "en",
		ActualProfileIDUsed: id,
	}
}
