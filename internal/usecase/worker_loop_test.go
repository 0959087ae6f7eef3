package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

type memGateway struct {
	mu    sync.Mutex
	rows  map[string]*domain.Row
	locks map[int]string
}

func newMemGateway(rows ...domain.Row) *memGateway {
	g := &memGateway{rows: map[string]*domain.Row{}, locks: map[int]string{}}
	for i := range rows {
		r := rows[i]
		g.rows[r.Email] = &r
	}
	return g
}

func (g *memGateway) ListAllRows(ctx domain.Context) ([]domain.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Row, 0, len(g.rows))
	for _, r := range g.rows {
		out = append(out, *r)
	}
	return out, nil
}

func (g *memGateway) RefetchByEmail(ctx domain.Context, email string) (domain.Row, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rows[email]
	if !ok {
		return domain.Row{}, false, nil
	}
	return *r, true, nil
}

func (g *memGateway) ReadLock(ctx domain.Context, row domain.Row) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locks[row.RowIndex], nil
}

func (g *memGateway) WriteLock(ctx domain.Context, row domain.Row, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locks[row.RowIndex] = token
	return nil
}

func (g *memGateway) RecordSuccess(ctx domain.Context, row domain.Row, out domain.SuccessOutcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.rows[row.Email]
	r.Status = out.NewStatus
	r.ResultHistory = out.ResultLine
	r.RetryCount = 0
	return nil
}

func (g *memGateway) RecordRetryableFailure(ctx domain.Context, row domain.Row, out domain.FailureOutcome) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.rows[row.Email]
	r.RetryCount++
	r.ResultHistory = out.ResultLine
	return r.RetryCount, nil
}

func (g *memGateway) RecordPermanentFailure(ctx domain.Context, row domain.Row, out domain.PermanentFailureOutcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.rows[row.Email]
	r.Status = out.NewStatus
	r.ResultHistory = out.ResultLine
	return nil
}

func (g *memGateway) AppendHistory(ctx domain.Context, row domain.Row, resultLine string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows[row.Email].ResultHistory = resultLine
	return nil
}

func (g *memGateway) SetPendingCheckAt(ctx domain.Context, row domain.Row, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows[row.Email].PendingCheckAt = &at
	return nil
}

func (g *memGateway) SetPendingRetryAt(ctx domain.Context, row domain.Row, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows[row.Email].PendingRetryAt = &at
	return nil
}

func (g *memGateway) ClearPendingColumns(ctx domain.Context, row domain.Row) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.rows[row.Email]
	r.PendingCheckAt = nil
	r.PendingRetryAt = nil
	return nil
}

func (g *memGateway) ResolveProfileID(ctx domain.Context, email string) (string, bool, error) {
	return "", false, nil
}

type fakeLocks struct{ id string }

func (f *fakeLocks) WorkerID() string { return f.id }
func (f *fakeLocks) Acquire(ctx domain.Context, row domain.Row) (bool, error) { return true, nil }
func (f *fakeLocks) Release(ctx domain.Context, row domain.Row) error        { return nil }
func (f *fakeLocks) FilterUnlocked(rows []domain.Row, now time.Time) []domain.Row {
	return rows
}

type fixedShared struct{ cfg domain.SchedulingConfig }

func (f fixedShared) Sync(ctx domain.Context)                  {}
func (f fixedShared) Snapshot() domain.SchedulingConfig { return f.cfg }

type scriptedExecutor struct {
	results []domain.TransitionResult
	idx     int
}

func (s *scriptedExecutor) Execute(ctx domain.Context, profileID *string, account domain.AccountData, kind domain.TransitionKind, opts domain.ExecuteOptions) (domain.TransitionResult, error) {
	if s.idx >= len(s.results) {
		return s.results[len(s.results)-1], nil
	}
	r := s.results[s.idx]
	s.idx++
	return r, nil
}

func testConfig() domain.SchedulingConfig {
	return domain.SchedulingConfig{
		ResumeLeadMinutes: 10, PauseLagMinutes: 10, CheckIntervalSeconds: 1,
		RetryCap: 3, PendingRetryMinutes: 30, PendingHorizonHours: 24,
	}
}

// configurableLimiter is a test double for the narrow rateLimiterConfigurer
// capability; it never actually throttles (Allow always allows), so tests
// can assert RunCycle pushed the synced rate cap without a live Redis.
type configurableLimiter struct {
	key       string
	perMinute int
}

func (l *configurableLimiter) Allow(ctx domain.Context, key string, cost int64) (bool, time.Duration, error) {
	return true, 0, nil
}

func (l *configurableLimiter) SetRatePerMinute(key string, perMinute int) {
	l.key = key
	l.perMinute = perMinute
}

func TestRunCyclePushesSyncedRateCapToConfigurableLimiter(t *testing.T) {
	row := domain.Row{Email: "a@example.com", Status: domain.StatusPaused}
	gw := newMemGateway(row)
	executor := &scriptedExecutor{results: []domain.TransitionResult{{Success: true, Status: domain.TransitionSuccess}}}
	limiter := &configurableLimiter{}
	cfg := testConfig()
	cfg.TransitionRateLimitPerMinute = 45

	loop := NewWorkerLoop(gw, &fakeLocks{id: "w1"}, NewProfileResolver(gw, nil), executor, fixedShared{cfg: cfg}, nil, limiter)
	loop.RunCycle(t.Context(), RunOptions{})

	if limiter.key != "transition" {
		t.Fatalf("expected limiter to be configured for key %q, got %q", "transition", limiter.key)
	}
	if limiter.perMinute != 45 {
		t.Fatalf("perMinute = %d, want 45", limiter.perMinute)
	}
}

func TestRunCycleResumesDueRow(t *testing.T) {
	now := time.Now()
	row := domain.Row{
		Email:         "a@example.com",
		Status:        domain.StatusPaused,
		ScheduledTime: now.Format("15:04"),
		RowIndex:      2,
	}
	gw := newMemGateway(row)
	executor := &scriptedExecutor{results: []domain.TransitionResult{{Success: true, Status: domain.TransitionSuccess}}}
	loop := NewWorkerLoop(gw, &fakeLocks{id: "w1"}, NewProfileResolver(gw, nil), executor, fixedShared{cfg: testConfig()}, nil, nil)

	stats := loop.RunCycle(t.Context(), RunOptions{})
	if stats.SuccessNew != 1 {
		t.Fatalf("SuccessNew = %d, want 1", stats.SuccessNew)
	}
	updated, _, _ := gw.RefetchByEmail(t.Context(), row.Email)
	if updated.Status != domain.StatusBilling {
		t.Errorf("Status = %v, want Billing", updated.Status)
	}
}

func TestRunCycleQuarantinesOnLoop(t *testing.T) {
	now := time.Now()
	history := "" +
		domain.FormatHistoryLine(domain.KindResume, "en", domain.HistoryNewSuccess, now, "w0", "") + "\n" +
		domain.FormatHistoryLine(domain.KindResume, "en", domain.HistoryNewSuccess, now, "w0", "") + "\n" +
		domain.FormatHistoryLine(domain.KindResume, "en", domain.HistoryNewSuccess, now, "w0", "")
	row := domain.Row{
		Email:         "loopy@example.com",
		Status:        domain.StatusPaused,
		ScheduledTime: now.Format("15:04"),
		ResultHistory: history,
		RowIndex:      3,
	}
	gw := newMemGateway(row)
	executor := &scriptedExecutor{results: []domain.TransitionResult{{Success: true, Status: domain.TransitionSuccess}}}
	loop := NewWorkerLoop(gw, &fakeLocks{id: "w1"}, NewProfileResolver(gw, nil), executor, fixedShared{cfg: testConfig()}, nil, nil)

	stats := loop.RunCycle(t.Context(), RunOptions{})
	if stats.LoopQuarantined != 1 {
		t.Fatalf("LoopQuarantined = %d, want 1", stats.LoopQuarantined)
	}
	updated, _, _ := gw.RefetchByEmail(t.Context(), row.Email)
	if updated.Status != domain.StatusManualCheckLoop {
		t.Errorf("Status = %v, want ManualCheckLoop", updated.Status)
	}
}

func TestRunCycleImageCaptchaInCycleRetry(t *testing.T) {
	now := time.Now()
	row := domain.Row{
		Email:         "captcha@example.com",
		Status:        domain.StatusBilling,
		ScheduledTime: now.Add(-15 * time.Minute).Format("15:04"),
		RowIndex:      4,
	}
	gw := newMemGateway(row)
	executor := &scriptedExecutor{results: []domain.TransitionResult{
		{Status: domain.TransitionImageCaptchaTransient},
		{Success: true, Status: domain.TransitionSuccess},
	}}
	loop := NewWorkerLoop(gw, &fakeLocks{id: "w1"}, NewProfileResolver(gw, nil), executor, fixedShared{cfg: testConfig()}, nil, nil)

	stats := loop.RunCycle(t.Context(), RunOptions{})
	if stats.SuccessNew != 1 {
		t.Fatalf("SuccessNew = %d, want 1 after in-cycle captcha retry", stats.SuccessNew)
	}
	if executor.idx != 2 {
		t.Fatalf("executor called %d times, want 2", executor.idx)
	}
}

func TestRunCyclePaymentPendingFirstObservationLeavesRetryCount(t *testing.T) {
	now := time.Now()
	row := domain.Row{
		Email:         "pending@example.com",
		Status:        domain.StatusBilling,
		ScheduledTime: now.Add(-15 * time.Minute).Format("15:04"),
		RowIndex:      5,
	}
	gw := newMemGateway(row)
	executor := &scriptedExecutor{results: []domain.TransitionResult{{Status: domain.TransitionPaymentPending}}}
	loop := NewWorkerLoop(gw, &fakeLocks{id: "w1"}, NewProfileResolver(gw, nil), executor, fixedShared{cfg: testConfig()}, nil, nil)

	stats := loop.RunCycle(t.Context(), RunOptions{})
	if stats.PaymentPending != 1 {
		t.Fatalf("PaymentPending = %d, want 1", stats.PaymentPending)
	}
	updated, _, _ := gw.RefetchByEmail(t.Context(), row.Email)
	if updated.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 (first observation must not count as a retryable failure)", updated.RetryCount)
	}
	if updated.PendingCheckAt == nil || updated.PendingRetryAt == nil {
		t.Fatal("expected pending timestamps to be set")
	}
}
