package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// windowMode values accepted by --window.
const (
	WindowFocus      = "focus"
	WindowBackground = "background"
)

// captchaRetryDelay is the fixed pause between the first ImageCaptchaTransient
// result and the in-cycle re-invocation (spec §4.6).
const captchaRetryDelay = 3 * time.Second

// RunOptions carries the per-invocation overrides WorkerLoop.Run accepts,
// which take precedence over whatever SharedConfig currently holds
// (spec §4.11).
type RunOptions struct {
	Continuous bool
	Override   domain.SchedulingConfig
	WindowMode string
	DebugMode  bool
}

// WorkerLoop is the scheduler (component H): one cooperative tick loop per
// worker process, selecting due rows and driving them through acquire →
// resolve → execute → classify → record.
type WorkerLoop struct {
	gateway   domain.SheetGateway
	locks     domain.LockService
	profiles  *ProfileResolver
	executor  domain.TransitionExecutor
	shared    sharedConfigSource
	notifier  domain.Notifier
	limiter   domain.RateLimiter
	loopCheck domain.LoopDetector
	audit     AuditRecorder

	stats   domain.CycleStats
	cycleID string
}

// sharedConfigSource is the narrow surface WorkerLoop needs from
// config.SharedConfig, kept as an interface so tests can substitute a fixed
// snapshot without constructing a full SharedConfig.
type sharedConfigSource interface {
	Sync(ctx domain.Context)
	Snapshot() domain.SchedulingConfig
}

// rateLimiterConfigurer is the narrow optional capability a RateLimiter may
// support: letting the live-synced config tab adjust the transition rate
// cap without a worker restart. domain.RateLimiter itself stays narrow
// (just Allow) so a disabled/nil/fixed-rate limiter still satisfies it.
type rateLimiterConfigurer interface {
	SetRatePerMinute(key string, perMinute int)
}

// AuditRecorder is the optional, non-authoritative audit hook (SPEC_FULL
// §12 audit sink): every classified transition is recorded for
// after-the-fact investigation, never for scheduling decisions — the
// spreadsheet lock column remains the sole source of truth (invariant 1).
type AuditRecorder interface {
	Record(ctx domain.Context, cycleID, workerID, email string, kind domain.TransitionKind, outcome domain.Outcome, result domain.TransitionResult)
}

// NewWorkerLoop wires the scheduler's dependencies. limiter may be nil to
// disable the additive rate-limiting concern entirely.
func NewWorkerLoop(gateway domain.SheetGateway, locks domain.LockService, profiles *ProfileResolver, executor domain.TransitionExecutor, shared sharedConfigSource, notifier domain.Notifier, limiter domain.RateLimiter) *WorkerLoop {
	return &WorkerLoop{
		gateway:  gateway,
		locks:    locks,
		profiles: profiles,
		executor: executor,
		shared:   shared,
		notifier: notifier,
		limiter:  limiter,
	}
}

// WithAudit attaches an optional audit sink and returns the loop for
// chaining at construction time. A nil audit leaves auditing disabled.
func (w *WorkerLoop) WithAudit(audit AuditRecorder) *WorkerLoop {
	w.audit = audit
	return w
}

// Run executes either a single cycle or ticks until ctx is cancelled,
// depending on opts.Continuous. Cancellation is observed only at loop
// boundaries: an in-flight processOne always runs to completion (spec §5
// cancellation semantics, §4.8 graceful shutdown).
func (w *WorkerLoop) Run(ctx domain.Context, opts RunOptions) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		w.RunCycle(ctx, opts)

		if !opts.Continuous {
			return nil
		}

		cfg := w.shared.Snapshot()
		applyOverride(&cfg, opts.Override)
		interval := time.Duration(cfg.CheckIntervalSeconds) * time.Second
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle runs exactly one scheduler tick and returns its stats.
func (w *WorkerLoop) RunCycle(ctx domain.Context, opts RunOptions) domain.CycleStats {
	w.stats = domain.CycleStats{}
	w.cycleID = w.locks.WorkerID() + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	w.shared.Sync(ctx)
	cfg := w.shared.Snapshot()
	applyOverride(&cfg, opts.Override)

	if cfg.TransitionRateLimitPerMinute > 0 {
		if configurer, ok := w.limiter.(rateLimiterConfigurer); ok {
			configurer.SetRatePerMinute("transition", cfg.TransitionRateLimitPerMinute)
		}
	}

	rows, err := w.gateway.ListAllRows(ctx)
	if err != nil {
		slog.Error("cycle: list rows failed", slog.Any("error", err))
		return w.stats.Snapshot()
	}
	w.stats.RowsSeen = len(rows)
	if len(rows) == 0 {
		slog.Info("cycle: idle, no rows")
		return w.stats.Snapshot()
	}

	unlocked := w.locks.FilterUnlocked(rows, time.Now())
	partition := domain.PartitionDue(time.Now(), unlocked, cfg)
	w.stats.ResumeSelected = len(partition.ResumeDue)
	w.stats.PauseSelected = len(partition.PauseDue)
	w.stats.PendingSelected = len(partition.PendingDue)

	// Resume before pause (spec §4.8 detail floor: billing-resume is more
	// time-critical than a post-billing pause).
	lanes := []struct {
		kind domain.TransitionKind
		rows []domain.Row
	}{
		{domain.KindResume, partition.ResumeDue},
		{domain.KindPause, partition.PauseDue},
		{domain.KindPause, partition.PendingDue},
	}

	for _, lane := range lanes {
		for _, row := range lane.rows {
			if err := ctx.Err(); err != nil {
				return w.stats.Snapshot()
			}
			// The row's own calls ignore cancellation so a started row
			// finishes its sheet write and releases its lock.
			w.selectAndProcess(context.WithoutCancel(ctx), row, lane.kind, opts)
		}
	}
	return w.stats.Snapshot()
}

func applyOverride(cfg *domain.SchedulingConfig, override domain.SchedulingConfig) {
	if override.ResumeLeadMinutes > 0 {
		cfg.ResumeLeadMinutes = override.ResumeLeadMinutes
	}
	if override.PauseLagMinutes > 0 {
		cfg.PauseLagMinutes = override.PauseLagMinutes
	}
	if override.CheckIntervalSeconds > 0 {
		cfg.CheckIntervalSeconds = override.CheckIntervalSeconds
	}
	if override.RetryCap > 0 {
		cfg.RetryCap = override.RetryCap
	}
	if override.PendingRetryMinutes > 0 {
		cfg.PendingRetryMinutes = override.PendingRetryMinutes
	}
	if override.PendingHorizonHours > 0 {
		cfg.PendingHorizonHours = override.PendingHorizonHours
	}
}

// selectAndProcess re-fetches the row to guard against a stale snapshot,
// then hands it to processOne.
func (w *WorkerLoop) selectAndProcess(ctx domain.Context, row domain.Row, kind domain.TransitionKind, opts RunOptions) {
	fresh, ok, err := w.gateway.RefetchByEmail(ctx, row.Email)
	if err != nil {
		slog.Warn("refetch failed, skipping row", slog.String("email", row.Email), slog.Any("error", err))
		w.stats.Skipped++
		return
	}
	if !ok {
		w.stats.Skipped++
		return
	}
	if !statusMatchesKind(fresh.Status, kind) {
		w.stats.Skipped++
		return
	}
	w.processOne(ctx, fresh, kind, opts)
}

// statusMatchesKind reports whether row.Status is still eligible for kind,
// guarding against a concurrent status change between selection and lock.
func statusMatchesKind(status domain.RowStatus, kind domain.TransitionKind) bool {
	switch kind {
	case domain.KindResume:
		return status == domain.StatusPaused
	case domain.KindPause:
		return status == domain.StatusBilling
	default:
		return false
	}
}

// processOne implements spec §4.8's per-row steps 1-7.
func (w *WorkerLoop) processOne(ctx domain.Context, row domain.Row, kind domain.TransitionKind, opts RunOptions) {
	acquired, err := w.locks.Acquire(ctx, row)
	if err != nil {
		slog.Warn("acquire failed", slog.String("email", row.Email), slog.Any("error", err))
		w.stats.Skipped++
		return
	}
	if !acquired {
		w.stats.Skipped++
		return
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := w.locks.Release(ctx, row); err != nil {
			slog.Warn("release failed", slog.String("email", row.Email), slog.Any("error", err))
		}
	}
	defer release()

	fresh, ok, err := w.gateway.RefetchByEmail(ctx, row.Email)
	if err != nil || !ok || !statusMatchesKind(fresh.Status, kind) {
		w.stats.Skipped++
		return
	}
	row = fresh

	if w.limiter != nil {
		if allowed, _, limitErr := w.limiter.Allow(ctx, "transition", 1); limitErr == nil && !allowed {
			w.stats.Skipped++
			return
		}
	}

	profileID, err := w.profiles.Resolve(ctx, row.Email)
	if err != nil {
		slog.Warn("profile resolve failed", slog.String("email", row.Email), slog.Any("error", err))
	}

	windowMode := opts.WindowMode
	if windowMode == "" {
		windowMode = WindowBackground
	}

	result, err := w.executor.Execute(ctx, profileID, row.ToAccountData(), kind, domain.ExecuteOptions{
		RetryCount: row.RetryCount,
		DebugMode:  opts.DebugMode,
		WindowMode: windowMode,
	})
	if err != nil {
		slog.Warn("executor call failed", slog.String("email", row.Email), slog.Any("error", err))
		w.stats.RetryableFailures++
		return
	}

	outcome := domain.Classify(result, false)

	if outcome == domain.OutcomeImageCaptchaRetry {
		time.Sleep(captchaRetryDelay)
		retryResult, retryErr := w.executor.Execute(ctx, profileID, row.ToAccountData(), kind, domain.ExecuteOptions{
			RetryCount: row.RetryCount,
			DebugMode:  opts.DebugMode,
			WindowMode: windowMode,
		})
		if retryErr != nil {
			w.stats.RetryableFailures++
			return
		}
		result = retryResult
		outcome = domain.Classify(result, true)
	}

	w.apply(ctx, row, kind, result, outcome)
	release()
}

// apply writes the classified outcome back via the correct Record* call
// (spec §4.6, §4.7). Releasing the lock is the caller's responsibility,
// mirroring the fact that Record* calls implicitly clear it in the teacher
// spec but this port's WriteLock contract keeps that explicit.
func (w *WorkerLoop) apply(ctx domain.Context, row domain.Row, kind domain.TransitionKind, result domain.TransitionResult, outcome domain.Outcome) {
	now := time.Now()
	lang := result.DetectedLanguage

	if w.audit != nil {
		w.audit.Record(ctx, w.cycleID, w.locks.WorkerID(), row.Email, kind, outcome, result)
	}

	switch outcome {
	case domain.OutcomeSuccessNew, domain.OutcomeSuccessAlready:
		w.recordSuccess(ctx, row, kind, result, outcome, lang, now)
	case domain.OutcomePermanentFailure:
		w.recordPermanentFailure(ctx, row, kind, result, lang, now)
	case domain.OutcomePaymentPending:
		w.recordPaymentPending(ctx, row, kind, result, lang, now)
	default:
		w.recordRetryableFailure(ctx, row, kind, result, lang, now)
	}
}

func (w *WorkerLoop) recordSuccess(ctx domain.Context, row domain.Row, kind domain.TransitionKind, result domain.TransitionResult, outcome domain.Outcome, lang string, now time.Time) {
	historyOutcome := domain.HistoryNewSuccess
	if outcome == domain.OutcomeSuccessAlready {
		historyOutcome = domain.HistoryAlready
	}
	line := domain.FormatHistoryLine(kind, lang, historyOutcome, now, w.locks.WorkerID(), "")
	newHistory := domain.AppendHistoryLine(row.ResultHistory, line)

	newStatus := domain.OppositeStatus(kind)
	if w.loopCheck.Detect(row.ResultHistory, kind) {
		newStatus = domain.StatusManualCheckLoop
		w.stats.LoopQuarantined++
		w.notify(ctx, domain.SeverityWarning, "loop detected", row.Email, "quarantined after repeated "+string(kind)+" successes")
	}

	var billingDate *time.Time
	if result.NextBillingDate != nil {
		if d, ok := domain.ParseLocalDate(*result.NextBillingDate); ok {
			billingDate = &d
		}
	}

	err := w.gateway.RecordSuccess(ctx, row, domain.SuccessOutcome{
		NewStatus:      newStatus,
		ResultLine:     newHistory,
		IP:             result.ObservedIP,
		ProxyID:        result.ObservedProxyID,
		NewBillingDate: billingDate,
		ResetPending:   true,
	})
	if err != nil {
		slog.Warn("record success failed", slog.String("email", row.Email), slog.Any("error", err))
		return
	}
	if outcome == domain.OutcomeSuccessNew {
		w.stats.SuccessNew++
	} else {
		w.stats.SuccessAlready++
	}
}

func (w *WorkerLoop) recordPermanentFailure(ctx domain.Context, row domain.Row, kind domain.TransitionKind, result domain.TransitionResult, lang string, now time.Time) {
	newStatus, ok := domain.PermanentStatusFor(result.Status)
	if !ok {
		newStatus = domain.StatusManualCheckLoop
	}
	line := domain.FormatHistoryLine(kind, lang, domain.HistoryFailure, now, w.locks.WorkerID(), result.ErrorMessage)
	newHistory := domain.AppendHistoryLine(row.ResultHistory, line)

	err := w.gateway.RecordPermanentFailure(ctx, row, domain.PermanentFailureOutcome{
		NewStatus:  newStatus,
		ResultLine: newHistory,
		IP:         result.ObservedIP,
		ProxyID:    result.ObservedProxyID,
	})
	if err != nil {
		slog.Warn("record permanent failure failed", slog.String("email", row.Email), slog.Any("error", err))
		return
	}
	w.stats.PermanentFailures++
	w.notify(ctx, domain.SeverityCritical, "permanent failure", row.Email, string(result.Status))
}

func (w *WorkerLoop) recordRetryableFailure(ctx domain.Context, row domain.Row, kind domain.TransitionKind, result domain.TransitionResult, lang string, now time.Time) {
	line := domain.FormatHistoryLine(kind, lang, domain.HistoryFailure, now, w.locks.WorkerID(), result.ErrorMessage)
	newHistory := domain.AppendHistoryLine(row.ResultHistory, line)

	newCount, err := w.gateway.RecordRetryableFailure(ctx, row, domain.FailureOutcome{
		ResultLine: newHistory,
		IP:         result.ObservedIP,
		ProxyID:    result.ObservedProxyID,
	})
	if err != nil {
		slog.Warn("record retryable failure failed", slog.String("email", row.Email), slog.Any("error", err))
		return
	}
	w.stats.RetryableFailures++

	cfg := w.shared.Snapshot()
	if newCount >= cfg.RetryCap {
		w.stats.RetryExhausted++
		w.notify(ctx, domain.SeverityWarning, "retry cap reached", row.Email, "row will not be re-selected until retryCount is cleared")
	}
}

func (w *WorkerLoop) recordPaymentPending(ctx domain.Context, row domain.Row, kind domain.TransitionKind, result domain.TransitionResult, lang string, now time.Time) {
	cfg := w.shared.Snapshot()
	retryIn := time.Duration(cfg.PendingRetryMinutes) * time.Minute
	horizon := time.Duration(cfg.PendingHorizonHours) * time.Hour

	checkAt := row.PendingCheckAt
	if checkAt == nil {
		t := now
		checkAt = &t
	}

	if now.Sub(*checkAt) >= horizon {
		line := domain.FormatHistoryLine(kind, lang, domain.HistoryFailure, now, w.locks.WorkerID(), "payment pending horizon exceeded")
		newHistory := domain.AppendHistoryLine(row.ResultHistory, line)
		if err := w.gateway.RecordPermanentFailure(ctx, row, domain.PermanentFailureOutcome{
			NewStatus:  domain.StatusManualCheckPaymentDelay,
			ResultLine: newHistory,
		}); err != nil {
			slog.Warn("record payment delay failed", slog.String("email", row.Email), slog.Any("error", err))
			return
		}
		_ = w.gateway.ClearPendingColumns(ctx, row)
		w.stats.PermanentFailures++
		w.notify(ctx, domain.SeverityCritical, "payment pending horizon exceeded", row.Email, "")
		return
	}

	line := domain.FormatHistoryLine(kind, lang, domain.HistoryPending, now, w.locks.WorkerID(), result.PaymentPendingReason)
	newHistory := domain.AppendHistoryLine(row.ResultHistory, line)
	if err := w.gateway.AppendHistory(ctx, row, newHistory); err != nil {
		slog.Warn("record pending observation failed", slog.String("email", row.Email), slog.Any("error", err))
	}

	if row.PendingCheckAt == nil {
		if err := w.gateway.SetPendingCheckAt(ctx, row, *checkAt); err != nil {
			slog.Warn("set pending check at failed", slog.String("email", row.Email), slog.Any("error", err))
		}
	}
	if err := w.gateway.SetPendingRetryAt(ctx, row, now.Add(retryIn)); err != nil {
		slog.Warn("set pending retry at failed", slog.String("email", row.Email), slog.Any("error", err))
	}
	w.stats.PaymentPending++
}

func (w *WorkerLoop) notify(ctx domain.Context, sev domain.NotificationSeverity, title, email, detail string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, domain.NotificationEvent{
		Severity: sev,
		Title:    title,
		Detail:   detail,
		Email:    email,
		At:       time.Now(),
	}); err != nil {
		slog.Warn("notify failed", slog.Any("error", err))
	}
}
