package domain

import "time"

// SuccessOutcome carries the fields RecordSuccess needs to apply
// (spec §4.1). ResetPending instructs the gateway to also clear the
// pending-check/pending-retry columns, mirroring §4.7 step 4.
type SuccessOutcome struct {
	NewStatus       RowStatus
	ResultLine      string
	IP              string
	ProxyID         string
	NewBillingDate  *time.Time
	ResetPending    bool
}

// FailureOutcome carries the fields the Record*Failure methods need.
type FailureOutcome struct {
	ResultLine string
	IP         string
	ProxyID    string
}

// PermanentFailureOutcome extends FailureOutcome with the terminal status.
type PermanentFailureOutcome struct {
	NewStatus  RowStatus
	ResultLine string
	IP         string
	ProxyID    string
}

// SheetGateway presents a typed API over the worker sheet and the profile
// mapping sheet (spec §4.1). Implementations must perform every Record*
// method as a single batched write so an observer never sees a
// half-written row (invariant 1).
type SheetGateway interface {
	// ListAllRows returns a full snapshot of the worker tab, in sheet order.
	ListAllRows(ctx Context) ([]Row, error)
	// RefetchByEmail re-reads a single row by its stable identity, guarding
	// against row deletions/insertions that shift indices. Returns
	// (Row{}, false, nil) if the email is no longer present.
	RefetchByEmail(ctx Context, email string) (Row, bool, error)

	// ReadLock and WriteLock are used only by LockService.
	ReadLock(ctx Context, row Row) (string, error)
	WriteLock(ctx Context, row Row, token string) error

	RecordSuccess(ctx Context, row Row, out SuccessOutcome) error
	RecordRetryableFailure(ctx Context, row Row, out FailureOutcome) (newRetryCount int, err error)
	RecordPermanentFailure(ctx Context, row Row, out PermanentFailureOutcome) error
	// AppendHistory writes a history line without touching retryCount or
	// status, used by the payment-pending sub-state-machine (spec §4.7)
	// where an observation is explicitly not a retryable failure.
	AppendHistory(ctx Context, row Row, resultLine string) error

	SetPendingCheckAt(ctx Context, row Row, at time.Time) error
	SetPendingRetryAt(ctx Context, row Row, at time.Time) error
	ClearPendingColumns(ctx Context, row Row) error

	// ResolveProfileID looks up a cached mapping-sheet entry; callers fall
	// back to ProfileRegistryClient on a cache miss (component D).
	ResolveProfileID(ctx Context, email string) (profileID string, ok bool, err error)
}

// LockService manages the per-row distributed lock (spec §4.2).
type LockService interface {
	// WorkerID returns the identifier chosen once per process
	// (hostname + pid + random suffix).
	WorkerID() string
	// Acquire attempts to take the lock on row, returning true on success.
	Acquire(ctx Context, row Row) (bool, error)
	// Release unconditionally clears the lock column.
	Release(ctx Context, row Row) error
	// FilterUnlocked drops rows whose lock is younger than the expiry
	// horizon, purely to reduce contention before acquisition is attempted.
	FilterUnlocked(rows []Row, now time.Time) []Row
}

// ProfileRegistryClient is the fallback HTTP lookup used by
// ProfileResolver when the mapping-sheet cache misses (spec §4.4).
type ProfileRegistryClient interface {
	// FindByNameOrRemark searches the live profile registry for profiles
	// whose name or remark equals needle, case-insensitively.
	FindByNameOrRemark(ctx Context, needle string) ([]string, error)
}

// Notifier is the opaque sink for critical events (spec §2 component K):
// permanent failures, payment delay, retry exhaustion, loop detection.
type Notifier interface {
	Notify(ctx Context, event NotificationEvent) error
}

// NotificationSeverity classifies a NotificationEvent.
type NotificationSeverity string

const (
	SeverityInfo     NotificationSeverity = "info"
	SeverityWarning  NotificationSeverity = "warning"
	SeverityCritical NotificationSeverity = "critical"
)

// NotificationEvent is the payload handed to a Notifier.
type NotificationEvent struct {
	Severity NotificationSeverity
	Title    string
	Detail   string
	Email    string
	At       time.Time
}

// RateLimiter throttles a logical operation, identified by key, to a
// configured rate. It is a pure additive throttling concern: it never
// participates in scheduling decisions (invariant 1 reserves that role
// for the spreadsheet's lock column alone).
type RateLimiter interface {
	Allow(ctx Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}
