package domain

import "time"

// RowStatus is the state-machine state of one account row.
type RowStatus string

// Row status values (spec §3.1). Names are stable English identifiers
// chosen for this port; the sheet never carries localized status bytes.
const (
	StatusPaused                  RowStatus = "Paused"
	StatusBilling                 RowStatus = "Billing"
	StatusExpired                 RowStatus = "Expired"
	StatusLocked                  RowStatus = "Locked"
	StatusCaptchaBlocked          RowStatus = "CaptchaBlocked"
	StatusPaymentMethodIssue      RowStatus = "PaymentMethodIssue"
	StatusManualCheckLoop         RowStatus = "ManualCheckLoop"
	StatusManualCheckPaymentDelay RowStatus = "ManualCheckPaymentDelay"
)

// terminalStatuses are sticky: the time filter never selects them again
// (invariant 7).
var terminalStatuses = map[RowStatus]bool{
	StatusExpired:                 true,
	StatusLocked:                  true,
	StatusCaptchaBlocked:          true,
	StatusPaymentMethodIssue:      true,
	StatusManualCheckLoop:         true,
	StatusManualCheckPaymentDelay: true,
}

// IsTerminal reports whether s is a sticky terminal status.
func (s RowStatus) IsTerminal() bool { return terminalStatuses[s] }

// TransitionKind is the direction of a scheduled transition.
type TransitionKind string

const (
	KindPause  TransitionKind = "pause"
	KindResume TransitionKind = "resume"
)

// Row is one account as read from the worker sheet (spec §3.1).
type Row struct {
	Email          string
	Password       string
	RecoveryEmail  string
	TOTPSecret     string
	Status         RowStatus
	NextBillingDate time.Time
	LastIP         string
	LastProxyID    string
	ResultHistory  string
	ScheduledTime  string // "HH:MM" local, as stored in the sheet
	LockToken      string
	PaymentCard    string
	RetryCount     int
	PendingCheckAt  *time.Time
	PendingRetryAt  *time.Time

	// RowIndex is the 1-based sheet row at the moment of the last snapshot.
	// Used only to build A1 ranges for writes; scheduling decisions key on
	// Email (invariant 1), never on RowIndex.
	RowIndex int
	// LastCycleID is a slot for correlating the worker cycle that last
	// touched this row. Nothing in this module sets or reads it.
	LastCycleID string
}

// HasScheduledTime reports whether the row's ScheduledTime cell parses.
func (r Row) HasScheduledTime() bool {
	_, ok := ParseLocalTimeOfDay(r.ScheduledTime)
	return ok
}

// AccountData is the opaque payload passed to the TransitionExecutor; it
// never crosses back out of the core except as fields copied into a
// TransitionResult.
type AccountData struct {
	Email         string
	Password      string
	RecoveryEmail string
	TOTPSecret    string
	PaymentCard   string
}

// ToAccountData projects the credential-bearing fields of a Row.
func (r Row) ToAccountData() AccountData {
	return AccountData{
		Email:         r.Email,
		Password:      r.Password,
		RecoveryEmail: r.RecoveryEmail,
		TOTPSecret:    r.TOTPSecret,
		PaymentCard:   r.PaymentCard,
	}
}
