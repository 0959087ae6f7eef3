package domain

// TransitionStatus is the result status returned by the opaque
// TransitionExecutor (spec §3.3).
type TransitionStatus string

const (
	TransitionSuccess               TransitionStatus = "Success"
	TransitionAlreadyInTargetState  TransitionStatus = "AlreadyInTargetState"
	TransitionSubscriptionExpired   TransitionStatus = "SubscriptionExpired"
	TransitionAccountLocked         TransitionStatus = "AccountLocked"
	TransitionRecaptchaDetected     TransitionStatus = "RecaptchaDetected"
	TransitionPaymentMethodIssue    TransitionStatus = "PaymentMethodIssue"
	TransitionPaymentPending        TransitionStatus = "PaymentPending"
	TransitionImageCaptchaTransient TransitionStatus = "ImageCaptchaTransient"
	TransitionGenericFailure        TransitionStatus = "GenericFailure"
)

// TransitionResult is the value object at the boundary between the core
// and the opaque TransitionExecutor (spec §3.3).
type TransitionResult struct {
	Success              bool
	Kind                 TransitionKind
	Status               TransitionStatus
	NextBillingDate       *string // locale-native "YYYY. M. D", set only on success
	ObservedIP           string
	ObservedProxyID      string
	DetectedLanguage     string
	ErrorMessage         string
	PaymentPendingReason string
	ActualProfileIDUsed  string
}

// ExecuteOptions carries per-call tuning passed to the executor (spec §4.5).
type ExecuteOptions struct {
	RetryCount int
	DebugMode  bool
	WindowMode string // "focus" | "background"
}

// TransitionExecutor is the opaque external collaborator performing the
// actual browser-side pause/resume work. The core only depends on this
// interface; what implements it (browser automation, a stub, a remote RPC)
// is deliberately out of scope (spec §1 Non-goals).
type TransitionExecutor interface {
	Execute(ctx Context, profileID *string, account AccountData, kind TransitionKind, opts ExecuteOptions) (TransitionResult, error)
}
