package domain

// LoopDetector inspects a row's result history and flags pathological
// churn — the same row flipping state repeatedly — for quarantine
// (spec §4.10, invariant 6). It is a pure function wrapper kept distinct
// from history.go's parsing internals so WorkerLoop depends on a single,
// narrow surface.
type LoopDetector struct{}

// NewLoopDetector constructs a LoopDetector. It holds no state: detection
// only ever reads the history text handed to it.
func NewLoopDetector() LoopDetector { return LoopDetector{} }

// Detect reports whether history already shows three or more kind-matching
// success markers, meaning the next success write must quarantine the row
// into StatusManualCheckLoop instead of its natural opposite status.
func (LoopDetector) Detect(history string, kind TransitionKind) bool {
	return IsLoop(history, kind)
}
