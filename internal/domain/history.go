package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// HistoryOutcome is the outcome tag written into a result-history line
// (spec §6). It is a distinct, smaller vocabulary than Outcome: both
// success-new and success-already collapse differently per line, and
// payment-pending observations are tagged "pending" rather than "failure".
type HistoryOutcome string

const (
	HistoryNewSuccess HistoryOutcome = "new-success"
	HistoryAlready    HistoryOutcome = "already"
	HistoryFailure    HistoryOutcome = "failure"
	HistoryPending    HistoryOutcome = "pending"
)

func emojiFor(o HistoryOutcome) string {
	switch o {
	case HistoryNewSuccess, HistoryAlready:
		return "✅" // checkmark
	case HistoryPending:
		return "⏳" // hourglass
	default:
		return "❌" // cross mark
	}
}

// FormatHistoryLine renders one result-history line (spec §6):
// "<emoji> <kind> (<lang>) <outcome> | <short timestamp> | <workerId> [| <detail>]"
func FormatHistoryLine(kind TransitionKind, lang string, outcome HistoryOutcome, at time.Time, workerID, detail string) string {
	if lang == "" {
		lang = "unknown"
	}
	line := fmt.Sprintf("%s %s (%s) %s | %s | %s", emojiFor(outcome), kind, lang, outcome, at.Format("2006-01-02 15:04"), workerID)
	if detail != "" {
		line += " | " + detail
	}
	return line
}

// AppendHistoryLine appends a new line to an append-only history cell
// (invariant 2: prior lines are never overwritten).
func AppendHistoryLine(existing, newLine string) string {
	existing = strings.TrimRight(existing, "\n")
	if existing == "" {
		return newLine
	}
	return existing + "\n" + newLine
}

var kindSuccessLineRE = regexp.MustCompile(`(?i)^\S+\s+(\S+)\s+\([^)]*\)\s+(new-success|already)\b`)

// CountKindSuccesses implements the core of LoopDetector (component J):
// it counts case-insensitive occurrences of a kind-matching success
// marker ("new-success" or "already") in the history text.
func CountKindSuccesses(history string, kind TransitionKind) int {
	count := 0
	for _, line := range strings.Split(history, "\n") {
		m := kindSuccessLineRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if strings.EqualFold(m[1], string(kind)) {
			count++
		}
	}
	return count
}

// IsLoop reports whether history already contains >= 3 kind-matching
// success markers (invariant 6, spec §4.10). The WorkerLoop consults this
// only on success outcomes — a row that merely fails repeatedly is
// governed by the retry cap, not the loop detector.
func IsLoop(history string, kind TransitionKind) bool {
	return CountKindSuccesses(history, kind) >= 3
}
