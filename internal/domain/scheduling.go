package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SchedulingConfig is the minimal set of live-reloaded tunables TimeFilter and
// the payment-pending state machine consume (spec §4.11). The
// process-wide snapshot/TTL-resync machinery lives in package config;
// this is the pure value the domain functions operate on.
type SchedulingConfig struct {
	ResumeLeadMinutes    int
	PauseLagMinutes      int
	CheckIntervalSeconds int
	RetryCap             int
	PendingRetryMinutes  int
	PendingHorizonHours  int

	// TransitionRateLimitPerMinute caps TransitionExecutor invocations
	// across the fleet. Zero means unlimited (the additive rate limiter is
	// left disabled or untouched). Synced the same way as every other
	// tunable here, so operators can throttle down mid-run from the config
	// sheet tab without restarting any worker process.
	TransitionRateLimitPerMinute int
}

// Partition is the result of TimeFilter.partition (spec §4.3, §4.8).
type Partition struct {
	ResumeDue  []Row
	PauseDue   []Row
	PendingDue []Row
}

// PartitionDue implements TimeFilter (component C): given the current wall
// time and a row list (already lock-filtered), it returns the
// resume/pause/pending-retry candidate lists in sheet-snapshot order.
// Rows with a blank or unparsable ScheduledTime are silently skipped
// (not an error) for the resume/pause lanes.
func PartitionDue(now time.Time, rows []Row, cfg SchedulingConfig) Partition {
	var p Partition
	for _, r := range rows {
		if r.Status.IsTerminal() {
			continue
		}
		switch r.Status {
		case StatusPaused:
			if r.RetryCount >= cfg.RetryCap {
				continue
			}
			due, ok := scheduledAt(r, now)
			if !ok {
				continue
			}
			if !due.After(now.Add(time.Duration(cfg.ResumeLeadMinutes) * time.Minute)) {
				p.ResumeDue = append(p.ResumeDue, r)
			}
		case StatusBilling:
			if r.RetryCount >= cfg.RetryCap {
				continue
			}
			due, ok := scheduledAt(r, now)
			if !ok {
				continue
			}
			if !due.After(now.Add(-time.Duration(cfg.PauseLagMinutes) * time.Minute)) {
				p.PauseDue = append(p.PauseDue, r)
			}
		}
		if r.RetryCount < cfg.RetryCap && r.PendingRetryAt != nil && !r.PendingRetryAt.After(now) {
			if r.PendingCheckAt != nil && now.Sub(*r.PendingCheckAt) < time.Duration(cfg.PendingHorizonHours)*time.Hour {
				p.PendingDue = append(p.PendingDue, r)
			}
		}
	}
	return p
}

// scheduledAt combines today's date with the row's local time-of-day cell.
func scheduledAt(r Row, now time.Time) (time.Time, bool) {
	tod, ok := ParseLocalTimeOfDay(r.ScheduledTime)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location()), true
}

// ParseLocalTimeOfDay parses the sheet's "HH:MM" scheduled-time cell. A
// blank or malformed cell is reported via ok=false, never an error — the
// spec treats this as "no scheduling", not a fault.
func ParseLocalTimeOfDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatLocalDate renders a date in the sheet's locale-native "YYYY. M. D"
// form (spec §6).
func FormatLocalDate(t time.Time) string {
	return fmt.Sprintf("%d. %d. %d", t.Year(), int(t.Month()), t.Day())
}

// ParseLocalDate parses the "YYYY. M. D" form back into a date-only time.
func ParseLocalDate(s string) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	y, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	m, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	d, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.Local), true
}

// FormatLocalTimestamp renders the pending-column "YYYY. M. D HH:MM" form.
func FormatLocalTimestamp(t time.Time) string {
	return fmt.Sprintf("%s %02d:%02d", FormatLocalDate(t), t.Hour(), t.Minute())
}

// ParseLocalTimestamp parses the pending-column timestamp form. Round-trips
// with FormatLocalTimestamp at minute resolution.
func ParseLocalTimestamp(s string) (time.Time, bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) < 2 {
		return time.Time{}, false
	}
	datePart := strings.Join(fields[:len(fields)-1], " ")
	timePart := fields[len(fields)-1]
	d, ok := ParseLocalDate(datePart)
	if !ok {
		return time.Time{}, false
	}
	tod, ok := ParseLocalTimeOfDay(timePart)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, d.Location()), true
}
