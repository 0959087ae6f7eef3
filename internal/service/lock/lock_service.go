// Package lock implements domain.LockService: the write-then-verify
// compare-and-set lease on a row's lock-token cell (spec §4.2, invariant 1
// — the spreadsheet cell is the sole shared mutable resource, there is no
// server-side CAS to lean on).
package lock

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// staleLeaseHorizon is how long a lock token is honored before a
// FilterUnlocked pre-check treats the row as available again (spec §4.2).
const staleLeaseHorizon = 5 * time.Minute

// tokenSeparator divides a lock token into its worker-id and timestamp
// parts: "<workerID>@<unixNano>".
const tokenSeparator = "@"

// Service implements domain.LockService against a domain.SheetGateway.
type Service struct {
	gateway  domain.SheetGateway
	workerID string
}

// New constructs a Service with a worker id derived from hostname + pid +
// a random suffix, unique enough to distinguish concurrent worker
// processes without requiring any shared coordination service.
func New(gateway domain.SheetGateway) *Service {
	return &Service{gateway: gateway, workerID: newWorkerID()}
}

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), shortRandom())
}

func shortRandom() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:8]
	}
	return hex.EncodeToString(buf)
}

// WorkerID implements domain.LockService.
func (s *Service) WorkerID() string { return s.workerID }

// Acquire performs the write-then-verify sequence: read the current token,
// refuse if it is held by someone else and not yet stale, write this
// worker's token, then re-read to confirm no concurrent writer raced us in
// between (spec §4.2, §8 scenario 2).
func (s *Service) Acquire(ctx domain.Context, row domain.Row) (bool, error) {
	current, err := s.gateway.ReadLock(ctx, row)
	if err != nil {
		return false, err
	}
	if held, at := parseToken(current); held != "" && held != s.workerID {
		if time.Since(at) < staleLeaseHorizon {
			return false, nil
		}
	}

	mine := formatToken(s.workerID, time.Now())
	if err := s.gateway.WriteLock(ctx, row, mine); err != nil {
		return false, err
	}

	after, err := s.gateway.ReadLock(ctx, row)
	if err != nil {
		return false, err
	}
	return after == mine, nil
}

// Release unconditionally clears the lock column. Called from a deferred
// statement so a panicking transition never leaves a row locked past the
// stale-lease horizon.
func (s *Service) Release(ctx domain.Context, row domain.Row) error {
	return s.gateway.WriteLock(ctx, row, "")
}

// FilterUnlocked drops rows whose lock token is present and not yet stale,
// purely to reduce contention before Acquire is attempted; it is a
// best-effort pre-check, never a substitute for Acquire's verify step.
func (s *Service) FilterUnlocked(rows []domain.Row, now time.Time) []domain.Row {
	out := make([]domain.Row, 0, len(rows))
	for _, r := range rows {
		held, at := parseToken(r.LockToken)
		if held == "" || held == s.workerID || now.Sub(at) >= staleLeaseHorizon {
			out = append(out, r)
		}
	}
	return out
}

func formatToken(workerID string, at time.Time) string {
	return workerID + tokenSeparator + fmt.Sprintf("%d", at.UnixNano())
}

func parseToken(token string) (workerID string, at time.Time) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", time.Time{}
	}
	idx := strings.LastIndex(token, tokenSeparator)
	if idx < 0 {
		// Legacy or manually-entered token: treat as held with an unknown,
		// effectively-fresh acquisition time so it is not immediately
		// considered stale.
		return token, time.Now()
	}
	var nanos int64
	if _, err := fmt.Sscanf(token[idx+1:], "%d", &nanos); err != nil {
		return token[:idx], time.Now()
	}
	return token[:idx], time.Unix(0, nanos)
}
