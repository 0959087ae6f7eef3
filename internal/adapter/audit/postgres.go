// Package audit writes a best-effort, non-authoritative log of
// TransitionResults to PostgreSQL (SPEC_FULL §12 audit sink). The
// spreadsheet row remains the sole source of truth for scheduling
// (invariant 1); this sink only supports after-the-fact investigation and
// must never block or fail a cycle.
package audit

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// Sink appends transition records to an append-only table.
type Sink struct {
	pool *pgxpool.Pool
}

// NewSink wraps an already-constructed pool (see
// internal/adapter/repo/postgres.NewPool).
func NewSink(pool *pgxpool.Pool) *Sink {
	return &Sink{pool: pool}
}

// EnsureSchema creates the audit table if it does not already exist. Safe
// to call on every process start.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS transition_audit (
	id               BIGSERIAL PRIMARY KEY,
	recorded_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	cycle_id         TEXT NOT NULL,
	worker_id        TEXT NOT NULL,
	email            TEXT NOT NULL,
	kind             TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	transition_status TEXT NOT NULL,
	error_message    TEXT NOT NULL DEFAULT ''
)`)
	return err
}

// Record appends one row. A failure here is logged and swallowed: the
// audit trail is a convenience, never a dependency of the scheduling loop.
func (s *Sink) Record(ctx context.Context, cycleID, workerID, email string, kind domain.TransitionKind, outcome domain.Outcome, result domain.TransitionResult) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transition_audit (cycle_id, worker_id, email, kind, outcome, transition_status, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cycleID, workerID, email, string(kind), string(outcome), string(result.Status), result.ErrorMessage,
	)
	if err != nil {
		slog.Warn("audit record failed", slog.Any("error", err), slog.String("email", email))
	}
}
