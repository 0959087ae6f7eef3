package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

//go:embed ../../configs/fleet/defaults.yaml
var defaultsYAML []byte

// ConfigSheetReader is the narrow port SharedConfig needs from the
// SheetGateway: reading the tunables off the dedicated config tab
// (spec §4.11). Kept separate from domain.SheetGateway because it is an
// ambient, cross-cutting concern rather than part of the row-scheduling
// contract.
type ConfigSheetReader interface {
	ReadSharedConfig(ctx domain.Context) (domain.SchedulingConfig, error)
}

// loadDefaults parses the embedded fallback tunables, used before the
// first successful sheet sync (same shape as the teacher's RAG-config
// yaml-with-hardcoded-fallback loader, retargeted to tunables).
func loadDefaults() domain.SchedulingConfig {
	var cfg domain.SchedulingConfig
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// The embedded file is part of the binary; a parse failure here is
		// a build-time defect, not a runtime condition. Fall back to safe
		// hardcoded minimums rather than panicking in production.
		slog.Error("failed to parse embedded shared config defaults", slog.Any("error", err))
		return domain.SchedulingConfig{
			ResumeLeadMinutes: 10, PauseLagMinutes: 10, CheckIntervalSeconds: 60,
			RetryCap: 3, PendingRetryMinutes: 30, PendingHorizonHours: 24,
		}
	}
	return cfg
}

// SharedConfig is a process-wide, TTL-cached snapshot of the scheduling
// tunables (component G): resumeLeadMinutes, pauseLagMinutes,
// checkIntervalSeconds, retryCap, pendingRetryMinutes, pendingHorizonHours.
// Every worker cycle calls Sync before reading; if the backing sheet is
// unreachable the last good snapshot is kept and a warning logged — the
// same last-good-value-on-failure shape as a TTL cache with a fallback.
type SharedConfig struct {
	reader ConfigSheetReader
	ttl    time.Duration

	mu       sync.RWMutex
	snapshot domain.SchedulingConfig
	fetchedAt time.Time
}

// NewSharedConfig constructs a SharedConfig seeded with the embedded
// fallback defaults so it is usable even before the first Sync call.
func NewSharedConfig(reader ConfigSheetReader, ttl time.Duration) *SharedConfig {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &SharedConfig{
		reader:   reader,
		ttl:      ttl,
		snapshot: loadDefaults(),
	}
}

// Snapshot returns the current cached tunables without triggering a sync.
func (c *SharedConfig) Snapshot() domain.SchedulingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Sync re-syncs the snapshot if the TTL has elapsed. On a read failure it
// keeps the last good snapshot and logs a warning; it never returns an
// error to the caller, because a SharedConfig sync failure must never
// stall the scheduling loop (spec §4.11, error taxonomy class 6).
func (c *SharedConfig) Sync(ctx domain.Context) {
	c.mu.RLock()
	fresh := time.Since(c.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return
	}

	next, err := c.reader.ReadSharedConfig(ctx)
	if err != nil {
		slog.Warn("shared config sync failed, keeping last good snapshot", slog.Any("error", err))
		return
	}

	c.mu.Lock()
	c.snapshot = next
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

// Override layers explicit CLI/flag values over the current snapshot,
// per spec §4.11 ("values explicitly passed to WorkerLoop.run(opts)
// override the snapshot"). Zero-value fields in override are treated as
// "not set" and left alone.
func (c *SharedConfig) Override(override domain.SchedulingConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if override.ResumeLeadMinutes > 0 {
		c.snapshot.ResumeLeadMinutes = override.ResumeLeadMinutes
	}
	if override.PauseLagMinutes > 0 {
		c.snapshot.PauseLagMinutes = override.PauseLagMinutes
	}
	if override.CheckIntervalSeconds > 0 {
		c.snapshot.CheckIntervalSeconds = override.CheckIntervalSeconds
	}
	if override.RetryCap > 0 {
		c.snapshot.RetryCap = override.RetryCap
	}
	if override.PendingRetryMinutes > 0 {
		c.snapshot.PendingRetryMinutes = override.PendingRetryMinutes
	}
	if override.PendingHorizonHours > 0 {
		c.snapshot.PendingHorizonHours = override.PendingHorizonHours
	}
	if override.TransitionRateLimitPerMinute > 0 {
		c.snapshot.TransitionRateLimitPerMinute = override.TransitionRateLimitPerMinute
	}
}

// String is a compact representation used for startup logging.
func (c *SharedConfig) String() string {
	s := c.Snapshot()
	return fmt.Sprintf("resumeLead=%dm pauseLag=%dm interval=%ds retryCap=%d pendingRetry=%dm pendingHorizon=%dh rateLimit=%d/min",
		s.ResumeLeadMinutes, s.PauseLagMinutes, s.CheckIntervalSeconds, s.RetryCap, s.PendingRetryMinutes, s.PendingHorizonHours, s.TransitionRateLimitPerMinute)
}
