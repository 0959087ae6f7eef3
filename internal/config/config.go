// Package config defines configuration parsing and the live-reloaded
// SharedConfig tunables object.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all process configuration parsed from environment
// variables (spec §6).
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`

	// WorkerSheetID and WorkerServiceAccountPath configure the Sheets API
	// client backing SheetGateway.
	WorkerSheetID             string `env:"WORKER_SHEET_ID,required"`
	WorkerServiceAccountPath  string `env:"WORKER_SERVICE_ACCOUNT_PATH,required"`
	WorkerSheetTab            string `env:"WORKER_SHEET_TAB" envDefault:"worker"`
	ConfigSheetTab            string `env:"CONFIG_SHEET_TAB" envDefault:"config"`
	ProfileMappingSheetTab    string `env:"PROFILE_MAPPING_SHEET_TAB" envDefault:"profiles"`

	DebugMode bool   `env:"DEBUG_MODE" envDefault:"false"`
	LogDir    string `env:"LOG_DIR"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"subscription-fleet-worker"`

	AdminAddr string `env:"ADMIN_ADDR" envDefault:":9090"`

	// Profile registry fallback (component D).
	ProfileRegistryURL string `env:"PROFILE_REGISTRY_URL"`

	// TransitionExecutor wiring (component E reference adapters).
	ExecutorMode string        `env:"EXECUTOR_MODE" envDefault:"stub"` // stub | http
	ExecutorURL  string        `env:"EXECUTOR_URL"`
	ExecutorTimeout time.Duration `env:"EXECUTOR_TIMEOUT" envDefault:"3m"`

	// Notifier (component K).
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`

	// Non-authoritative audit log, repurposing jackc/pgx.
	AuditDBURL string `env:"AUDIT_DB_URL"`

	// Cluster-wide transition rate limiting, repurposing redis/go-redis.
	RateLimitRedisURL       string `env:"RATE_LIMIT_REDIS_URL"`
	RateLimitPerMinute      int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"0"`

	// SharedConfig TTL resync cadence (component G).
	SharedConfigSyncInterval time.Duration `env:"SHARED_CONFIG_SYNC_INTERVAL" envDefault:"3m"`

	// Adapter-boundary HTTP retry (cenkalti/backoff), used by the Sheets
	// client and the reference executor/registry HTTP adapters.
	AdapterBackoffMaxElapsedTime  time.Duration `env:"ADAPTER_BACKOFF_MAX_ELAPSED_TIME" envDefault:"30s"`
	AdapterBackoffInitialInterval time.Duration `env:"ADAPTER_BACKOFF_INITIAL_INTERVAL" envDefault:"500ms"`
	AdapterBackoffMaxInterval     time.Duration `env:"ADAPTER_BACKOFF_MAX_INTERVAL" envDefault:"10s"`

	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the process is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the process is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the process is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GetAdapterBackoffConfig returns backoff tuning appropriate for the
// current environment; test environments get much shorter timeouts so
// retry tests run fast.
func (c Config) GetAdapterBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration) {
	if c.IsTest() {
		return 2 * time.Second, 10 * time.Millisecond, 100 * time.Millisecond
	}
	return c.AdapterBackoffMaxElapsedTime, c.AdapterBackoffInitialInterval, c.AdapterBackoffMaxInterval
}
