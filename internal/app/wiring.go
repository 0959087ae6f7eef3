// Package app performs explicit, single-place dependency construction for
// the fleetctl binary (Design Note #9: no runtime DI registry — every
// collaborator is built once, here, and handed to whichever cobra
// subcommand needs it).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/subscription-fleet/internal/adapter/audit"
	"github.com/fairyhunter13/subscription-fleet/internal/adapter/executor/httpexec"
	"github.com/fairyhunter13/subscription-fleet/internal/adapter/executor/stub"
	"github.com/fairyhunter13/subscription-fleet/internal/adapter/httpserver"
	"github.com/fairyhunter13/subscription-fleet/internal/adapter/notify"
	"github.com/fairyhunter13/subscription-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/subscription-fleet/internal/adapter/profileregistry"
	"github.com/fairyhunter13/subscription-fleet/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/subscription-fleet/internal/adapter/sheets"
	"github.com/fairyhunter13/subscription-fleet/internal/config"
	"github.com/fairyhunter13/subscription-fleet/internal/domain"
	obsconn "github.com/fairyhunter13/subscription-fleet/internal/observability"
	"github.com/fairyhunter13/subscription-fleet/internal/service/lock"
	"github.com/fairyhunter13/subscription-fleet/internal/service/ratelimiter"
	"github.com/fairyhunter13/subscription-fleet/internal/usecase"
)

// App bundles every explicitly-constructed collaborator a fleetctl
// subcommand might need. Fields are public so the cli package can reach
// into them directly rather than through yet another accessor layer.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Gateway  domain.SheetGateway
	Locks    domain.LockService
	Shared   *config.SharedConfig
	Profiles *usecase.ProfileResolver
	Executor domain.TransitionExecutor
	Notifier domain.Notifier
	Limiter  domain.RateLimiter

	Registry *usecase.ScheduleRegistry
	Worker   *usecase.WorkerLoop
	Router   http.Handler

	tracingShutdown func(context.Context) error
	pgPool          *pgxpool.Pool
	redisClient     *redis.Client
}

// New constructs every collaborator explicitly, in dependency order:
// SheetGateway -> LockService -> {SharedConfig, ProfileResolver} ->
// WorkerLoop, plus the ambient observability/notification/audit stack.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	tracingShutdown, err := observability.SetupTracing(cfg)
	if err != nil {
		return nil, fmt.Errorf("op=app.New: tracing setup: %w", err)
	}
	observability.InitMetrics()

	svc, err := sheets.NewAPIClient(ctx, cfg.WorkerServiceAccountPath)
	if err != nil {
		return nil, fmt.Errorf("op=app.New: sheets client: %w", err)
	}
	maxElapsed, initial, maxInterval := cfg.GetAdapterBackoffConfig()

	gateway := sheets.NewGateway(svc, sheets.Config{
		SpreadsheetID:  cfg.WorkerSheetID,
		WorkerTab:      cfg.WorkerSheetTab,
		ProfileTab:     cfg.ProfileMappingSheetTab,
		MaxElapsed:     maxElapsed,
		InitialBackoff: initial,
		MaxBackoff:     maxInterval,
		ProfileTTL:     5 * time.Minute,
	})

	configReader := sheets.NewConfigTabReader(svc, cfg.WorkerSheetID, cfg.ConfigSheetTab)
	shared := config.NewSharedConfig(configReader, cfg.SharedConfigSyncInterval)

	locks := lock.New(gateway)

	var registryClient domain.ProfileRegistryClient
	if cfg.ProfileRegistryURL != "" {
		registryClient = profileregistry.New(cfg.ProfileRegistryURL, http.DefaultClient, maxElapsed, initial, maxInterval)
	}
	profiles := usecase.NewProfileResolver(gateway, registryClient)

	executor, err := buildExecutor(cfg, maxElapsed, initial, maxInterval)
	if err != nil {
		return nil, err
	}

	notifier := buildNotifier(cfg)

	connections := map[string]*obsconn.ConnectionMetrics{"sheets": gateway.Metrics()}
	if exec, ok := executor.(interface{ Metrics() *obsconn.ConnectionMetrics }); ok {
		connections["executor"] = exec.Metrics()
	}
	if registryClient != nil {
		if rc, ok := registryClient.(interface{ Metrics() *obsconn.ConnectionMetrics }); ok {
			connections["profile_registry"] = rc.Metrics()
		}
	}

	a := &App{
		Config:          cfg,
		Logger:          logger,
		Gateway:         gateway,
		Locks:           locks,
		Shared:          shared,
		Profiles:        profiles,
		Executor:        executor,
		Notifier:        notifier,
		Registry:        usecase.NewScheduleRegistry(),
		tracingShutdown: tracingShutdown,
	}

	var auditSink usecase.AuditRecorder
	if cfg.AuditDBURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.AuditDBURL)
		if err != nil {
			return nil, fmt.Errorf("op=app.New: audit pool: %w", err)
		}
		a.pgPool = pool
		sink := audit.NewSink(pool)
		if err := sink.EnsureSchema(ctx); err != nil {
			slog.Warn("audit schema setup failed; continuing without a guarantee of the table's existence", slog.Any("error", err))
		}
		auditSink = sink
	}

	// Wired after the audit pool so a configured rate limiter shares the
	// same pool for its bucket-persistence fallback (redis_lua_limiter.go).
	if err := a.wireRateLimiter(ctx, cfg); err != nil {
		return nil, err
	}

	a.Worker = usecase.NewWorkerLoop(gateway, locks, profiles, executor, shared, notifier, a.Limiter).WithAudit(auditSink)
	a.Router = httpserver.NewRouter(a.Registry, cfg.ServerShutdownTimeout, connections)

	return a, nil
}

// buildExecutor selects the reference TransitionExecutor adapter named by
// EXECUTOR_MODE. Real browser automation is out of scope (spec §1
// Non-goals); these are the two reference shapes the port supports.
func buildExecutor(cfg config.Config, maxElapsed, initial, maxInterval time.Duration) (domain.TransitionExecutor, error) {
	switch cfg.ExecutorMode {
	case "", "stub":
		return stub.New(0), nil
	case "http":
		if cfg.ExecutorURL == "" {
			return nil, fmt.Errorf("op=app.buildExecutor: EXECUTOR_MODE=http requires EXECUTOR_URL")
		}
		return httpexec.New(cfg.ExecutorURL, &http.Client{Timeout: cfg.ExecutorTimeout}, maxElapsed, initial, maxInterval), nil
	default:
		return nil, fmt.Errorf("op=app.buildExecutor: unknown EXECUTOR_MODE %q", cfg.ExecutorMode)
	}
}

// buildNotifier fans out to every configured sink (component K); LogNotifier
// always participates so critical events are never silently dropped when
// Slack is unreachable or unconfigured.
func buildNotifier(cfg config.Config) domain.Notifier {
	sinks := []domain.Notifier{notify.NewLogNotifier()}
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, notify.NewSlackNotifier(cfg.SlackWebhookURL, ""))
	}
	return notify.NewMulti(sinks...)
}

// wireRateLimiter attaches the cluster-wide additive rate limiter when
// RATE_LIMIT_REDIS_URL is set. It never participates in scheduling
// (invariant 1): with RATE_LIMIT_REDIS_URL unset a.Limiter stays nil and
// WorkerLoop skips the throttling check; with Redis unreachable, Allow
// returns an error and WorkerLoop lets the row proceed unthrottled.
func (a *App) wireRateLimiter(ctx context.Context, cfg config.Config) error {
	if cfg.RateLimitRedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RateLimitRedisURL)
	if err != nil {
		return fmt.Errorf("op=app.wireRateLimiter: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	a.redisClient = rdb

	buckets := map[string]ratelimiter.BucketConfig{
		"transition": ratelimiter.NewBucketConfigFromPerMinute(cfg.RateLimitPerMinute),
	}
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, a.pgPool, buckets)
	if a.pgPool != nil {
		if err := limiter.WarmFromPostgres(ctx); err != nil {
			slog.Warn("rate limiter: failed to warm buckets from postgres mirror, starting at full capacity", slog.Any("error", err))
		}
	}
	a.Limiter = limiter
	return nil
}

// NewBatchProcessor constructs a BatchProcessor bound to kind, for the
// `batch pause|resume` CLI subcommands (spec §4.9). Each invocation gets
// its own processor rather than a shared field because concurrency/batch
// tuning is supplied per invocation, not at startup.
func (a *App) NewBatchProcessor(kind domain.TransitionKind) *usecase.BatchProcessor {
	return usecase.NewBatchProcessor(a.Executor, a.Profiles, kind)
}

// Close releases every resource App opened. Safe to call even when the
// corresponding optional dependency was never wired.
func (a *App) Close(ctx context.Context) error {
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.tracingShutdown != nil {
		return a.tracingShutdown(ctx)
	}
	return nil
}
