package observability

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fairyhunter13/subscription-fleet/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields. When
// LOG_DIR is set, log lines are additionally written to a file under it;
// the actual log-shipping pipeline beyond that file is out of scope.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	// In dev, show debug level; in prod, default to info
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}

	var w io.Writer = os.Stdout
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			slog.Error("failed to create log dir, logging to stdout only", slog.Any("error", err))
		} else if f, err := os.OpenFile(filepath.Join(cfg.LogDir, "fleet-worker.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
			slog.Error("failed to open log file, logging to stdout only", slog.Any("error", err))
		} else {
			w = io.MultiWriter(os.Stdout, f)
		}
	}

	h := slog.NewJSONHandler(w, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}
