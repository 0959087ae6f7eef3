package notify

import (
	"log/slog"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// LogNotifier logs a NotificationEvent via slog. Used standalone in
// development, or layered under a Multi alongside SlackNotifier so every
// critical event is also captured in the structured log stream.
type LogNotifier struct{}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (l *LogNotifier) Notify(ctx domain.Context, event domain.NotificationEvent) error {
	attrs := []slog.Attr{
		slog.String("severity", string(event.Severity)),
		slog.String("title", event.Title),
		slog.String("detail", event.Detail),
		slog.String("email", event.Email),
	}
	switch event.Severity {
	case domain.SeverityCritical:
		slog.LogAttrs(ctx, slog.LevelError, "notification", attrs...)
	case domain.SeverityWarning:
		slog.LogAttrs(ctx, slog.LevelWarn, "notification", attrs...)
	default:
		slog.LogAttrs(ctx, slog.LevelInfo, "notification", attrs...)
	}
	return nil
}

// Multi fans a single NotificationEvent out to every configured Notifier,
// continuing past an individual sink's failure so one broken channel never
// silences the others.
type Multi struct {
	sinks []domain.Notifier
}

// NewMulti constructs a Multi from the given sinks, in the order they will
// be called.
func NewMulti(sinks ...domain.Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx domain.Context, event domain.NotificationEvent) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
