package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

type fakeSink struct {
	called bool
	err    error
}

func (f *fakeSink) Notify(ctx domain.Context, event domain.NotificationEvent) error {
	f.called = true
	return f.err
}

func TestMultiCallsEverySinkDespiteFailure(t *testing.T) {
	a := &fakeSink{err: errors.New("boom")}
	b := &fakeSink{}
	m := NewMulti(a, b)

	err := m.Notify(t.Context(), domain.NotificationEvent{
		Severity: domain.SeverityCritical,
		Title:    "test",
		At:       time.Now(),
	})
	if err == nil {
		t.Fatal("expected the first sink's error to propagate")
	}
	if !a.called || !b.called {
		t.Fatal("expected every sink to be called regardless of earlier failures")
	}
}

func TestLogNotifierNeverErrors(t *testing.T) {
	n := NewLogNotifier()
	if err := n.Notify(t.Context(), domain.NotificationEvent{Severity: domain.SeverityInfo}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
