package usecase

import (
	"testing"
	"time"
)

func TestScheduleRegistryListAndCancel(t *testing.T) {
	reg := NewScheduleRegistry()
	cancelled := false
	dereg := reg.Register(&ScheduledTask{ID: "t1", Label: "worker run", StartedAt: time.Now(), Cancel: func() { cancelled = true }})

	if got := len(reg.List()); got != 1 {
		t.Fatalf("List len = %d, want 1", got)
	}
	if !reg.Cancel("t1") {
		t.Fatal("expected Cancel to find t1")
	}
	if !cancelled {
		t.Fatal("expected the cancel func to have been invoked")
	}
	dereg()
	if got := len(reg.List()); got != 0 {
		t.Fatalf("List len after deregister = %d, want 0", got)
	}
}

func TestScheduleRegistryCancelAll(t *testing.T) {
	reg := NewScheduleRegistry()
	count := 0
	reg.Register(&ScheduledTask{ID: "a", Cancel: func() { count++ }})
	reg.Register(&ScheduledTask{ID: "b", Cancel: func() { count++ }})

	if n := reg.CancelAll(); n != 2 {
		t.Fatalf("CancelAll = %d, want 2", n)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}
