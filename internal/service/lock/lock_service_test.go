package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// fakeGateway is a minimal in-memory stand-in implementing just the lock
// methods of domain.SheetGateway, guarded by a mutex to exercise the
// concurrent-acquire race from the worker-loop scenario suite.
type fakeGateway struct {
	mu     sync.Mutex
	tokens map[int]string
}

func newFakeGateway() *fakeGateway { return &fakeGateway{tokens: map[int]string{}} }

func (f *fakeGateway) ReadLock(ctx domain.Context, row domain.Row) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[row.RowIndex], nil
}

func (f *fakeGateway) WriteLock(ctx domain.Context, row domain.Row, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[row.RowIndex] = token
	return nil
}

func (f *fakeGateway) ListAllRows(ctx domain.Context) ([]domain.Row, error) { return nil, nil }
func (f *fakeGateway) RefetchByEmail(ctx domain.Context, email string) (domain.Row, bool, error) {
	return domain.Row{}, false, nil
}
func (f *fakeGateway) RecordSuccess(ctx domain.Context, row domain.Row, out domain.SuccessOutcome) error {
	return nil
}
func (f *fakeGateway) RecordRetryableFailure(ctx domain.Context, row domain.Row, out domain.FailureOutcome) (int, error) {
	return 0, nil
}
func (f *fakeGateway) RecordPermanentFailure(ctx domain.Context, row domain.Row, out domain.PermanentFailureOutcome) error {
	return nil
}
func (f *fakeGateway) AppendHistory(ctx domain.Context, row domain.Row, resultLine string) error {
	return nil
}
func (f *fakeGateway) SetPendingCheckAt(ctx domain.Context, row domain.Row, at time.Time) error {
	return nil
}
func (f *fakeGateway) SetPendingRetryAt(ctx domain.Context, row domain.Row, at time.Time) error {
	return nil
}
func (f *fakeGateway) ClearPendingColumns(ctx domain.Context, row domain.Row) error { return nil }
func (f *fakeGateway) ResolveProfileID(ctx domain.Context, email string) (string, bool, error) {
	return "", false, nil
}

func TestAcquireSucceedsOnUnlockedRow(t *testing.T) {
	gw := newFakeGateway()
	s := New(gw)
	row := domain.Row{RowIndex: 2}

	ok, err := s.Acquire(t.Context(), row)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
}

func TestAcquireFailsWhenHeldByAnotherFreshWorker(t *testing.T) {
	gw := newFakeGateway()
	other := New(gw)
	row := domain.Row{RowIndex: 2}
	if ok, err := other.Acquire(t.Context(), row); err != nil || !ok {
		t.Fatalf("setup acquire failed: %v %v", ok, err)
	}

	s := New(gw)
	ok, err := s.Acquire(t.Context(), row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected Acquire to fail against a freshly held lock")
	}
}

// TestAcquireVerifyDetectsClobber simulates the interleaving from spec §8
// scenario 2 deterministically: two workers both read the (unlocked) token
// before either writes, then B's write lands between A's write and A's
// verifying re-read. The steps are replayed directly on the gateway; the
// test checks that the verifying re-read returns B's token, which is what
// makes Acquire's read-back comparison fail for A.
func TestAcquireVerifyDetectsClobber(t *testing.T) {
	gw := newFakeGateway()
	row := domain.Row{RowIndex: 2}
	a := New(gw)
	b := New(gw)

	if _, err := gw.ReadLock(t.Context(), row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	aToken := formatToken(a.WorkerID(), time.Now())
	bToken := formatToken(b.WorkerID(), time.Now())
	if err := gw.WriteLock(t.Context(), row, aToken); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := gw.WriteLock(t.Context(), row, bToken); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, err := gw.ReadLock(t.Context(), row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after != bToken || after == aToken {
		t.Fatal("expected the final token to belong to worker B, not A")
	}
}

func TestReleaseClearsToken(t *testing.T) {
	gw := newFakeGateway()
	s := New(gw)
	row := domain.Row{RowIndex: 3}
	if ok, _ := s.Acquire(t.Context(), row); !ok {
		t.Fatal("setup acquire failed")
	}
	if err := s.Release(t.Context(), row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, _ := gw.ReadLock(t.Context(), row)
	if token != "" {
		t.Errorf("expected cleared token, got %q", token)
	}
}

func TestFilterUnlockedDropsFreshlyHeldRows(t *testing.T) {
	gw := newFakeGateway()
	owner := New(gw)
	held := domain.Row{RowIndex: 1, LockToken: formatToken("other-worker", time.Now())}
	stale := domain.Row{RowIndex: 2, LockToken: formatToken("other-worker", time.Now().Add(-10*time.Minute))}
	free := domain.Row{RowIndex: 3}

	out := owner.FilterUnlocked([]domain.Row{held, stale, free}, time.Now())
	if len(out) != 2 {
		t.Fatalf("expected 2 unlocked rows, got %d", len(out))
	}
	for _, r := range out {
		if r.RowIndex == held.RowIndex {
			t.Error("expected freshly held row to be filtered out")
		}
	}
}
