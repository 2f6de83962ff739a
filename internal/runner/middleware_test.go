package runner

import (
	"context"
	"testing"
	"time"

	"github.com/juvistr/draftspec/internal/registrar"
	"github.com/juvistr/draftspec/internal/spectree"
)

// fakeSnapshotStore is an in-memory SnapshotComparer for tests; the
// on-disk implementation lives in internal/snapshotstore.
type fakeSnapshotStore struct {
	stored  map[string]string
	updated map[string]string
}

func newFakeSnapshotStore(stored map[string]string) *fakeSnapshotStore {
	return &fakeSnapshotStore{stored: stored, updated: map[string]string{}}
}

func (f *fakeSnapshotStore) Compare(key string, actual []byte) (bool, string, error) {
	stored, ok := f.stored[key]
	if !ok {
		return false, "no stored snapshot for " + key, nil
	}
	if stored == string(actual) {
		return true, "", nil
	}
	return false, stored + " != " + string(actual), nil
}

func (f *fakeSnapshotStore) Update(key string, actual []byte) error {
	f.updated[key] = string(actual)
	return nil
}

func runOneSpec(t *testing.T, mw SnapshotMiddleware, body spectree.SpecBody) spectree.SpecResult {
	t.Helper()
	r := registrar.New("demo.dspec")
	_ = r.It("x", 1, body)
	root := r.Finish()
	specs := spectree.Flatten(root)
	hr := NewHookRunner(specs)

	var result spectree.SpecResult
	sched := &Scheduler{
		Hooks:       hr,
		Degree:      1,
		Middlewares: []Middleware{mw.Wrap},
		OnResult:    func(r spectree.SpecResult) { result = r },
	}
	sched.Run(context.Background(), specs)
	return result
}

func TestSnapshotMiddleware_MatchingSnapshotPasses(t *testing.T) {
	store := newFakeSnapshotStore(map[string]string{"x": "hello"})
	result := runOneSpec(t, SnapshotMiddleware{Store: store}, func(ctx context.Context) error {
		return MatchSnapshot(ctx, "x", []byte("hello"))
	})
	if result.Status != spectree.StatusPassed {
		t.Fatalf("want passed, got %s (%+v)", result.Status, result.Failure)
	}
	if len(store.updated) != 0 {
		t.Fatalf("want no snapshot rewritten on a match, got %v", store.updated)
	}
}

func TestSnapshotMiddleware_MismatchFailsWithDiff(t *testing.T) {
	store := newFakeSnapshotStore(map[string]string{"x": "hello"})
	result := runOneSpec(t, SnapshotMiddleware{Store: store}, func(ctx context.Context) error {
		return MatchSnapshot(ctx, "x", []byte("goodbye"))
	})
	if result.Status != spectree.StatusFailed {
		t.Fatalf("want failed, got %s", result.Status)
	}
	if result.Failure == nil || result.Failure.Category != spectree.FailureAssertion {
		t.Fatalf("want Assertion category, got %+v", result.Failure)
	}
	if result.Failure.Actual == "" {
		t.Fatalf("want a structured diff in Actual, got %+v", result.Failure)
	}
	if len(store.updated) != 0 {
		t.Fatalf("want no snapshot rewritten outside update mode, got %v", store.updated)
	}
}

func TestSnapshotMiddleware_UpdateModeRewritesAndPasses(t *testing.T) {
	store := newFakeSnapshotStore(map[string]string{"x": "hello"})
	result := runOneSpec(t, SnapshotMiddleware{Store: store, UpdateMode: true}, func(ctx context.Context) error {
		return MatchSnapshot(ctx, "x", []byte("goodbye"))
	})
	if result.Status != spectree.StatusPassed {
		t.Fatalf("want passed in update mode, got %s (%+v)", result.Status, result.Failure)
	}
	if result.Failure != nil {
		t.Fatalf("want no failure payload once rewritten, got %+v", result.Failure)
	}
	if store.updated["x"] != "goodbye" {
		t.Fatalf("want snapshot rewritten to %q, got %v", "goodbye", store.updated)
	}
}

func TestSnapshotMiddleware_NoComparisonCallLeavesResultUntouched(t *testing.T) {
	store := newFakeSnapshotStore(nil)
	result := runOneSpec(t, SnapshotMiddleware{Store: store}, func(ctx context.Context) error {
		return nil
	})
	if result.Status != spectree.StatusPassed {
		t.Fatalf("want passed, got %s", result.Status)
	}
}

func runWithMiddleware(t *testing.T, mw Middleware, body spectree.SpecBody) spectree.SpecResult {
	t.Helper()
	r := registrar.New("demo.dspec")
	_ = r.It("x", 1, body)
	root := r.Finish()
	specs := spectree.Flatten(root)

	var result spectree.SpecResult
	sched := &Scheduler{
		Hooks:       NewHookRunner(specs),
		Degree:      1,
		Middlewares: []Middleware{mw},
		OnResult:    func(r spectree.SpecResult) { result = r },
	}
	sched.Run(context.Background(), specs)
	return result
}

func TestTimeoutMiddleware_TripsOnSlowBody(t *testing.T) {
	result := runWithMiddleware(t, TimeoutMiddleware{Duration: 10 * time.Millisecond}.Wrap,
		func(ctx context.Context) error {
			select {
			case <-time.After(5 * time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	if result.Status != spectree.StatusFailed {
		t.Fatalf("want failed, got %s", result.Status)
	}
	if result.Failure == nil || result.Failure.Category != spectree.FailureTimeout {
		t.Fatalf("want Timeout category, got %+v", result.Failure)
	}
}

func TestTimeoutMiddleware_ZeroDurationNeverTrips(t *testing.T) {
	result := runWithMiddleware(t, TimeoutMiddleware{}.Wrap,
		func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		})
	if result.Status != spectree.StatusPassed {
		t.Fatalf("want passed with no timeout configured, got %s", result.Status)
	}
}

type fakeTracker struct {
	hits int
}

func (f *fakeTracker) Snapshot() map[string]any {
	return map[string]any{"hits": f.hits}
}

func (f *fakeTracker) Delta(before map[string]any) map[string]any {
	return map[string]any{"new_hits": f.hits - before["hits"].(int)}
}

func TestCoverageMiddleware_AttachesDelta(t *testing.T) {
	tracker := &fakeTracker{hits: 3}
	result := runWithMiddleware(t, CoverageMiddleware{Tracker: tracker}.Wrap,
		func(ctx context.Context) error {
			tracker.hits += 4
			return nil
		})
	if result.Coverage == nil {
		t.Fatal("want a coverage delta attached")
	}
	if got := result.Coverage.Data["new_hits"]; got != 4 {
		t.Fatalf("want delta of 4 hits, got %v", got)
	}
}

func TestCoverageMiddleware_NilTrackerPassesThrough(t *testing.T) {
	result := runWithMiddleware(t, CoverageMiddleware{}.Wrap,
		func(ctx context.Context) error { return nil })
	if result.Status != spectree.StatusPassed || result.Coverage != nil {
		t.Fatalf("want untouched passing result, got %+v", result)
	}
}

func TestDelayForAttempt_DeterministicWithJitter(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Factor: 2, MaxDelay: time.Second, Jitter: true}
	a := DelayForAttempt(3, cfg, "seed")
	b := DelayForAttempt(3, cfg, "seed")
	if a != b {
		t.Fatalf("same seed must give the same delay, got %v and %v", a, b)
	}
	if a < 50*time.Millisecond {
		t.Fatalf("jitter halves the base at most, got %v", a)
	}
}
