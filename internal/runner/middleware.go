package runner

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/juvistr/draftspec/internal/specerr"
	"github.com/juvistr/draftspec/internal/spectree"
)

// FilterMiddleware short-circuits without invoking next when Predicate
// returns false (spec.md §4.C6). An excluded spec still gets a terminal
// result: `pending` when the exclusion reason is a missing body,
// `skipped` for everything else (spec.md §4.C5 "Excluded specs still
// appear in results with the appropriate terminal status").
type FilterMiddleware struct {
	Predicate func(*spectree.SpecDefinition) (bool, spectree.SkipReason)
}

func (m FilterMiddleware) Wrap(ctx context.Context, exec *Execution, next Next) spectree.SpecResult {
	if m.Predicate != nil {
		if ok, reason := m.Predicate(exec.Spec); !ok {
			status := spectree.StatusSkipped
			if reason == spectree.SkipPending {
				status = spectree.StatusPending
			}
			return spectree.SpecResult{
				Spec:       exec.Spec,
				Status:     status,
				SkipReason: reason,
				Position:   exec.Position,
			}
		}
	}
	return next(ctx, exec)
}

// TimeoutMiddleware races next against Duration; zero Duration disables it
// (spec.md's "Default policy: no timeout unless configured").
type TimeoutMiddleware struct {
	Duration time.Duration
}

func (m TimeoutMiddleware) Wrap(ctx context.Context, exec *Execution, next Next) spectree.SpecResult {
	if m.Duration <= 0 {
		return next(ctx, exec)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan spectree.SpecResult, 1)
	go func() {
		done <- next(cctx, exec)
	}()

	timer := time.NewTimer(m.Duration)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-timer.C:
		cancel()
		<-done // let the in-flight body observe cancellation and return
		return spectree.SpecResult{
			Spec:     exec.Spec,
			Status:   spectree.StatusFailed,
			Position: exec.Position,
			Failure: &spectree.FailurePayload{
				Category: spectree.FailureTimeout,
				Message:  specerr.NewTimeout("spec exceeded timeout", m.Duration.String()).Error(),
			},
		}
	}
}

// BackoffConfig configures the Retry middleware's inter-attempt delay.
// Grounded on internal/attractor/engine/backoff.go's DelayForAttempt: an
// exponential backoff capped at MaxDelay, with optional deterministic
// jitter seeded by a stable string so retries are reproducible in tests.
type BackoffConfig struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DelayForAttempt returns the delay before the given 1-indexed retry
// attempt, identical in shape to the teacher's DelayForAttempt.
func DelayForAttempt(attempt int, cfg BackoffConfig, jitterSeed string) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	factor := cfg.Factor
	if factor <= 0 {
		factor = 1.0
	}
	base := float64(cfg.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if cfg.MaxDelay > 0 && base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		base *= 0.5 + jitterUnit(jitterSeed)
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func jitterUnit(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(sum[:8])
	const max = float64(^uint64(0))
	return float64(u) / max
}

// RetryMiddleware invokes next up to MaxRetries+1 times while the result
// is failed, attaching RetryMetadata to the final result (spec.md §4.C6).
type RetryMiddleware struct {
	MaxRetries int
	Backoff    BackoffConfig
	JitterSeed func(*spectree.SpecDefinition, int) string
}

func (m RetryMiddleware) Wrap(ctx context.Context, exec *Execution, next Next) spectree.SpecResult {
	var result spectree.SpecResult
	attempts := 0
	for {
		attempts++
		result = next(ctx, exec)
		if result.Status != spectree.StatusFailed || attempts > m.MaxRetries {
			break
		}
		seed := fmt.Sprintf("%s:%d", exec.Spec.Identity().String(), attempts)
		if m.JitterSeed != nil {
			seed = m.JitterSeed(exec.Spec, attempts)
		}
		delay := DelayForAttempt(attempts, m.Backoff, seed)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}
	if attempts > 1 || m.MaxRetries > 0 {
		result.Retry = &spectree.RetryMetadata{Attempts: attempts, MaxRetries: m.MaxRetries}
	}
	exec.SetItem("retry.attempts", attempts)
	return result
}

// SnapshotComparer is the minimal interface the Snapshot middleware needs;
// the concrete on-disk store lives in internal/snapshotstore.
type SnapshotComparer interface {
	Compare(key string, actual []byte) (matched bool, diff string, err error)
	Update(key string, actual []byte) error
}

// Snapshot is the comparison primitive the Snapshot middleware threads
// through the spec body's context (spec.md's "comparison primitives"),
// mirroring spectree.LetScope's ambient-via-context pattern. MatchSnapshot
// records the outcome of each call here; it does not itself fail the
// spec — the enclosing SnapshotMiddleware inspects the recording once the
// body returns and decides the result.
type Snapshot struct {
	mu      sync.Mutex
	store   SnapshotComparer
	checked bool
	matched bool
	key     string
	actual  []byte
	diff    string
}

type snapshotCtxKeyType struct{}

var snapshotCtxKey = snapshotCtxKeyType{}

// withSnapshot attaches snap to ctx for MatchSnapshot to find.
func withSnapshot(ctx context.Context, snap *Snapshot) context.Context {
	return context.WithValue(ctx, snapshotCtxKey, snap)
}

func snapshotFromContext(ctx context.Context) (*Snapshot, bool) {
	v, ok := ctx.Value(snapshotCtxKey).(*Snapshot)
	return v, ok
}

// MatchSnapshot compares actual against the stored snapshot for key. It
// must be called with a context derived from a run wrapped in
// SnapshotMiddleware; calling it elsewhere returns an error. The
// comparison's match/mismatch is recorded for the middleware to act on —
// MatchSnapshot itself never fails the spec.
func MatchSnapshot(ctx context.Context, key string, actual []byte) error {
	snap, ok := snapshotFromContext(ctx)
	if !ok {
		return fmt.Errorf("MatchSnapshot called outside a run configured with SnapshotMiddleware")
	}
	matched, diff, err := snap.store.Compare(key, actual)
	if err != nil {
		return err
	}
	snap.mu.Lock()
	snap.checked = true
	snap.matched = matched
	snap.key = key
	snap.actual = actual
	snap.diff = diff
	snap.mu.Unlock()
	return nil
}

// SnapshotMiddleware exposes Store to the spec body via MatchSnapshot and,
// once the body returns, resolves any recorded mismatch: in UpdateMode it
// rewrites the stored snapshot and reports the spec as passed (spec.md
// §4.C6 "in update mode, rewrites the stored snapshot and passes"); outside
// UpdateMode a mismatch marks the result failed with a structured diff.
type SnapshotMiddleware struct {
	Store      SnapshotComparer
	UpdateMode bool

	// StoreFor, when set, routes each spec to its own comparer (snapshot
	// documents are one file per spec file); Store is the single-document
	// fallback.
	StoreFor func(*spectree.SpecDefinition) SnapshotComparer
}

func (m SnapshotMiddleware) Wrap(ctx context.Context, exec *Execution, next Next) spectree.SpecResult {
	store := m.Store
	if m.StoreFor != nil {
		store = m.StoreFor(exec.Spec)
	}
	if store == nil {
		return next(ctx, exec)
	}
	snap := &Snapshot{store: store}
	result := next(withSnapshot(ctx, snap), exec)

	snap.mu.Lock()
	checked, matched, key, actual, diff := snap.checked, snap.matched, snap.key, snap.actual, snap.diff
	snap.mu.Unlock()

	if !checked || matched {
		return result
	}

	if m.UpdateMode {
		if err := store.Update(key, actual); err != nil {
			result.Status = spectree.StatusFailed
			result.Failure = &spectree.FailurePayload{
				Category: spectree.FailureRuntime,
				Message:  fmt.Sprintf("updating snapshot %q: %v", key, err),
			}
			return result
		}
		result.Status = spectree.StatusPassed
		result.Failure = nil
		return result
	}

	result.Status = spectree.StatusFailed
	result.Failure = &spectree.FailurePayload{
		Category: spectree.FailureAssertion,
		Message:  fmt.Sprintf("snapshot %q mismatch", key),
		Expected: "stored snapshot",
		Actual:   diff,
	}
	return result
}

// CoverageTracker is the minimal interface the Coverage middleware needs.
type CoverageTracker interface {
	Snapshot() map[string]any
	Delta(before map[string]any) map[string]any
}

// CoverageMiddleware brackets next with a coverage-tracker snapshot/delta
// and attaches it to the result (spec.md §4.C6).
type CoverageMiddleware struct {
	Tracker CoverageTracker
}

func (m CoverageMiddleware) Wrap(ctx context.Context, exec *Execution, next Next) spectree.SpecResult {
	if m.Tracker == nil {
		return next(ctx, exec)
	}
	before := m.Tracker.Snapshot()
	result := next(ctx, exec)
	result.Coverage = &spectree.CoverageDelta{Data: m.Tracker.Delta(before)}
	return result
}
