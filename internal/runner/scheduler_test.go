package runner

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juvistr/draftspec/internal/registrar"
	"github.com/juvistr/draftspec/internal/specerr"
	"github.com/juvistr/draftspec/internal/spectree"
)

func collect(t *testing.T, root *spectree.SpecContext, degree int) []spectree.SpecResult {
	t.Helper()
	specs := spectree.Flatten(root)
	hr := NewHookRunner(specs)
	var mu sync.Mutex
	var results []spectree.SpecResult
	sched := &Scheduler{
		Hooks:  hr,
		Degree: degree,
		OnResult: func(r spectree.SpecResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	}
	sched.Run(context.Background(), specs)
	return results
}

// S3 — Interleaved declaration order.
func TestScheduler_InterleavedDeclarationOrder(t *testing.T) {
	r := registrar.New("demo.dspec")
	var order []string
	var mu sync.Mutex
	record := func(name string) spectree.SpecBody {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	_ = r.It("a", 1, record("a"))
	_ = r.Describe("C", func() {
		_ = r.It("b", 2, record("b"))
	})
	_ = r.It("c", 3, record("c"))
	root := r.Finish()

	collect(t, root, 1)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("want [a b c], got %v", order)
	}
}

// S4 — Bail cascade.
func TestScheduler_BailCascade(t *testing.T) {
	r := registrar.New("demo.dspec")
	_ = r.It("p1", 1, func(ctx context.Context) error { return nil })
	_ = r.It("p2", 2, func(ctx context.Context) error { return nil })
	_ = r.It("FAIL", 3, func(ctx context.Context) error { return fmt.Errorf("boom") })
	_ = r.It("p4", 4, func(ctx context.Context) error { return nil })
	_ = r.It("p5", 5, func(ctx context.Context) error { return nil })
	root := r.Finish()

	specs := spectree.Flatten(root)
	hr := NewHookRunner(specs)
	var results []spectree.SpecResult
	sched := &Scheduler{
		Hooks:  hr,
		Degree: 1,
		Bail:   &Bail{},
		OnResult: func(res spectree.SpecResult) {
			results = append(results, res)
		},
	}
	sched.Run(context.Background(), specs)

	want := []spectree.Status{spectree.StatusPassed, spectree.StatusPassed, spectree.StatusFailed, spectree.StatusSkipped, spectree.StatusSkipped}
	for i, w := range want {
		if results[i].Status != w {
			t.Fatalf("spec %d: want %s got %s", i, w, results[i].Status)
		}
	}
}

// S5 — Retry with delay.
func TestRetryMiddleware_PassesAfterRetries(t *testing.T) {
	r := registrar.New("demo.dspec")
	attempt := 0
	_ = r.It("flaky", 1, func(ctx context.Context) error {
		attempt++
		if attempt < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	})
	root := r.Finish()
	specs := spectree.Flatten(root)
	hr := NewHookRunner(specs)

	var result spectree.SpecResult
	sched := &Scheduler{
		Hooks:       hr,
		Degree:      1,
		Middlewares: []Middleware{RetryMiddleware{MaxRetries: 2}.Wrap},
		OnResult:    func(r spectree.SpecResult) { result = r },
	}
	sched.Run(context.Background(), specs)

	if result.Status != spectree.StatusPassed {
		t.Fatalf("want passed, got %s", result.Status)
	}
	if result.Retry == nil || result.Retry.Attempts != 3 || result.Retry.MaxRetries != 2 {
		t.Fatalf("want retry metadata {3,2}, got %+v", result.Retry)
	}
}

// S2 — Parallel order preservation.
func TestScheduler_ParallelPreservesDeclarationOrder(t *testing.T) {
	r := registrar.New("demo.dspec")
	for i := 0; i < 20; i++ {
		n := i
		_ = r.It(fmt.Sprintf("s%d", n), n+1, func(ctx context.Context) error {
			time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
			return nil
		})
	}
	root := r.Finish()

	results := collect(t, root, 8)
	if len(results) != 20 {
		t.Fatalf("want 20 results, got %d", len(results))
	}
	for i, res := range results {
		want := fmt.Sprintf("s%d", i)
		if res.Spec.Description != want {
			t.Fatalf("position %d: want %s got %s", i, want, res.Spec.Description)
		}
	}
}

// An expectation mismatch inside a spec body reports Assertion, with the
// Expected/Actual values carried through, not Runtime (spec.md §7).
func TestBaseExecutor_AssertionFailureClassifiedDistinctFromRuntime(t *testing.T) {
	r := registrar.New("demo.dspec")
	_ = r.It("mismatch", 1, func(ctx context.Context) error {
		return specerr.NewAssertion("values differ", 42, 7)
	})
	_ = r.It("panics", 2, func(ctx context.Context) error {
		panic("boom")
	})
	root := r.Finish()

	results := collect(t, root, 1)
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}

	assertionResult := results[0]
	if assertionResult.Status != spectree.StatusFailed {
		t.Fatalf("want failed, got %s", assertionResult.Status)
	}
	if assertionResult.Failure == nil || assertionResult.Failure.Category != spectree.FailureAssertion {
		t.Fatalf("want Assertion category, got %+v", assertionResult.Failure)
	}
	if assertionResult.Failure.Expected != 42 || assertionResult.Failure.Actual != 7 {
		t.Fatalf("want expected/actual 42/7, got %+v", assertionResult.Failure)
	}

	runtimeResult := results[1]
	if runtimeResult.Failure == nil || runtimeResult.Failure.Category != spectree.FailureRuntime {
		t.Fatalf("want Runtime category, got %+v", runtimeResult.Failure)
	}
	if !strings.Contains(runtimeResult.Failure.Message, "boom") {
		t.Fatalf("want panic message preserved, got %q", runtimeResult.Failure.Message)
	}
	if runtimeResult.Failure.Stack == "" {
		t.Fatalf("want a captured stack trace for a panic")
	}
}

// A before_all crash fails every spec under the context with a Setup
// category, and the scheduler keeps going (spec.md §4.C6 Fail).
func TestScheduler_BeforeAllFailureFailsSpecsWithoutStopping(t *testing.T) {
	r := registrar.New("demo.dspec")
	_ = r.Describe("broken", func() {
		_ = r.BeforeAll(func(ctx context.Context) error { return fmt.Errorf("db down") })
		_ = r.It("one", 1, func(ctx context.Context) error { return nil })
		_ = r.It("two", 2, func(ctx context.Context) error { return nil })
	})
	_ = r.It("healthy", 3, func(ctx context.Context) error { return nil })
	root := r.Finish()

	results := collect(t, root, 1)
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}
	for i := 0; i < 2; i++ {
		if results[i].Status != spectree.StatusFailed {
			t.Fatalf("spec %d: want failed, got %s", i, results[i].Status)
		}
		if results[i].Failure == nil || results[i].Failure.Category != spectree.FailureSetup {
			t.Fatalf("spec %d: want Setup category, got %+v", i, results[i].Failure)
		}
	}
	if results[2].Status != spectree.StatusPassed {
		t.Fatalf("a sibling context must be unaffected, got %s", results[2].Status)
	}
}

// A retried spec re-enters the hook chain per attempt, but after_all must
// not fire until the context's other specs have also finished.
func TestScheduler_RetryDoesNotFireAfterAllEarly(t *testing.T) {
	r := registrar.New("demo.dspec")
	var order []string
	_ = r.Describe("suite", func() {
		_ = r.AfterAll(func(ctx context.Context) error { order = append(order, "after_all"); return nil })
		attempt := 0
		_ = r.It("flaky", 1, func(ctx context.Context) error {
			attempt++
			order = append(order, fmt.Sprintf("flaky-%d", attempt))
			if attempt < 3 {
				return fmt.Errorf("not yet")
			}
			return nil
		})
		_ = r.It("steady", 2, func(ctx context.Context) error { order = append(order, "steady"); return nil })
	})
	root := r.Finish()
	specs := spectree.Flatten(root)

	sched := &Scheduler{
		Hooks:       NewHookRunner(specs),
		Degree:      1,
		Middlewares: []Middleware{RetryMiddleware{MaxRetries: 2}.Wrap},
		OnResult:    func(spectree.SpecResult) {},
	}
	sched.Run(context.Background(), specs)

	want := []string{"flaky-1", "flaky-2", "flaky-3", "steady", "after_all"}
	if len(order) != len(want) {
		t.Fatalf("want %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("position %d: want %s, got %v", i, want[i], order)
		}
	}
}

// Hook ordering across nested contexts.
func TestScheduler_HookOrdering(t *testing.T) {
	r := registrar.New("demo.dspec")
	var order []string
	trace := func(name string) spectree.HookFunc {
		return func(ctx context.Context) error { order = append(order, name); return nil }
	}
	_ = r.BeforeAll(trace("outer-before_all"))
	_ = r.Before(trace("outer-before_each"))
	_ = r.After(trace("outer-after_each"))
	_ = r.AfterAll(trace("outer-after_all"))
	_ = r.Describe("inner", func() {
		_ = r.BeforeAll(trace("inner-before_all"))
		_ = r.Before(trace("inner-before_each"))
		_ = r.After(trace("inner-after_each"))
		_ = r.AfterAll(trace("inner-after_all"))
		_ = r.It("x", 1, func(ctx context.Context) error { order = append(order, "body"); return nil })
	})
	root := r.Finish()

	collect(t, root, 1)

	want := []string{
		"outer-before_all", "inner-before_all",
		"outer-before_each", "inner-before_each",
		"body",
		"inner-after_each", "outer-after_each",
		"inner-after_all", "outer-after_all",
	}
	if len(order) != len(want) {
		t.Fatalf("want %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("position %d: want %s got %s (%v)", i, want[i], order[i], order)
		}
	}
}
