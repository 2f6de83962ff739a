package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/juvistr/draftspec/internal/specerr"
	"github.com/juvistr/draftspec/internal/spectree"
)

// contextState tracks, per SpecContext, whether before_all has already run
// and how many runnable specs under it remain, so the scheduler knows when
// to fire after_all. Guarded by mu since workers may claim specs from the
// same context concurrently (spec.md §5).
type contextState struct {
	mu           sync.Mutex
	beforeAllRan bool
	beforeAllErr error
	remaining    int
	afterAllRan  bool
}

// HookRunner owns the per-context state for one scheduler run and
// sequences before_all/before_each/body/after_each/after_all exactly as
// spec.md §4.C6 "Hook ordering" specifies.
type HookRunner struct {
	mu     sync.Mutex
	states map[*spectree.SpecContext]*contextState
}

// NewHookRunner precomputes each context's spec countdown from the
// flattened list the scheduler will be handed. Every spec in that list
// decrements its ancestors' countdown exactly once, via the scheduler's
// FinishSpec call, so after_all fires once the last spec under a context
// has been accounted for, even when that last spec never ran (bail:
// after_all still runs for any context whose before_all ran).
func NewHookRunner(specs []*spectree.SpecDefinition) *HookRunner {
	hr := &HookRunner{states: make(map[*spectree.SpecContext]*contextState)}
	for _, s := range specs {
		for _, c := range spectree.AncestorChain(s.Parent()) {
			hr.stateFor(c).remaining++
		}
	}
	return hr
}

// FinishSpec accounts for one spec's terminal outcome: its ancestors'
// countdowns decrement, and after_all fires inner-to-outer for any
// context this exhausts whose before_all ran. The scheduler calls it
// exactly once per spec — after the full middleware pipeline returns, or
// when a bail skip bypasses the pipeline entirely — never per attempt,
// so a retried spec cannot fire after_all early.
func (hr *HookRunner) FinishSpec(spec *spectree.SpecDefinition) {
	hr.finishSpec(spectree.AncestorChain(spec.Parent()))
}

func (hr *HookRunner) stateFor(c *spectree.SpecContext) *contextState {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	st, ok := hr.states[c]
	if !ok {
		st = &contextState{}
		hr.states[c] = st
	}
	return st
}

// RunSpec executes one attempt of a spec's hook-wrapped lifecycle: lazy
// before_all outer to inner, before_each outer to inner, the body, and
// after_each inner to outer. It never itself decides pass/fail for the
// body; it returns the first error encountered along with which phase
// produced it. The after_all countdown is NOT touched here — retry
// middleware may invoke this several times for one spec, and only the
// scheduler's per-spec FinishSpec call decrements.
func (hr *HookRunner) RunSpec(ctx context.Context, spec *spectree.SpecDefinition) (err error, category spectree.FailureCategory) {
	chain := spectree.AncestorChain(spec.Parent())

	for _, c := range chain {
		if setupErr := hr.runBeforeAllOnce(ctx, c); setupErr != nil {
			return setupErr, spectree.FailureSetup
		}
	}

	for _, c := range chain {
		for _, h := range c.Hooks(spectree.HookBeforeEach) {
			if hookErr := invokeHook(ctx, h); hookErr != nil {
				_ = hr.runAfterEachChain(ctx, chain)
				return specerr.NewSetup("before_each hook failed", hookErr), spectree.FailureSetup
			}
		}
	}

	bodyErr := invokeHook(ctx, spectree.HookFunc(spec.Body))

	teardownErr := hr.runAfterEachChain(ctx, chain)

	if bodyErr != nil {
		return bodyErr, classifyBodyFailure(bodyErr)
	}
	if teardownErr != nil {
		return teardownErr, spectree.FailureTeardown
	}
	return nil, ""
}

// classifyBodyFailure distinguishes an expectation mismatch from an
// unhandled exception per spec.md §7: a *specerr.AssertionError (surfaced
// by the assertion layer, not constructed by invokeHook's recover) is
// Assertion; everything else — including invokeHook's panic-wrapped
// RuntimeError — is Runtime.
func classifyBodyFailure(err error) spectree.FailureCategory {
	var assertionErr *specerr.AssertionError
	if errors.As(err, &assertionErr) {
		return spectree.FailureAssertion
	}
	return spectree.FailureRuntime
}

func (hr *HookRunner) runBeforeAllOnce(ctx context.Context, c *spectree.SpecContext) error {
	st := hr.stateFor(c)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.beforeAllRan {
		return st.beforeAllErr
	}
	st.beforeAllRan = true
	for _, h := range c.Hooks(spectree.HookBeforeAll) {
		if err := invokeHook(ctx, h); err != nil {
			st.beforeAllErr = specerr.NewSetup("before_all hook failed", err)
			return st.beforeAllErr
		}
	}
	return nil
}

// runAfterEachChain runs after_each inner-to-outer (reverse of the
// ancestor chain, which is outer-to-inner), always, regardless of prior
// failures; it returns the first error encountered, if any, wrapped as a
// TeardownError so errors.As can dispatch on the phase.
func (hr *HookRunner) runAfterEachChain(ctx context.Context, chain []*spectree.SpecContext) error {
	var first error
	for i := len(chain) - 1; i >= 0; i-- {
		for _, h := range chain[i].Hooks(spectree.HookAfterEach) {
			if err := invokeHook(ctx, h); err != nil && first == nil {
				first = specerr.NewTeardown("after_each hook failed", err)
			}
		}
	}
	return first
}

// finishSpec decrements each ancestor's remaining countdown and fires
// after_all, inner-to-outer, for any context that just exhausted its
// runnable specs.
func (hr *HookRunner) finishSpec(chain []*spectree.SpecContext) {
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		st := hr.stateFor(c)
		st.mu.Lock()
		st.remaining--
		fire := st.remaining <= 0 && !st.afterAllRan && st.beforeAllRan
		if fire {
			st.afterAllRan = true
		}
		st.mu.Unlock()
		if fire {
			for _, h := range c.Hooks(spectree.HookAfterAll) {
				_ = invokeHook(context.Background(), h)
			}
		}
	}
}

func invokeHook(ctx context.Context, h spectree.HookFunc) (err error) {
	if h == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = specerr.NewRuntime(fmt.Sprintf("panic: %v", r), string(debug.Stack()))
		}
	}()
	return h(ctx)
}
