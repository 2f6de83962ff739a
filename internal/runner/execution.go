// Package runner implements spec.md §4.C6: the middleware pipeline and
// scheduler that execute a runnable set of specs, preserving declaration
// order in emitted results regardless of parallelism degree.
package runner

import (
	"context"

	"github.com/juvistr/draftspec/internal/spectree"
)

// Execution carries everything one spec's run needs through the
// middleware chain: the target, its ancestor chain, and a mutable item bag
// middlewares use to communicate (the retry middleware records its attempt
// count there). The cancellation context travels beside it as the ctx
// argument of each middleware call.
type Execution struct {
	Spec      *spectree.SpecDefinition
	Ancestors []*spectree.SpecContext
	Position  int

	Items map[string]any
}

// Item fetches a value from the execution's item bag.
func (e *Execution) Item(key string) (any, bool) {
	v, ok := e.Items[key]
	return v, ok
}

// SetItem stores a value into the execution's item bag.
func (e *Execution) SetItem(key string, v any) {
	if e.Items == nil {
		e.Items = make(map[string]any)
	}
	e.Items[key] = v
}

// Next is what a middleware calls to continue the chain.
type Next func(ctx context.Context, exec *Execution) spectree.SpecResult

// Middleware wraps spec execution. Middlewares compose outward in
// registration order: the first registered wraps the last and executes
// first (spec.md §4.C6).
type Middleware func(ctx context.Context, exec *Execution, next Next) spectree.SpecResult

// Chain composes middlewares around base, outermost first.
func Chain(base Next, middlewares ...Middleware) Next {
	next := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		prev := next
		next = func(ctx context.Context, exec *Execution) spectree.SpecResult {
			return mw(ctx, exec, prev)
		}
	}
	return next
}
