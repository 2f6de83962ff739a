package spectree

import (
	"context"
	"sync"

	"github.com/juvistr/draftspec/internal/specerr"
)

// LetScope is the per-spec lazy-fixture memoization scope (spec.md §3). It is
// created fresh for each spec body invocation and released once that spec's
// after_each chain completes.
type LetScope struct {
	mu     sync.Mutex
	values map[string]any
	leaf   *SpecContext
}

// NewLetScope creates a scope that resolves fixtures starting from leaf's own
// context, walking its ancestor chain on miss.
func NewLetScope(leaf *SpecContext) *LetScope {
	return &LetScope{values: map[string]any{}, leaf: leaf}
}

func (s *LetScope) resolve(ctx context.Context, name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[name]; ok {
		return v, nil
	}
	factory, _, ok := s.leaf.LookupFixture(name)
	if !ok {
		return nil, specerr.NewUnknownFixture(name)
	}
	v, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	s.values[name] = v
	return v, nil
}

type letScopeKeyType struct{}

var letScopeKey = letScopeKeyType{}

// WithLetScope returns a context carrying scope as the execution-phase
// ambient fixture scope, consulted by GetFixture.
func WithLetScope(ctx context.Context, scope *LetScope) context.Context {
	return context.WithValue(ctx, letScopeKey, scope)
}

func letScopeFromContext(ctx context.Context) (*LetScope, bool) {
	v, ok := ctx.Value(letScopeKey).(*LetScope)
	return v, ok
}

// GetFixture is the typed `get<T>(name)` DSL primitive. It must be called
// with a context derived from WithLetScope (i.e. from within a running spec
// body or one of its hooks); calling it elsewhere raises InvalidLifecycle.
// A name with no definition in scope raises UnknownFixture; a type mismatch
// raises FixtureTypeMismatch (spec.md §4.C2 Fail).
func GetFixture[T any](ctx context.Context, name string) (T, error) {
	var zero T
	scope, ok := letScopeFromContext(ctx)
	if !ok {
		return zero, specerr.NewInvalidLifecycle("get() called outside a spec body")
	}
	v, err := scope.resolve(ctx, name)
	if err != nil {
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		return zero, specerr.NewFixtureTypeMismatch(name, zero, v)
	}
	return tv, nil
}
