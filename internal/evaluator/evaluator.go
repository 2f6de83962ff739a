// Package evaluator defines the Script Evaluator boundary (spec.md §6):
// the core depends on an evaluator that loads a spec file, drives the
// ambient registrar, and returns the resulting tree. The evaluator's
// actual script-execution machinery is out of core scope; this package
// only specifies the interface and a fake used by the core's own tests.
package evaluator

import (
	"context"

	"github.com/juvistr/draftspec/internal/registrar"
	"github.com/juvistr/draftspec/internal/spectree"
)

// Evaluator runs one spec file's declarations and returns its root context.
type Evaluator interface {
	Evaluate(ctx context.Context, file string) (*spectree.SpecContext, error)
}

// Func adapts a plain function to an Evaluator.
type Func func(ctx context.Context, file string) (*spectree.SpecContext, error)

func (f Func) Evaluate(ctx context.Context, file string) (*spectree.SpecContext, error) {
	return f(ctx, file)
}

// BuilderFunc populates a Registrar's declarations for one file; used by
// the fake evaluator in tests, since the real dialect's parsing/execution
// is out of scope.
type BuilderFunc func(r *registrar.Registrar)

// Fake drives a registrar from a table of per-file builder functions
// instead of evaluating real script source, standing in for the real
// evaluator in core tests.
type Fake struct {
	Builders map[string]BuilderFunc
}

func (f *Fake) Evaluate(ctx context.Context, file string) (*spectree.SpecContext, error) {
	r := registrar.New(file)
	if build, ok := f.Builders[file]; ok && build != nil {
		build(r)
	}
	return r.Finish(), nil
}
