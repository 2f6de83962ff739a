// Package registrar implements the ambient DSL surface (spec.md §4.C2):
// describe/context/it/fit/xit/before/before_all/after/after_all/tag/let.
//
// Declaration is single-threaded per spec file (spec.md §5), so the
// "thread-local" stacks the original dialect relies on are modeled here as
// plain, non-exported slices owned by one Registrar instance: each script
// file gets its own Registrar, and the evaluator (out of core scope) is
// responsible for not sharing one across concurrent file evaluations.
package registrar

import (
	"context"
	"strings"

	"github.com/juvistr/draftspec/internal/specerr"
	"github.com/juvistr/draftspec/internal/spectree"
)

// Registrar is the ambient environment a script evaluator exposes DSL calls
// against. describe/context push and pop the declaration stack; tag pushes
// and pops the tag-scope stack; it/fit/xit add leaves to the stack's top.
type Registrar struct {
	sourceFile string

	declStack []*spectree.SpecContext
	tagStack  [][]string

	root *spectree.SpecContext
}

// New creates a Registrar rooted at a fresh, empty SpecContext for one
// spec file's declarations.
func New(sourceFile string) *Registrar {
	root := spectree.NewRootContext("")
	return &Registrar{
		sourceFile: sourceFile,
		declStack:  []*spectree.SpecContext{root},
		root:       root,
	}
}

func (r *Registrar) top() *spectree.SpecContext {
	return r.declStack[len(r.declStack)-1]
}

func (r *Registrar) activeTags() []string {
	if len(r.tagStack) == 0 {
		return nil
	}
	return r.tagStack[len(r.tagStack)-1]
}

// Describe pushes a new child context, runs body (which is expected to make
// further Registrar calls to populate it), then pops. context() is an alias
// exposed identically by the evaluator.
func (r *Registrar) Describe(description string, body func()) error {
	child, err := r.top().AddChildContext(description, r.activeTags())
	if err != nil {
		return err
	}
	r.declStack = append(r.declStack, child)
	defer func() { r.declStack = r.declStack[:len(r.declStack)-1] }()
	if body != nil {
		body()
	}
	return nil
}

// Tag pushes a tag set for the duration of body, unioned with any enclosing
// tag scope, then pops.
func (r *Registrar) Tag(tags []string, body func()) {
	base := r.activeTags()
	merged := make([]string, 0, len(base)+len(tags))
	merged = append(merged, base...)
	merged = append(merged, tags...)
	r.tagStack = append(r.tagStack, merged)
	defer func() { r.tagStack = r.tagStack[:len(r.tagStack)-1] }()
	if body != nil {
		body()
	}
}

// It declares a regular spec. A nil body marks it pending.
func (r *Registrar) It(description string, line int, body spectree.SpecBody) error {
	return r.addSpec(description, line, body, false, false)
}

// Fit declares a focused spec (spec.md's `fit`).
func (r *Registrar) Fit(description string, line int, body spectree.SpecBody) error {
	return r.addSpec(description, line, body, true, false)
}

// Xit declares an explicitly skipped spec (spec.md's `xit`).
func (r *Registrar) Xit(description string, line int, body spectree.SpecBody) error {
	return r.addSpec(description, line, body, false, true)
}

func (r *Registrar) addSpec(description string, line int, body spectree.SpecBody, focused, skipped bool) error {
	tags := map[string]struct{}{}
	for _, t := range r.activeTags() {
		if t = strings.TrimSpace(t); t != "" {
			tags[t] = struct{}{}
		}
	}
	def := &spectree.SpecDefinition{
		Description: description,
		SourceFile:  r.sourceFile,
		Line:        line,
		Body:        body,
		Focused:     focused,
		Skipped:     skipped,
		Tags:        tags,
	}
	return r.top().AddSpec(def)
}

// Before registers a before_each hook on the current context.
func (r *Registrar) Before(fn spectree.HookFunc) error {
	return r.top().AddHook(spectree.HookBeforeEach, fn)
}

// BeforeAll registers a before_all hook on the current context.
func (r *Registrar) BeforeAll(fn spectree.HookFunc) error {
	return r.top().AddHook(spectree.HookBeforeAll, fn)
}

// After registers an after_each hook on the current context.
func (r *Registrar) After(fn spectree.HookFunc) error {
	return r.top().AddHook(spectree.HookAfterEach, fn)
}

// AfterAll registers an after_all hook on the current context.
func (r *Registrar) AfterAll(fn spectree.HookFunc) error {
	return r.top().AddHook(spectree.HookAfterAll, fn)
}

// Let declares a lazy fixture on the current context.
func (r *Registrar) Let(name string, factory spectree.FixtureFactory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return specerr.NewInvalidSpec("fixture name must be non-empty")
	}
	return r.top().DeclareFixture(name, factory)
}

// Get is a convenience re-export of spectree.GetFixture for script
// environments that want it accessible through the Registrar namespace.
func Get[T any](ctx context.Context, name string) (T, error) {
	return spectree.GetFixture[T](ctx, name)
}

// Finish ends the declaration phase: it closes the whole tree (making it
// read-only, spec.md §3) and returns the root context for the scheduler.
func (r *Registrar) Finish() *spectree.SpecContext {
	r.root.Close()
	return r.root
}
