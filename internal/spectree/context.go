// Package spectree implements the spec tree data model: nested contexts,
// specs, hooks, tags, and lazy fixtures (spec.md §3, §4.C1).
package spectree

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/juvistr/draftspec/internal/specerr"
)

// HookKind identifies one of the four hook slots a context may carry.
type HookKind int

const (
	HookBeforeAll HookKind = iota
	HookAfterAll
	HookBeforeEach
	HookAfterEach
)

func (k HookKind) String() string {
	switch k {
	case HookBeforeAll:
		return "before_all"
	case HookAfterAll:
		return "after_all"
	case HookBeforeEach:
		return "before_each"
	case HookAfterEach:
		return "after_each"
	default:
		return "unknown"
	}
}

// HookFunc is a setup/teardown thunk. It may block; callers pass a
// context.Context for cancellation the way the rest of the engine does.
type HookFunc func(ctx context.Context) error

// FixtureFactory produces a lazily materialized fixture value (spec.md's
// `let`/`get<T>`).
type FixtureFactory func(ctx context.Context) (any, error)

// Entry is one declaration-order child of a SpecContext: either a nested
// context or a leaf spec. Contexts and specs are interleaved in the single
// slice a SpecContext owns, per spec.md §3's ordering invariant (Scenario S3).
type Entry struct {
	Context *SpecContext
	Spec    *SpecDefinition
}

// SpecContext is a node in the nested describe/context tree.
type SpecContext struct {
	mu sync.Mutex

	description string
	parent      *SpecContext

	entries []Entry

	hooks map[HookKind][]HookFunc

	tags map[string]struct{}

	fixtures map[string]FixtureFactory

	closed bool
}

// NewRootContext creates the tree's root. description is usually empty.
func NewRootContext(description string) *SpecContext {
	return &SpecContext{
		description: description,
		hooks:       map[HookKind][]HookFunc{},
		tags:        map[string]struct{}{},
		fixtures:    map[string]FixtureFactory{},
	}
}

// AddChildContext creates and appends a new child context under c, inheriting
// c's tags unioned with the tags passed here. It fails if c is closed.
func (c *SpecContext) AddChildContext(description string, tags []string) (*SpecContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, specerr.NewInvalidSpec("cannot declare a child context after the declaration phase has ended")
	}
	child := &SpecContext{
		description: description,
		parent:      c,
		hooks:       map[HookKind][]HookFunc{},
		tags:        unionTags(c.tags, tags),
		fixtures:    map[string]FixtureFactory{},
	}
	c.entries = append(c.entries, Entry{Context: child})
	return child, nil
}

// AddSpec appends a leaf spec, inheriting c's active tag set.
func (c *SpecContext) AddSpec(def *SpecDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return specerr.NewInvalidSpec("cannot declare a spec after the declaration phase has ended")
	}
	if !def.Pending() && strings.TrimSpace(def.Description) == "" {
		return specerr.NewInvalidSpec("spec description must be non-empty unless pending")
	}
	def.parent = c
	if def.Tags == nil {
		def.Tags = map[string]struct{}{}
	}
	for t := range c.tags {
		def.Tags[t] = struct{}{}
	}
	c.entries = append(c.entries, Entry{Spec: def})
	return nil
}

// AddHook appends a hook of the given kind, in declaration order (spec.md §9
// redesign: ordered list per kind, not overwrite-on-redeclare).
func (c *SpecContext) AddHook(kind HookKind, fn HookFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return specerr.NewInvalidSpec("cannot declare a hook after the declaration phase has ended")
	}
	c.hooks[kind] = append(c.hooks[kind], fn)
	return nil
}

// DeclareFixture registers a lazy fixture factory under name, unique within
// this context. A duplicate name raises InvalidSpec (spec.md §4.C1 Fail).
func (c *SpecContext) DeclareFixture(name string, factory FixtureFactory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return specerr.NewInvalidSpec("cannot declare a fixture after the declaration phase has ended")
	}
	if _, exists := c.fixtures[name]; exists {
		return specerr.NewInvalidSpec("duplicate fixture name in context: " + name)
	}
	c.fixtures[name] = factory
	return nil
}

// LookupFixture searches this context's own fixtures, then walks the parent
// chain, returning the first match (nearer contexts shadow ancestors).
func (c *SpecContext) LookupFixture(name string) (FixtureFactory, *SpecContext, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		f, ok := cur.fixtures[name]
		cur.mu.Unlock()
		if ok {
			return f, cur, true
		}
	}
	return nil, nil, false
}

// Close marks the declaration phase over for this context and its entire
// subtree. Once closed, the tree is read-only for the rest of the run
// (spec.md §3 invariant).
func (c *SpecContext) Close() {
	c.mu.Lock()
	c.closed = true
	entries := append([]Entry{}, c.entries...)
	c.mu.Unlock()
	for _, e := range entries {
		if e.Context != nil {
			e.Context.Close()
		}
	}
}

// Entries returns the declaration-order child entries (contexts and specs
// interleaved).
func (c *SpecContext) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry{}, c.entries...)
}

// Hooks returns the hooks registered for kind, in declaration order.
func (c *SpecContext) Hooks(kind HookKind) []HookFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]HookFunc{}, c.hooks[kind]...)
}

// Description returns this context's own description (may be empty at root).
func (c *SpecContext) Description() string { return c.description }

// Parent returns the enclosing context, or nil at the root.
func (c *SpecContext) Parent() *SpecContext { return c.parent }

// Tags returns the active tag set at this context (own tags unioned with
// every ancestor's, since AddChildContext already folds ancestor tags in).
func (c *SpecContext) Tags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.tags))
	for t := range c.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Path returns the chain of non-empty ancestor descriptions from root to c,
// excluding c itself.
func (c *SpecContext) Path() []string {
	var rev []string
	for cur := c; cur != nil; cur = cur.parent {
		if strings.TrimSpace(cur.description) != "" {
			rev = append(rev, cur.description)
		}
	}
	out := make([]string, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}

// AcyclicParentChain reports whether walking the parent chain from c ever
// revisits a node, guarding the "parent chain is acyclic" invariant. Since
// AddChildContext never lets a context become its own ancestor, this should
// always be true; it exists as a cheap assertion for tests.
func (c *SpecContext) AcyclicParentChain() bool {
	seen := map[*SpecContext]struct{}{}
	for cur := c; cur != nil; cur = cur.parent {
		if _, ok := seen[cur]; ok {
			return false
		}
		seen[cur] = struct{}{}
	}
	return true
}

func unionTags(base map[string]struct{}, add []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(add))
	for t := range base {
		out[t] = struct{}{}
	}
	for _, t := range add {
		t = strings.TrimSpace(t)
		if t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

// Flatten walks the tree in declaration (pre-)order and returns every leaf
// spec, interleaving child contexts with sibling specs exactly as declared
// (spec.md §8 "Result order equals the pre-order traversal...").
func Flatten(root *SpecContext) []*SpecDefinition {
	var out []*SpecDefinition
	var walk func(c *SpecContext)
	walk = func(c *SpecContext) {
		for _, e := range c.Entries() {
			switch {
			case e.Spec != nil:
				out = append(out, e.Spec)
			case e.Context != nil:
				walk(e.Context)
			}
		}
	}
	walk(root)
	return out
}

// AncestorChain returns [root, ..., leaf's immediate parent] for a spec's
// enclosing context, used by the scheduler to run hooks in nesting order.
func AncestorChain(c *SpecContext) []*SpecContext {
	var rev []*SpecContext
	for cur := c; cur != nil; cur = cur.parent {
		rev = append(rev, cur)
	}
	out := make([]*SpecContext, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}
