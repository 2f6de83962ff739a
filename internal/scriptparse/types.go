// Package scriptparse implements the static parser (spec.md §4.C3): it
// recognizes describe/context/it/fit/xit/#load calls syntactically, without
// evaluating the script, so `list`/`validate`/IDE integration can enumerate
// specs without running their bodies.
package scriptparse

// SpecKind classifies a StaticSpec the way the live registrar would.
type SpecKind string

const (
	KindRegular SpecKind = "regular"
	KindFocused SpecKind = "focused"
	KindSkipped SpecKind = "skipped"
)

// StaticSpec is one leaf recognized by the static parser.
type StaticSpec struct {
	Description string
	ContextPath []string
	Line        int
	Kind        SpecKind
	Pending     bool
}

// Warning is recorded when a dynamic or non-literal description is
// encountered; the spec is still emitted, with a placeholder description.
type Warning struct {
	Line   int
	Reason string
}

// LoadDirective is a recognized `#load "path"` statement, resolved later by
// internal/depgraph relative to the including file's directory.
type LoadDirective struct {
	Line int
	Path string
}

// Result is the static parser's output for one file.
type Result struct {
	File     string
	Specs    []StaticSpec
	Warnings []Warning
	Loads    []LoadDirective

	// Complete is false if any warning was recorded: downstream consumers
	// then know the static data is best-effort (spec.md §4.C3).
	Complete bool
}

const placeholderDescription = "<dynamic>"
