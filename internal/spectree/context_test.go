package spectree

import (
	"context"
	"errors"
	"testing"

	"github.com/juvistr/draftspec/internal/specerr"
)

func TestFlatten_InterleavesDeclarationOrder(t *testing.T) {
	root := NewRootContext("")
	specA := &SpecDefinition{Description: "a", Body: noop}
	if err := root.AddSpec(specA); err != nil {
		t.Fatal(err)
	}
	child, err := root.AddChildContext("C", nil)
	if err != nil {
		t.Fatal(err)
	}
	specB := &SpecDefinition{Description: "b", Body: noop}
	if err := child.AddSpec(specB); err != nil {
		t.Fatal(err)
	}
	specC := &SpecDefinition{Description: "c", Body: noop}
	if err := root.AddSpec(specC); err != nil {
		t.Fatal(err)
	}
	root.Close()

	got := Flatten(root)
	if len(got) != 3 {
		t.Fatalf("want 3 specs, got %d", len(got))
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if got[i].Description != w {
			t.Fatalf("position %d: want %q got %q", i, w, got[i].Description)
		}
	}
}

func TestDeclareFixture_DuplicateRaisesInvalidSpec(t *testing.T) {
	root := NewRootContext("")
	f := func(ctx context.Context) (any, error) { return 1, nil }
	if err := root.DeclareFixture("x", f); err != nil {
		t.Fatal(err)
	}
	err := root.DeclareFixture("x", f)
	var invalid *specerr.InvalidSpecError
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidSpecError, got %v", err)
	}
}

func TestLookupFixture_ShadowsButDoesNotCollide(t *testing.T) {
	root := NewRootContext("")
	_ = root.DeclareFixture("db", func(ctx context.Context) (any, error) { return "root-db", nil })
	child, _ := root.AddChildContext("inner", nil)
	_ = child.DeclareFixture("db", func(ctx context.Context) (any, error) { return "child-db", nil })

	factory, owner, ok := child.LookupFixture("db")
	if !ok {
		t.Fatal("expected fixture to resolve")
	}
	if owner != child {
		t.Fatal("expected the child's own fixture to shadow the root's")
	}
	v, _ := factory(context.Background())
	if v != "child-db" {
		t.Fatalf("got %v", v)
	}

	sibling, _ := root.AddChildContext("sibling", nil)
	_, owner2, ok := sibling.LookupFixture("db")
	if !ok || owner2 != root {
		t.Fatal("sibling with no shadowing declaration should resolve to the root fixture")
	}
}

func TestClose_MakesTreeImmutable(t *testing.T) {
	root := NewRootContext("")
	child, _ := root.AddChildContext("C", nil)
	root.Close()

	if err := root.AddSpec(&SpecDefinition{Description: "late", Body: noop}); err == nil {
		t.Fatal("expected error adding a spec after Close")
	}
	if _, err := child.AddChildContext("later", nil); err == nil {
		t.Fatal("expected error adding a context after Close (subtree also closed)")
	}
}

func TestAcyclicParentChain(t *testing.T) {
	root := NewRootContext("")
	child, _ := root.AddChildContext("C", nil)
	grandchild, _ := child.AddChildContext("D", nil)
	if !grandchild.AcyclicParentChain() {
		t.Fatal("expected acyclic parent chain")
	}
}

func TestTagInheritance(t *testing.T) {
	root := NewRootContext("")
	_ = root // tag("slow") { describe(...) { tag("flaky") { it(...) } } }
	outer, _ := root.AddChildContext("outer", []string{"slow"})
	inner, _ := outer.AddChildContext("inner", []string{"flaky"})
	spec := &SpecDefinition{Description: "x", Body: noop}
	if err := inner.AddSpec(spec); err != nil {
		t.Fatal(err)
	}
	if !spec.HasTag("slow") || !spec.HasTag("flaky") {
		t.Fatalf("expected union of ancestor tags, got %v", spec.TagSet())
	}
}

func noop(ctx context.Context) error { return nil }
