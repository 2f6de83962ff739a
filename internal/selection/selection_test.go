package selection

import (
	"context"
	"testing"

	"github.com/juvistr/draftspec/internal/spectree"
)

func mkSpec(desc string, line int, focused, skipped, pending bool, tags ...string) *spectree.SpecDefinition {
	tagSet := map[string]struct{}{}
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	var body spectree.SpecBody
	if !pending {
		body = func(ctx context.Context) error { return nil }
	}
	return &spectree.SpecDefinition{
		Description: desc,
		SourceFile:  "demo.dspec",
		Line:        line,
		Body:        body,
		Focused:     focused,
		Skipped:     skipped,
		Tags:        tagSet,
	}
}

// S1 — Focus mode.
func TestSelect_FocusModeSkipsNonFocused(t *testing.T) {
	specs := []*spectree.SpecDefinition{
		mkSpec("x", 1, false, false, false),
		mkSpec("y", 2, true, false, false),
		mkSpec("z", 3, false, false, false),
	}
	decisions, err := Select(specs, FilterSpec{})
	if err != nil {
		t.Fatal(err)
	}
	if decisions[0].Run || decisions[0].Reason != spectree.SkipNotFocused {
		t.Fatalf("expected x skipped not-focused, got %+v", decisions[0])
	}
	if !decisions[1].Run {
		t.Fatal("expected focused spec to run")
	}
	if decisions[2].Run || decisions[2].Reason != spectree.SkipNotFocused {
		t.Fatalf("expected z skipped not-focused, got %+v", decisions[2])
	}
}

func TestSelect_TagExclusionWinsOverFocus(t *testing.T) {
	specs := []*spectree.SpecDefinition{
		mkSpec("x", 1, true, false, false, "slow"),
		mkSpec("y", 2, false, false, false),
	}
	decisions, err := Select(specs, FilterSpec{ExcludeTags: []string{"slow"}})
	if err != nil {
		t.Fatal(err)
	}
	if decisions[0].Run || decisions[0].Reason != spectree.SkipFilteredByTag {
		t.Fatalf("expected tag-excluded focused spec to stay excluded, got %+v", decisions[0])
	}
	if !decisions[1].Run {
		t.Fatal("the only surviving spec should run since the focused one never reached the focus pass")
	}
}

func TestSelect_NameRegex(t *testing.T) {
	specs := []*spectree.SpecDefinition{
		mkSpec("alpha", 1, false, false, false),
		mkSpec("beta", 2, false, false, false),
	}
	decisions, err := Select(specs, FilterSpec{IncludeNamePattern: "^alpha$"})
	if err != nil {
		t.Fatal(err)
	}
	if !decisions[0].Run {
		t.Fatal("expected alpha to run")
	}
	if decisions[1].Run || decisions[1].Reason != spectree.SkipFilteredByName {
		t.Fatalf("expected beta filtered by name, got %+v", decisions[1])
	}
}

func TestSelect_PendingAndSkippedResolve(t *testing.T) {
	specs := []*spectree.SpecDefinition{
		mkSpec("p", 1, false, false, true),
		mkSpec("s", 2, false, true, false),
	}
	decisions, err := Select(specs, FilterSpec{})
	if err != nil {
		t.Fatal(err)
	}
	if decisions[0].Run || decisions[0].Reason != spectree.SkipPending {
		t.Fatalf("expected pending, got %+v", decisions[0])
	}
	if decisions[1].Run || decisions[1].Reason != spectree.SkipExplicitlySkipped {
		t.Fatalf("expected explicitly-skipped, got %+v", decisions[1])
	}
}

func TestSelect_LineFilterUsesDeclarationRange(t *testing.T) {
	specs := []*spectree.SpecDefinition{
		mkSpec("a", 5, false, false, false),
		mkSpec("b", 10, false, false, false),
	}
	decisions, err := Select(specs, FilterSpec{Lines: []LineFilter{{File: "demo.dspec", Lines: []int{7}}}})
	if err != nil {
		t.Fatal(err)
	}
	if !decisions[0].Run {
		t.Fatal("expected line 7 to fall within a's range [5,10]")
	}
	if decisions[1].Run {
		t.Fatal("expected b excluded since no filter line falls in its range")
	}
}
