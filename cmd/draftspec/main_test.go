package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/juvistr/draftspec/internal/draftconfig"
	"github.com/juvistr/draftspec/internal/evaluator"
	"github.com/juvistr/draftspec/internal/registrar"
	"github.com/juvistr/draftspec/internal/reporting"
	"github.com/juvistr/draftspec/internal/scriptparse"
	"github.com/juvistr/draftspec/internal/selection"
	"github.com/juvistr/draftspec/internal/spectree"
)

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b,,c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}

func TestEnvFilter_MergesEnvironment(t *testing.T) {
	t.Setenv("DRAFTSPEC_FILTER_TAGS", "fast,unit")
	t.Setenv("DRAFTSPEC_EXCLUDE_TAGS", "slow")
	t.Setenv("DRAFTSPEC_FILTER_NAME", "^core")
	f := envFilter(selection.FilterSpec{})
	if len(f.IncludeTags) != 2 || f.IncludeTags[0] != "fast" {
		t.Fatalf("unexpected include tags: %v", f.IncludeTags)
	}
	if len(f.ExcludeTags) != 1 || f.ExcludeTags[0] != "slow" {
		t.Fatalf("unexpected exclude tags: %v", f.ExcludeTags)
	}
	if f.IncludeNamePattern != "^core" {
		t.Fatalf("unexpected name pattern: %q", f.IncludeNamePattern)
	}
}

func TestEnvFilter_FlagWinsOverNameEnv(t *testing.T) {
	t.Setenv("DRAFTSPEC_FILTER_NAME", "^env")
	f := envFilter(selection.FilterSpec{IncludeNamePattern: "^flag"})
	if f.IncludeNamePattern != "^flag" {
		t.Fatalf("explicit flag must win over the environment, got %q", f.IncludeNamePattern)
	}
}

func TestPrintStats_FocusModeExitsTwo(t *testing.T) {
	results := map[string]*scriptparse.Result{
		"a.dspec": {Specs: []scriptparse.StaticSpec{
			{Description: "x", Kind: scriptparse.KindRegular},
			{Description: "y", Kind: scriptparse.KindFocused},
		}},
	}
	if exit := printStats([]string{"a.dspec"}, results); exit != 2 {
		t.Fatalf("want exit 2 with an active focus mode, got %d", exit)
	}
	results["a.dspec"].Specs[1].Kind = scriptparse.KindRegular
	if exit := printStats([]string{"a.dspec"}, results); exit != 0 {
		t.Fatalf("want exit 0 without focus, got %d", exit)
	}
}

type countingReporter struct {
	mu      sync.Mutex
	results []spectree.SpecResult
	summary reporting.Summary
}

func (r *countingReporter) RunStarting(total int, start time.Time) {}
func (r *countingReporter) SpecCompleted(res spectree.SpecResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}
func (r *countingReporter) RunCompleted(s reporting.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = s
}

// runFiles drives evaluation, middleware assembly, and the scheduler; a
// failing spec must surface as exit code 1 with results for every spec.
func TestRunFiles_ExitCodeReflectsFailures(t *testing.T) {
	fake := &evaluator.Fake{Builders: map[string]evaluator.BuilderFunc{
		"a.dspec": func(r *registrar.Registrar) {
			_ = r.It("ok", 1, func(ctx context.Context) error { return nil })
			_ = r.It("bad", 2, func(ctx context.Context) error { return fmt.Errorf("nope") })
		},
		"b.dspec": func(r *registrar.Registrar) {
			_ = r.It("fine", 1, func(ctx context.Context) error { return nil })
		},
	}}

	cfg := draftconfig.Default()
	cfg.SnapshotDir = filepath.Join(t.TempDir(), "__snapshots__")
	rep := &countingReporter{}
	summary, exit := runFiles(context.Background(), fake, []string{"a.dspec", "b.dspec"}, cfg,
		selection.FilterSpec{}, 1, false, []reporting.Reporter{rep})

	if exit != 1 {
		t.Fatalf("want exit 1 with a failing spec, got %d", exit)
	}
	if summary.Total != 3 || summary.Passed != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(rep.results) != 3 {
		t.Fatalf("want a result per spec, got %d", len(rep.results))
	}
}

func TestRunFiles_RetryFromConfig(t *testing.T) {
	attempts := 0
	fake := &evaluator.Fake{Builders: map[string]evaluator.BuilderFunc{
		"a.dspec": func(r *registrar.Registrar) {
			_ = r.It("flaky", 1, func(ctx context.Context) error {
				attempts++
				if attempts < 2 {
					return fmt.Errorf("not yet")
				}
				return nil
			})
		},
	}}

	cfg := draftconfig.Default()
	cfg.SnapshotDir = filepath.Join(t.TempDir(), "__snapshots__")
	two := 2
	cfg.Retry.MaxRetries = &two

	rep := &countingReporter{}
	summary, exit := runFiles(context.Background(), fake, []string{"a.dspec"}, cfg,
		selection.FilterSpec{}, 1, false, []reporting.Reporter{rep})
	if exit != 0 || summary.Failed != 0 {
		t.Fatalf("want retried spec to pass, got exit %d summary %+v", exit, summary)
	}
	if rep.results[0].Retry == nil || rep.results[0].Retry.Attempts != 2 {
		t.Fatalf("want retry metadata with 2 attempts, got %+v", rep.results[0].Retry)
	}
}

func TestMergeFilterDocument(t *testing.T) {
	base := selection.FilterSpec{
		IncludeTags:        []string{"fast"},
		IncludeNamePattern: "^flag",
	}
	doc := draftconfig.FilterDocument{
		IncludeTags:  []string{"unit"},
		ExcludeTags:  []string{"slow"},
		IncludeNames: []string{"^core", "^api"},
		ExcludeNames: []string{"^wip"},
		SkippedOnly:  true,
	}
	got := mergeFilterDocument(base, doc)

	if len(got.IncludeTags) != 2 || got.IncludeTags[1] != "unit" {
		t.Fatalf("want tags unioned, got %v", got.IncludeTags)
	}
	if len(got.ExcludeTags) != 1 || got.ExcludeTags[0] != "slow" {
		t.Fatalf("want exclude tags merged, got %v", got.ExcludeTags)
	}
	if got.IncludeNamePattern != "^flag" {
		t.Fatalf("explicit flag pattern must win over the document, got %q", got.IncludeNamePattern)
	}
	if got.ExcludeNamePattern != "^wip" {
		t.Fatalf("want document exclude names adopted, got %q", got.ExcludeNamePattern)
	}
	if !got.SkippedOnly {
		t.Fatal("want status flags OR-combined")
	}
}

func TestMergeFilterDocument_AlternatesNameList(t *testing.T) {
	got := mergeFilterDocument(selection.FilterSpec{}, draftconfig.FilterDocument{
		IncludeNames: []string{"^core", "^api"},
	})
	if got.IncludeNamePattern != "^core|^api" {
		t.Fatalf("want name regexes alternated, got %q", got.IncludeNamePattern)
	}
}

func TestKeepSpecFiles(t *testing.T) {
	got := keepSpecFiles([]string{"a.dspec", "helpers.csx", "b.dspec"})
	if len(got) != 2 || got[0] != "a.dspec" || got[1] != "b.dspec" {
		t.Fatalf("want only spec files kept, got %v", got)
	}
}

func TestDiscoverSpecFiles_SingleFileTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "one.dspec")
	if err := os.WriteFile(path, []byte("it(\"x\") { }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := discoverSpecFiles(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != path {
		t.Fatalf("want the explicit file, got %v", files)
	}
}
