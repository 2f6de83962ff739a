// Package watch implements the debounced watch loop (spec.md §4.C7): an
// mtime-polling file observer that maps changed files to affected specs
// via internal/depgraph and invokes a scheduler callback with that subset.
// Grounded on internal/attractor/engine/provider_preflight.go's
// time.Timer-based polling loop — the teacher has no fsnotify-style
// dependency anywhere in its surface.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/juvistr/draftspec/internal/depgraph"
)

// DefaultDebounce matches spec.md's documented 100ms default.
const DefaultDebounce = 100 * time.Millisecond

// RunFunc invokes the scheduler over the given set of spec files.
type RunFunc func(ctx context.Context, affected []string)

// Loop polls Root for mtime changes every PollInterval, debounces bursts
// within Debounce, and invokes Run with the affected spec-file set.
type Loop struct {
	Root         string
	Graph        *depgraph.Graph
	PollInterval time.Duration
	Debounce     time.Duration
	Incremental  bool
	Run          RunFunc

	// AllSpecFiles is the full spec-file set a non-incremental batch
	// re-runs; incremental batches instead map the changed files through
	// Graph (spec.md §4.C7 step 1). Empty means "run the raw change set",
	// which keeps single-directory loops usable without discovery wiring.
	AllSpecFiles []string

	mtimes map[string]time.Time
}

// snapshot lists every file under Root with its current mtime.
func (l *Loop) snapshot() (map[string]time.Time, error) {
	out := map[string]time.Time{}
	err := filepath.Walk(l.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		out[path] = info.ModTime()
		return nil
	})
	return out, err
}

func (l *Loop) diff(prev, cur map[string]time.Time) []string {
	var changed []string
	for path, mtime := range cur {
		if prevMtime, ok := prev[path]; !ok || !prevMtime.Equal(mtime) {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

// poll takes one mtime snapshot and diffs it against the previous one,
// returning the changed-file set, or nil if nothing changed (or this was
// the first snapshot).
func (l *Loop) poll() ([]string, error) {
	cur, err := l.snapshot()
	if err != nil {
		return nil, err
	}
	if l.mtimes == nil {
		l.mtimes = cur
		return nil, nil
	}
	changed := l.diff(l.mtimes, cur)
	l.mtimes = cur
	if len(changed) == 0 {
		return nil, nil
	}
	return changed, nil
}

// Start runs the initial full pass, then polls indefinitely until ctx is
// canceled. Overlapping batches are serialized: a new batch never starts
// until the invocation for the previous one has returned; changes that
// accumulate during a run form the next batch.
func (l *Loop) Start(ctx context.Context, initial []string) {
	if l.Run != nil {
		l.Run(ctx, initial)
	}
	if _, err := l.snapshot(); err == nil {
		l.mtimes, _ = l.snapshot()
	}

	interval := l.PollInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	debounce := l.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var pending []string
	var debounceTimer *time.Timer
	var debounceC <-chan time.Time
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// flush runs only on this goroutine, from the select loop below, so it
	// is the sole mutator of pending and can never overlap with another
	// flush: a new batch cannot start until the previous Run call returns
	// and control comes back around to this select (spec.md §4.C7).
	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		affected := batch
		switch {
		case l.Incremental && l.Graph != nil:
			affected = l.Graph.AffectedBy(batch)
		case len(l.AllSpecFiles) > 0:
			affected = append([]string{}, l.AllSpecFiles...)
		}
		if l.Run != nil {
			l.Run(ctx, affected)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case <-ticker.C:
			changed, err := l.poll()
			if err != nil || len(changed) == 0 {
				continue
			}
			pending = mergeUnique(pending, changed)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(debounce)
			debounceC = debounceTimer.C
		case <-debounceC:
			debounceC = nil
			flush()
		}
	}
}

func mergeUnique(a, b []string) []string {
	seen := map[string]struct{}{}
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
