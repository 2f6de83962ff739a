package runner

import (
	"context"
	"runtime"
	"sync"

	"github.com/juvistr/draftspec/internal/spectree"
)

// Bail, when attached to a Scheduler run, causes the first failed result
// to stop new specs from starting; in-flight specs still complete
// (spec.md §4.C6 "Bail").
type Bail struct {
	mu      sync.Mutex
	tripped bool
}

func (b *Bail) trip() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.tripped = true
	b.mu.Unlock()
}

func (b *Bail) isTripped() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Scheduler runs a flat, ordered list of specs through a middleware chain,
// either sequentially or with bounded parallelism, emitting results to a
// Reporter-shaped callback in declaration order.
type Scheduler struct {
	Middlewares []Middleware
	Hooks       *HookRunner
	Bail        *Bail

	// Parallel degree; <= 1 means sequential. spec.md: an explicit 0 or
	// negative supplied by configuration is coerced to the logical CPU
	// count by ResolveDegree before reaching here.
	Degree int

	// OnResult is invoked once per spec, in ascending Position order, even
	// under parallel execution (the scheduler buffers out-of-order arrivals
	// until the next-in-order result is ready).
	OnResult func(spectree.SpecResult)
}

// ResolveDegree implements spec.md §4.C6's "Default degree": the host's
// logical CPU count when parallel mode is requested without an explicit
// value; zero or negative is coerced to that default.
func ResolveDegree(requested int) int {
	if requested > 0 {
		return requested
	}
	return runtime.NumCPU()
}

// Run executes specs and returns once every result has been emitted.
func (s *Scheduler) Run(ctx context.Context, specs []*spectree.SpecDefinition) {
	base := (&BaseExecutor{Hooks: s.Hooks}).Run
	pipeline := Chain(base, s.Middlewares...)

	if s.Degree <= 1 {
		s.runSequential(ctx, specs, pipeline)
		return
	}
	s.runParallel(ctx, specs, pipeline)
}

func (s *Scheduler) runSequential(ctx context.Context, specs []*spectree.SpecDefinition, pipeline Next) {
	for i, spec := range specs {
		if s.Bail.isTripped() {
			s.finishHookState(spec)
			s.emit(spectree.SpecResult{Spec: spec, Status: spectree.StatusSkipped, SkipReason: spectree.SkipBailed, Position: i})
			continue
		}
		exec := &Execution{Spec: spec, Ancestors: spectree.AncestorChain(spec.Parent()), Position: i}
		result := pipeline(ctx, exec)
		s.finishHookState(spec)
		if result.Status == spectree.StatusFailed {
			s.Bail.trip()
		}
		s.emit(result)
	}
}

func (s *Scheduler) runParallel(ctx context.Context, specs []*spectree.SpecDefinition, pipeline Next) {
	type job struct {
		idx  int
		spec *spectree.SpecDefinition
	}

	jobs := make(chan job)
	results := make([]spectree.SpecResult, len(specs))
	ready := make([]bool, len(specs))
	var mu sync.Mutex
	nextToEmit := 0

	record := func(idx int, res spectree.SpecResult) {
		mu.Lock()
		defer mu.Unlock()
		results[idx] = res
		ready[idx] = true
		for nextToEmit < len(ready) && ready[nextToEmit] {
			s.emit(results[nextToEmit])
			nextToEmit++
		}
	}

	var wg sync.WaitGroup
	workers := s.Degree
	if workers > len(specs) {
		workers = len(specs)
	}
	if workers < 1 {
		workers = 1
	}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if s.Bail.isTripped() {
					s.finishHookState(j.spec)
					record(j.idx, spectree.SpecResult{Spec: j.spec, Status: spectree.StatusSkipped, SkipReason: spectree.SkipBailed, Position: j.idx})
					continue
				}
				exec := &Execution{Spec: j.spec, Ancestors: spectree.AncestorChain(j.spec.Parent()), Position: j.idx}
				res := pipeline(ctx, exec)
				s.finishHookState(j.spec)
				if res.Status == spectree.StatusFailed {
					s.Bail.trip()
				}
				record(j.idx, res)
			}
		}()
	}

	for idx, spec := range specs {
		jobs <- job{idx: idx, spec: spec}
	}
	close(jobs)
	wg.Wait()
}

func (s *Scheduler) emit(result spectree.SpecResult) {
	if s.OnResult != nil {
		s.OnResult(result)
	}
}

// finishHookState closes out one spec's hook accounting: exactly one
// call per spec, whether its pipeline ran, short-circuited, or was
// bypassed by bail, so after_all fires when (and only when) a context's
// last spec has been dealt with.
func (s *Scheduler) finishHookState(spec *spectree.SpecDefinition) {
	if s.Hooks != nil {
		s.Hooks.FinishSpec(spec)
	}
}
