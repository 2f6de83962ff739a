package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/juvistr/draftspec/internal/reporting"
	"github.com/juvistr/draftspec/internal/selection"
	"github.com/juvistr/draftspec/internal/specerr"
	"github.com/juvistr/draftspec/internal/spectree"
)

// RunSetOptions configures one full run over a flattened spec list.
type RunSetOptions struct {
	Filter selection.FilterSpec

	// Middlewares beyond the selection filter: timeout, retry, snapshot,
	// coverage. Registration order composes outward (first wraps last).
	Middlewares []Middleware

	// Degree <= 1 runs sequentially; use ResolveDegree to map a requested
	// parallel value onto the host default first.
	Degree int

	Bail bool

	Reporters []reporting.Reporter
}

// RunSet is the whole-run entry point: it reduces specs to the runnable
// set via selection, wraps the pipeline so every excluded spec still
// yields a terminal result in declaration order (spec.md §4.C5), executes
// the runnable set through the scheduler, and streams results plus the
// final summary to every reporter. One result is emitted per input spec,
// in declaration order, regardless of parallelism degree (spec.md §8).
func RunSet(ctx context.Context, specs []*spectree.SpecDefinition, opts RunSetOptions) (reporting.Summary, error) {
	decisions, err := selection.Select(specs, opts.Filter)
	if err != nil {
		return reporting.Summary{}, specerr.NewConfiguration(fmt.Sprintf("invalid filter: %v", err))
	}
	bySpec := make(map[*spectree.SpecDefinition]selection.Decision, len(decisions))
	for _, d := range decisions {
		bySpec[d.Spec] = d
	}

	start := time.Now()
	for _, r := range opts.Reporters {
		r.RunStarting(len(specs), start)
	}

	filterMW := FilterMiddleware{Predicate: func(s *spectree.SpecDefinition) (bool, spectree.SkipReason) {
		d := bySpec[s]
		return d.Run, d.Reason
	}}
	middlewares := append([]Middleware{filterMW.Wrap}, opts.Middlewares...)

	var bail *Bail
	if opts.Bail {
		bail = &Bail{}
	}

	var summary reporting.Summary
	sched := &Scheduler{
		Middlewares: middlewares,
		Hooks:       NewHookRunner(specs),
		Bail:        bail,
		Degree:      opts.Degree,
		OnResult: func(res spectree.SpecResult) {
			summary.Add(res)
			for _, r := range opts.Reporters {
				r.SpecCompleted(res)
			}
		},
	}
	sched.Run(ctx, specs)

	for _, r := range opts.Reporters {
		r.RunCompleted(summary)
	}
	return summary, nil
}
