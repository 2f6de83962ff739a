package runner

import (
	"context"
	"errors"
	"time"

	"github.com/juvistr/draftspec/internal/specerr"
	"github.com/juvistr/draftspec/internal/spectree"
)

// BaseExecutor is the innermost layer of the middleware chain: it installs
// a fresh LetScope, runs the ancestor hook chain and the spec body via a
// HookRunner, and converts the outcome into a SpecResult.
type BaseExecutor struct {
	Hooks *HookRunner
}

// Run implements Next.
func (b *BaseExecutor) Run(ctx context.Context, exec *Execution) spectree.SpecResult {
	scope := spectree.NewLetScope(exec.Spec.Parent())
	ctx = spectree.WithLetScope(ctx, scope)

	start := time.Now()
	err, category := b.Hooks.RunSpec(ctx, exec.Spec)
	duration := time.Since(start)

	result := spectree.SpecResult{
		Spec:     exec.Spec,
		Duration: duration,
		Position: exec.Position,
	}

	if err == nil {
		result.Status = spectree.StatusPassed
		return result
	}

	result.Status = spectree.StatusFailed
	result.Failure = &spectree.FailurePayload{
		Category: category,
		Message:  err.Error(),
	}

	var assertionErr *specerr.AssertionError
	if errors.As(err, &assertionErr) {
		result.Failure.Expected = assertionErr.Expected
		result.Failure.Actual = assertionErr.Actual
	}
	var runtimeErr *specerr.RuntimeError
	if errors.As(err, &runtimeErr) {
		result.Failure.Stack = runtimeErr.Stack
	}

	return result
}
