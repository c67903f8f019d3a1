package recorder

import (
	"context"

	"github.com/traceforge/traceforge/artifact"
)

// ToolFunc is the shape of a tool invocation wrapped by Recorder.WrapTool.
type ToolFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// setPhase overrides a scope's phase before it closes. Used internally by
// tool-wrapping to reclassify a failed, retryable attempt as a "retry" step
// rather than the "tool" phase it opened with.
func (s *StepScope) setPhase(p artifact.Phase) {
	if !s.discard && !s.closed {
		s.phase = p
	}
}

// WrapTool wraps fn so every invocation is recorded as one or more steps: a
// "retry" step for each failed attempt up to retryPolicy, followed by a
// single "tool" step recording either the eventual success or, once
// retryPolicy is exhausted, the final failure.
//
// Each attempt opens its own step, so captured tool I/O (via
// Recorder.CaptureOutput) is attributed to the attempt that produced it,
// never merged across attempts.
func (r *Recorder) WrapTool(name string, retryPolicy int, fn ToolFunc) ToolFunc {
	maxAttempts := retryPolicy + 1
	return func(ctx context.Context, input map[string]any) (map[string]any, error) {
		var lastErr error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			scope, err := r.Step(artifact.PhaseTool, map[string]any{
				"tool":    name,
				"attempt": attempt,
				"args":    input,
			})
			if err != nil {
				return nil, err
			}

			out, callErr := fn(ctx, input)
			if callErr == nil {
				scope.SetOutput("result", out)
				if cerr := scope.Close(); cerr != nil {
					return out, cerr
				}
				return out, nil
			}

			lastErr = callErr
			scope.SetOutput("error", callErr.Error())
			if attempt < maxAttempts {
				scope.setPhase(artifact.PhaseRetry)
				scope.SetStatus(artifact.StepRetry)
			} else {
				scope.SetStatus(artifact.StepError)
			}
			if cerr := scope.Close(); cerr != nil {
				return nil, cerr
			}
		}
		return nil, lastErr
	}
}
