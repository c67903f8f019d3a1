package recorder

import (
	"context"

	"github.com/traceforge/traceforge/artifact"
)

// ModelFunc is the shape of a model invocation wrapped by Recorder.WrapModel.
type ModelFunc func(ctx context.Context, prompt map[string]any) (map[string]any, error)

// WrapModel wraps fn so every invocation is recorded as a single "reason"
// step. Unlike WrapTool, model calls are not retried by the recorder: a
// model-level retry policy, if any, belongs to the caller and should be
// wrapped with its own WrapTool-style steps if it needs to be visible in
// the trace.
func (r *Recorder) WrapModel(name string, fn ModelFunc) ModelFunc {
	return func(ctx context.Context, prompt map[string]any) (map[string]any, error) {
		scope, err := r.Step(artifact.PhaseReason, map[string]any{
			"model":  name,
			"prompt": prompt,
		})
		if err != nil {
			return nil, err
		}

		out, callErr := fn(ctx, prompt)
		if callErr != nil {
			scope.SetStatus(artifact.StepError)
			scope.SetOutput("error", callErr.Error())
			if cerr := scope.Close(); cerr != nil {
				return nil, cerr
			}
			return nil, callErr
		}

		scope.SetOutput("response", out)
		if cerr := scope.Close(); cerr != nil {
			return out, cerr
		}
		return out, nil
	}
}

// CaptureOutput records raw bytes produced by the currently open step's
// tool call (stream is "stdout" or "stderr"). Bytes produced after the
// step has closed are discarded and counted, not errored, since a tool's
// background writer may outlive the step that invoked it.
func (r *Recorder) CaptureOutput(stream string, data []byte) {
	r.bindToolIO(stream, data)
}
