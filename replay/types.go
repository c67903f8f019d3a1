// Package replay implements the Replay Engine: it reproduces an agent run
// from a recorded artifact.Run with zero external effects, substituting
// recorded step outputs for model and tool calls, and reports any
// divergence between the original run and the replayed one.
package replay

import "fmt"

// DivergenceKind classifies a single difference between an original run
// and its replay.
type DivergenceKind string

const (
	// DivergenceStateMismatch means a final-snapshot field differs between
	// the original run and the replay.
	DivergenceStateMismatch DivergenceKind = "state_mismatch"

	// DivergenceOutputMismatch means the phase or tool name requested by
	// the agent under replay does not match the recorded order.
	DivergenceOutputMismatch DivergenceKind = "output_mismatch"

	// DivergenceMissingStep means the agent under replay produced fewer
	// endpoint calls than were recorded.
	DivergenceMissingStep DivergenceKind = "missing_step"

	// DivergenceExtraStep means the agent under replay produced more
	// endpoint calls than were recorded.
	DivergenceExtraStep DivergenceKind = "extra_step"
)

// Divergence is a single recorded difference between a run and its replay.
// StepID is the originating step identifier from the source run, or -1 when
// the divergence has no single anchor (e.g. an extra call past the end).
type Divergence struct {
	Kind   DivergenceKind `json:"kind"`
	StepID int            `json:"step_id,omitempty"`
	Detail string         `json:"detail"`
}

func (d Divergence) String() string {
	if d.StepID >= 0 {
		return fmt.Sprintf("%s at step %d: %s", d.Kind, d.StepID, d.Detail)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
}

// Result is the outcome of driving an Engine to completion.
type Result struct {
	RunDir      string       `json:"run_dir"`
	Divergences []Divergence `json:"divergences"`
}

// Clean reports whether the replay produced zero divergences.
func (r *Result) Clean() bool { return len(r.Divergences) == 0 }
