// Package artifact implements the on-disk trace format: an append-only,
// directory-scoped layout of run metadata, a newline-delimited step log,
// per-step state snapshots, per-step diffs, and per-step captured tool I/O.
//
// It is the single source of truth for every other package in this module;
// the recorder writes through it, and replay and analysis read through it.
package artifact

import (
	"encoding/json"
	"time"
)

type (
	// Status is the terminal status of a sealed run.
	Status string

	// TerminationReason classifies why a run stopped.
	TerminationReason string

	// Phase identifies the kind of action a step represents.
	Phase string

	// StepStatus is the outcome of a single step.
	StepStatus string

	// Metadata is the persisted run metadata record (meta.json).
	Metadata struct {
		RunID             string            `json:"run_id"`
		AgentVersion      string            `json:"agent_version"`
		LLM               string            `json:"llm"`
		Temperature       float64           `json:"temperature"`
		Tools             []string          `json:"tools"`
		Seed              int64             `json:"seed"`
		CreatedAt         time.Time         `json:"created_at"`
		Status            Status            `json:"status"`
		TerminationReason TerminationReason  `json:"termination_reason,omitempty"`
		Truncated         bool              `json:"truncated"`
		Tags              []string          `json:"tags,omitempty"`
	}

	// Step is a single record in steps.jsonl.
	Step struct {
		StepID    int             `json:"step_id"`
		Timestamp int64           `json:"timestamp"`
		Phase     Phase           `json:"phase"`
		Input     map[string]any  `json:"input"`
		Output    map[string]any  `json:"output"`
		StateRef  string          `json:"state_ref"`
		DiffRef   string          `json:"diff_ref,omitempty"`
		Status    StepStatus      `json:"status"`
		DurationMs *int64         `json:"duration_ms,omitempty"`

		// Extra preserves unknown fields across a decode/re-encode round trip.
		Extra map[string]json.RawMessage `json:"-"`
	}

	// Snapshot is a point-in-time picture of agent memory for one step.
	Snapshot struct {
		StepID        int              `json:"step_id"`
		Memory        []map[string]any `json:"memory"`
		ContextTokens int              `json:"context_tokens"`
		ToolsState    map[string]any   `json:"tools_state"`
	}

	// Change is a single field-level delta between two snapshots.
	Change struct {
		Path     []string `json:"path"`
		OldValue any      `json:"old_value"`
		NewValue any      `json:"new_value"`
	}

	// Diff is the structural delta between two consecutive snapshots.
	Diff struct {
		StepID  int      `json:"step_id"`
		Changes []Change `json:"changes"`
	}

	// ToolIO holds the captured stdout/stderr bytes for one step, loaded lazily.
	ToolIO struct {
		Stdout []byte
		Stderr []byte
	}

	// Run is a fully or partially loaded run: metadata plus the step log.
	// Snapshots, diffs, and tool I/O are resolved lazily from Dir with
	// LoadSnapshot, LoadDiff, and LoadToolIO.
	Run struct {
		Dir      string
		Meta     Metadata
		Steps    []Step
		// Partial is true when the step log's trailing line was truncated
		// (e.g. the recording process crashed before a clean seal).
		Partial bool
	}
)

const (
	StatusSuccess      Status = "success"
	StatusFailure      Status = "failure"
	StatusLimitExceeded Status = "limit_exceeded"
	StatusAborted      Status = "aborted"

	ReasonLimitExceeded TerminationReason = "limit_exceeded"

	PhaseReason    Phase = "reason"
	PhaseTool      Phase = "tool"
	PhaseObserve   Phase = "observe"
	PhaseMemory    Phase = "memory"
	PhaseRetry     Phase = "retry"
	PhaseTerminate Phase = "terminate"

	StepOK    StepStatus = "ok"
	StepError StepStatus = "error"
	StepRetry StepStatus = "retry"
)

// MarshalJSON merges Extra back into the wire representation so unknown
// fields round-trip unchanged, per the step record schema contract.
func (s Step) MarshalJSON() ([]byte, error) {
	type alias Step
	b, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return b, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes a step record, stashing any field not part of the
// known schema into Extra.
func (s *Step) UnmarshalJSON(data []byte) error {
	type alias Step
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Step(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{
		"step_id": true, "timestamp": true, "phase": true, "input": true,
		"output": true, "state_ref": true, "diff_ref": true, "status": true,
		"duration_ms": true,
	}
	for k, v := range raw {
		if !known[k] {
			if s.Extra == nil {
				s.Extra = map[string]json.RawMessage{}
			}
			s.Extra[k] = v
		}
	}
	return nil
}
