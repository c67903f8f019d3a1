package recorder

import (
	"fmt"
	"time"

	"github.com/traceforge/traceforge/artifact"
)

// StepScope is the mutable handle returned by Recorder.Step. Callers set
// output fields and status on it as work progresses, then Close (success)
// or Fail (failure) it exactly once; either call guarantees the step is
// appended to the artifact store regardless of which exit path was taken.
type StepScope struct {
	rec    *Recorder
	stepID int
	phase  artifact.Phase
	input  map[string]any
	output map[string]any
	status artifact.StepStatus
	start  time.Time
	closed bool

	// discard is set on scopes handed back in lenient mode when no step
	// could actually be opened (no active run, or one already open); every
	// mutation and the final Close/Fail are no-ops.
	discard bool
}

func newDiscardScope(phase artifact.Phase) *StepScope {
	return &StepScope{phase: phase, output: map[string]any{}, discard: true}
}

// StepID returns the step's assigned identifier.
func (s *StepScope) StepID() int { return s.stepID }

// SetOutput sets a single field of the step's output payload. Safe to call
// multiple times; later calls for the same key overwrite earlier ones.
func (s *StepScope) SetOutput(key string, value any) {
	if s.discard || s.closed {
		return
	}
	if s.output == nil {
		s.output = map[string]any{}
	}
	s.output[key] = value
}

// SetStatus overrides the step's outcome status, which otherwise defaults
// to artifact.StepOK.
func (s *StepScope) SetStatus(status artifact.StepStatus) {
	if s.discard || s.closed {
		return
	}
	s.status = status
}

// Close finalizes the step as currently staged and appends it to the
// artifact store. Close is called once; calling it a second time returns an
// error.
func (s *StepScope) Close() error {
	if s.discard {
		return nil
	}
	if s.closed {
		return fmt.Errorf("recorder: step %d already closed", s.stepID)
	}
	s.closed = true
	return s.rec.closeStep(s)
}

// Fail marks the step as errored, recording err's message in the output
// payload under "error", then closes it. Fail is the idiomatic exit path
// from a deferred recovery: `defer func() { if err != nil { scope.Fail(err) } }()`.
func (s *StepScope) Fail(err error) error {
	if s.discard {
		return nil
	}
	if !s.closed {
		s.SetStatus(artifact.StepError)
		if err != nil {
			s.SetOutput("error", err.Error())
		}
	}
	return s.Close()
}

// closeStep writes the snapshot, diff (if any), and step record for scope,
// then reopens the recorder for the next step.
func (r *Recorder) closeStep(scope *StepScope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.stepOpen || r.openStepID != scope.stepID {
		return fmt.Errorf("recorder: step %d is not the open step", scope.stepID)
	}

	snap := artifact.Snapshot{StepID: scope.stepID}
	if r.stagedSnapshot != nil {
		snap = *r.stagedSnapshot
		snap.StepID = scope.stepID
		r.stagedSnapshot = nil
	} else if r.prevSnapshot != nil {
		snap = *r.prevSnapshot
		snap.StepID = scope.stepID
	}
	if err := r.store.WriteSnapshot(scope.stepID, snap); err != nil {
		return fmt.Errorf("recorder: close step %d: %w", scope.stepID, err)
	}

	var diffRefStr string
	if r.prevSnapshot != nil {
		diff, err := computeDiff(scope.stepID, *r.prevSnapshot, snap)
		if err != nil {
			return fmt.Errorf("recorder: close step %d: %w", scope.stepID, err)
		}
		if len(diff.Changes) > 0 {
			if err := r.store.WriteDiff(scope.stepID, diff); err != nil {
				return fmt.Errorf("recorder: close step %d: %w", scope.stepID, err)
			}
			diffRefStr = diffRef(scope.stepID)
		}
	}
	r.prevSnapshot = &snap

	duration := time.Since(scope.start).Milliseconds()
	step := artifact.Step{
		StepID:     scope.stepID,
		Timestamp:  scope.start.UnixMilli(),
		Phase:      scope.phase,
		Input:      scope.input,
		Output:     r.redactor.RedactMap(scope.output),
		StateRef:   snapshotRef(scope.stepID),
		DiffRef:    diffRefStr,
		Status:     scope.status,
		DurationMs: &duration,
	}
	if err := r.store.AppendStep(step); err != nil {
		return fmt.Errorf("recorder: close step %d: %w", scope.stepID, err)
	}

	r.stepOpen = false
	r.metrics.IncCounter("recorder.step.count", 1, "phase", string(scope.phase), "status", string(scope.status))
	return nil
}
