package analysis

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/traceforge/traceforge/artifact"
)

// ModifyFunc applies a counterfactual edit to the pivot step's input or
// output. It receives the pivot step as recorded in the source run and
// returns the modified version; StepID, phase, and timestamp are left
// untouched by the kernel regardless of what ModifyFunc returns for them.
type ModifyFunc func(pivot artifact.Step) artifact.Step

// Counterfactual constructs a new run directory tagged "simulation" from
// sourceDir: every step strictly before pivotStepID is carried forward
// verbatim (its snapshot and diff referenced by relative path into the
// source run rather than copied), the pivot step has modify applied and
// its status forced to artifact.StepRetry, and nothing after the pivot is
// written. The source run is never touched.
func Counterfactual(sourceDir, newRunDir string, pivotStepID int, modify ModifyFunc) (*artifact.Run, error) {
	src, err := artifact.Load(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("analysis: counterfactual: load source: %w", err)
	}

	meta := src.Meta
	meta.RunID = uuid.NewString()
	meta.Status = ""
	meta.TerminationReason = ""
	meta.Truncated = false
	meta.Tags = append(append([]string{}, meta.Tags...), "simulation", "source:"+src.Meta.RunID)

	store, err := artifact.Create(newRunDir, meta)
	if err != nil {
		return nil, fmt.Errorf("analysis: counterfactual: create run: %w", err)
	}

	pivotFound := false
	for _, step := range src.Steps {
		if step.StepID > pivotStepID {
			break
		}

		ref, err := relRef(newRunDir, sourceDir, "snapshots", fmt.Sprintf("step_%d.json", step.StepID))
		if err != nil {
			return nil, fmt.Errorf("analysis: counterfactual: relative snapshot ref: %w", err)
		}
		step.StateRef = ref
		if step.DiffRef != "" {
			diffRef, err := relRef(newRunDir, sourceDir, "diffs", fmt.Sprintf("step_%d.diff.json", step.StepID))
			if err != nil {
				return nil, fmt.Errorf("analysis: counterfactual: relative diff ref: %w", err)
			}
			step.DiffRef = diffRef
		}

		if step.StepID == pivotStepID {
			modified := modify(step)
			modified.StepID = step.StepID
			modified.Phase = step.Phase
			modified.Timestamp = step.Timestamp
			modified.StateRef = step.StateRef
			modified.DiffRef = step.DiffRef
			modified.Status = artifact.StepRetry
			step = modified
			pivotFound = true
		}

		if err := store.AppendStep(step); err != nil {
			return nil, fmt.Errorf("analysis: counterfactual: append step %d: %w", step.StepID, err)
		}
		if step.StepID == pivotStepID {
			break
		}
	}
	if !pivotFound {
		return nil, fmt.Errorf("analysis: counterfactual: pivot step %d not found in source run", pivotStepID)
	}

	if err := store.Seal(artifact.StatusAborted, "", false); err != nil {
		return nil, fmt.Errorf("analysis: counterfactual: seal: %w", err)
	}
	return artifact.Load(newRunDir)
}

// relRef computes the relative path, as seen from newRunDir, to a file
// under sourceDir/sub/name — used to reference a kept step's snapshot or
// diff without copying it.
func relRef(newRunDir, sourceDir, sub, name string) (string, error) {
	target := filepath.Join(sourceDir, sub, name)
	rel, err := filepath.Rel(newRunDir, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
