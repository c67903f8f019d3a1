package replay

import (
	"fmt"

	"github.com/traceforge/traceforge/artifact"
)

// compareFinalFields compares the key final-snapshot fields the matching
// algorithm cares about: the step counter, the context token count, and a
// conventional "goal" entry in tools_state if either snapshot carries one.
// It returns a human-readable detail string describing the first
// difference found, or "" if the snapshots agree on every field checked.
func compareFinalFields(orig, replay artifact.Snapshot) string {
	if orig.StepID != replay.StepID {
		return fmt.Sprintf("step counter: original=%d replay=%d", orig.StepID, replay.StepID)
	}
	if orig.ContextTokens != replay.ContextTokens {
		return fmt.Sprintf("context_tokens: original=%d replay=%d", orig.ContextTokens, replay.ContextTokens)
	}
	origGoal, origHasGoal := orig.ToolsState["goal"]
	replayGoal, replayHasGoal := replay.ToolsState["goal"]
	if origHasGoal || replayHasGoal {
		if origGoal != replayGoal {
			return fmt.Sprintf("goal: original=%v replay=%v", origGoal, replayGoal)
		}
	}
	return ""
}
