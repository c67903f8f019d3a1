package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/traceforge/traceforge/artifact"
)

func TestLabelsRetryLoopRequiresTwoConsecutive(t *testing.T) {
	steps := []artifact.Step{
		{StepID: 1, Status: artifact.StepRetry},
		{StepID: 2, Status: artifact.StepOK},
	}
	labels := Labels(steps)
	require.Empty(t, labels)
}

func TestLabelsRetryLoopMarksRun(t *testing.T) {
	steps := []artifact.Step{
		{StepID: 1, Status: artifact.StepRetry},
		{StepID: 2, Status: artifact.StepRetry},
		{StepID: 3, Status: artifact.StepOK},
	}
	labels := Labels(steps)
	require.Contains(t, labels[1], LabelRetryLoop)
	require.Contains(t, labels[2], LabelRetryLoop)
	require.NotContains(t, labels, 3)
}

func TestLabelsExplorationAndCommitment(t *testing.T) {
	steps := []artifact.Step{
		{StepID: 1, Phase: artifact.PhaseTool, Status: artifact.StepOK, Input: map[string]any{"tool": "search"}},
		{StepID: 2, Phase: artifact.PhaseTool, Status: artifact.StepOK, Input: map[string]any{"tool": "write_file"}},
	}
	labels := Labels(steps)
	require.Contains(t, labels[1], LabelExploration)
	require.Contains(t, labels[2], LabelCommitment)
}
