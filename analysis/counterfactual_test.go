package analysis

import (
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/traceforge/traceforge/artifact"
)

func buildThreeStepRun(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "source")
	store, err := artifact.Create(dir, artifact.Metadata{RunID: "src-cf", LLM: "test-llm", Tags: []string{"baseline"}})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.WriteSnapshot(i, artifact.Snapshot{StepID: i, ContextTokens: i * 10}))
		require.NoError(t, store.AppendStep(artifact.Step{
			StepID: i, Phase: artifact.PhaseTool,
			Input:  map[string]any{"tool": "search", "args": map[string]any{"q": i}},
			Output: map[string]any{"result": i},
			Status: artifact.StepOK, StateRef: filepath.Join("snapshots", "step_"+strconv.Itoa(i)+".json"),
		}))
	}
	require.NoError(t, store.Seal(artifact.StatusSuccess, "", false))
	return dir
}

func TestCounterfactualCarriesPriorStepsAndAppliesPivot(t *testing.T) {
	sourceDir := buildThreeStepRun(t)
	newDir := filepath.Join(t.TempDir(), "branch")

	run, err := Counterfactual(sourceDir, newDir, 2, func(pivot artifact.Step) artifact.Step {
		pivot.Input["args"] = map[string]any{"q": "modified"}
		return pivot
	})
	require.NoError(t, err)
	require.Len(t, run.Steps, 2)

	require.Equal(t, artifact.StepOK, run.Steps[0].Status)
	require.Equal(t, artifact.StepRetry, run.Steps[1].Status)
	require.Equal(t, "modified", run.Steps[1].Input["args"].(map[string]any)["q"])

	require.Contains(t, run.Meta.Tags, "simulation")
	found := false
	for _, tag := range run.Meta.Tags {
		if strings.HasPrefix(tag, "source:") {
			found = true
		}
	}
	require.True(t, found)
	require.Equal(t, artifact.StatusAborted, run.Meta.Status)

	require.NotEqual(t, "src-cf", run.Meta.RunID)

	// the kept step's state ref must resolve, relative to newDir, back into
	// sourceDir rather than duplicating the snapshot file.
	require.True(t, strings.Contains(run.Steps[0].StateRef, ".."))
}

func TestCounterfactualSourceRunUntouched(t *testing.T) {
	sourceDir := buildThreeStepRun(t)
	before, err := artifact.Load(sourceDir)
	require.NoError(t, err)

	newDir := filepath.Join(t.TempDir(), "branch")
	_, err = Counterfactual(sourceDir, newDir, 1, func(pivot artifact.Step) artifact.Step { return pivot })
	require.NoError(t, err)

	after, err := artifact.Load(sourceDir)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestCounterfactualUnknownPivotErrors(t *testing.T) {
	sourceDir := buildThreeStepRun(t)
	newDir := filepath.Join(t.TempDir(), "branch")
	_, err := Counterfactual(sourceDir, newDir, 99, func(pivot artifact.Step) artifact.Step { return pivot })
	require.Error(t, err)
}
