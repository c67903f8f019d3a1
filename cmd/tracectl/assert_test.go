package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/traceforge/traceforge/artifact"
)

func buildRun(t *testing.T, status artifact.Status) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "run")
	store, err := artifact.Create(dir, artifact.Metadata{RunID: "r1", LLM: "test-llm"})
	require.NoError(t, err)

	require.NoError(t, store.WriteSnapshot(1, artifact.Snapshot{StepID: 1}))
	require.NoError(t, store.AppendStep(artifact.Step{
		StepID: 1, Phase: artifact.PhaseReason,
		Input: map[string]any{"prompt": "x"}, Output: map[string]any{"action": "done"},
		Status: artifact.StepOK, StateRef: "snapshots/step_1.json",
	}))
	require.NoError(t, store.Seal(status, "", false))
	return dir
}

func TestLoadAssertionsParsesAllKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assert.yaml")
	require.NoError(t, os.WriteFile(path, []byte("step_count: 2\nstatus: success\nmax_divergences: 0\n"), 0o644))

	a, err := loadAssertions(path)
	require.NoError(t, err)
	require.Equal(t, 2, *a.StepCount)
	require.Equal(t, "success", *a.Status)
	require.Equal(t, 0, *a.MaxDivergences)
}

func TestCountDivergencesIdentityReplayIsZero(t *testing.T) {
	dir := buildRun(t, artifact.StatusSuccess)
	n, err := countDivergences(dir, false)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
