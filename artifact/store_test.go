package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testMeta(runID string) Metadata {
	return Metadata{
		RunID:        runID,
		AgentVersion: "1",
		LLM:          "m",
		Seed:         0,
		Tools:        []string{"s"},
		CreatedAt:    time.Now().UTC(),
		Status:       "", // written only at seal
	}
}

func TestCreateAppendSeal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run1")
	store, err := Create(dir, testMeta("run1"))
	require.NoError(t, err)

	require.NoError(t, store.AppendStep(Step{
		StepID: 1, Timestamp: 1, Phase: PhaseReason,
		Input: map[string]any{"p": "hi"}, Output: map[string]any{"r": "ok"},
		StateRef: "snapshots/step_1.json", Status: StepOK,
	}))
	require.NoError(t, store.WriteSnapshot(1, Snapshot{StepID: 1, ContextTokens: 10}))

	require.NoError(t, store.AppendStep(Step{
		StepID: 2, Timestamp: 2, Phase: PhaseTool,
		Input: map[string]any{"q": float64(1)}, Output: map[string]any{"result": "R"},
		StateRef: "snapshots/step_2.json", Status: StepOK,
	}))
	require.NoError(t, store.WriteSnapshot(2, Snapshot{StepID: 2, ContextTokens: 12}))

	require.NoError(t, store.Seal(StatusSuccess, "", false))

	run, err := Load(dir)
	require.NoError(t, err)
	require.False(t, run.Partial)
	require.Equal(t, StatusSuccess, run.Meta.Status)
	require.Len(t, run.Steps, 2)
	require.Equal(t, PhaseReason, run.Steps[0].Phase)
	require.Equal(t, PhaseTool, run.Steps[1].Phase)

	snap, err := LoadSnapshot(dir, 1)
	require.NoError(t, err)
	require.Equal(t, 10, snap.ContextTokens)
}

func TestWriteAfterSealFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run2")
	store, err := Create(dir, testMeta("run2"))
	require.NoError(t, err)
	require.NoError(t, store.Seal(StatusSuccess, "", false))

	err = store.AppendStep(Step{StepID: 1, Phase: PhaseReason, Status: StepOK})
	require.ErrorIs(t, err, ErrSealed)
}

func TestLoadPartialTrailingLine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run3")
	store, err := Create(dir, testMeta("run3"))
	require.NoError(t, err)
	require.NoError(t, store.AppendStep(Step{StepID: 1, Phase: PhaseReason, Status: StepOK}))

	// Simulate a crash mid-write: append a malformed trailing line directly.
	f, err := os.OpenFile(filepath.Join(dir, stepLogName), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"step_id":2,"phase":"tool"`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	run, err := Load(dir)
	require.NoError(t, err)
	require.True(t, run.Partial)
	require.Len(t, run.Steps, 1)
}

func TestStepExtraFieldsRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run4")
	store, err := Create(dir, testMeta("run4"))
	require.NoError(t, err)
	require.NoError(t, store.AppendStep(Step{
		StepID: 1, Phase: PhaseReason, Status: StepOK,
	}))

	// Simulate a record written by a newer schema version: append a line
	// carrying a field this version of Step doesn't know about.
	f, err := os.OpenFile(filepath.Join(dir, stepLogName), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"step_id":2,"phase":"reason","status":"ok","custom_field":"x"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, store.Seal(StatusSuccess, "", false))

	run, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, run.Steps, 2)

	step := run.Steps[1]
	require.Equal(t, json.RawMessage(`"x"`), step.Extra["custom_field"])

	b, err := json.Marshal(step)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, json.RawMessage(`"x"`), decoded["custom_field"])
}

func TestCatalogIndexAndList(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "run5")
	store, err := Create(dir, testMeta("run5"))
	require.NoError(t, err)
	require.NoError(t, store.Seal(StatusFailure, "", false))

	cat, err := OpenCatalog(filepath.Join(base, "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()

	require.NoError(t, cat.Index(dir))
	entries, err := cat.List(StatusFailure)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "run5", entries[0].RunID)
}
