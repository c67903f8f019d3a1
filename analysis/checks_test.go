package analysis

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"github.com/traceforge/traceforge/artifact"
)

func TestClassifyTool(t *testing.T) {
	explore, commit := ClassifyTool("fs.read_file")
	require.True(t, explore)
	require.False(t, commit)

	explore, commit = ClassifyTool("fs.write_file")
	require.False(t, explore)
	require.True(t, commit)

	explore, commit = ClassifyTool("noop")
	require.False(t, explore)
	require.False(t, commit)
}

func TestCheckRetryCeilingPassesAtHalf(t *testing.T) {
	steps := []artifact.Step{
		{StepID: 1, Status: artifact.StepRetry},
		{StepID: 2, Status: artifact.StepOK},
	}
	result := CheckRetryCeiling(steps)
	require.True(t, result.Pass)
}

func TestCheckRetryCeilingFailsAboveHalf(t *testing.T) {
	steps := []artifact.Step{
		{StepID: 1, Status: artifact.StepRetry},
		{StepID: 2, Status: artifact.StepRetry},
		{StepID: 3, Status: artifact.StepOK},
	}
	result := CheckRetryCeiling(steps)
	require.False(t, result.Pass)
}

func TestCheckToolOrderingPassesWithNoConstraints(t *testing.T) {
	result := CheckToolOrdering(nil, nil)
	require.True(t, result.Pass)
}

func TestCheckToolOrderingDetectsViolation(t *testing.T) {
	steps := []artifact.Step{
		{StepID: 1, Phase: artifact.PhaseTool, Input: map[string]any{"tool": "commit"}},
		{StepID: 2, Phase: artifact.PhaseTool, Input: map[string]any{"tool": "plan"}},
	}
	result := CheckToolOrdering(steps, []OrderConstraint{{Before: "plan", After: "commit"}})
	require.False(t, result.Pass)
}

func TestCheckToolOrderingPassesWhenOrderRespected(t *testing.T) {
	steps := []artifact.Step{
		{StepID: 1, Phase: artifact.PhaseTool, Input: map[string]any{"tool": "plan"}},
		{StepID: 2, Phase: artifact.PhaseTool, Input: map[string]any{"tool": "commit"}},
	}
	result := CheckToolOrdering(steps, []OrderConstraint{{Before: "plan", After: "commit"}})
	require.True(t, result.Pass)
}

func TestRegistryRunsRequiredChecks(t *testing.T) {
	reg := NewRegistry()
	results := reg.RunAll(nil)
	require.Len(t, results, 2)
	require.Equal(t, "retry_ceiling", results[0].Name)
	require.Equal(t, "tool_ordering", results[1].Name)
}

func TestRegistryRunsRegisteredCheck(t *testing.T) {
	reg := NewRegistry()
	reg.Register(func(steps []artifact.Step) CheckResult {
		return CheckResult{Name: "custom", Pass: len(steps) > 0}
	})
	results := reg.RunAll(nil)
	require.Len(t, results, 3)
	require.Equal(t, "custom", results[2].Name)
	require.False(t, results[2].Pass)
}

// TestRetryCeilingThresholdProperty verifies the retry ceiling check passes
// exactly when the retry ratio does not exceed one half, for any mix of
// retry and ok steps.
func TestRetryCeilingThresholdProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("pass iff retries <= half of total", prop.ForAll(
		func(retries, ok int) bool {
			if retries+ok == 0 {
				return true
			}
			steps := make([]artifact.Step, 0, retries+ok)
			for i := 0; i < retries; i++ {
				steps = append(steps, artifact.Step{StepID: i + 1, Status: artifact.StepRetry})
			}
			for i := 0; i < ok; i++ {
				steps = append(steps, artifact.Step{StepID: retries + i + 1, Status: artifact.StepOK})
			}
			want := float64(retries)/float64(retries+ok) <= 0.5
			return CheckRetryCeiling(steps).Pass == want
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
