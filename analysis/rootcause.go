package analysis

import (
	"fmt"

	"github.com/traceforge/traceforge/artifact"
)

// RootCause describes the first failure in a run and the steps that led
// up to it.
type RootCause struct {
	FailureStepID int
	Chain         []int
	Confidence    float64
	Description   string
}

// rootCauseConfidence is a fixed heuristic value: the kernel does not
// attempt to model causal strength, only to name a plausible failure
// point and its immediate predecessors.
const rootCauseConfidence = 0.8

// FindRootCause returns the first step with status error, along with up
// to three preceding step identifiers as its causal chain. It returns
// false if no step failed.
func FindRootCause(steps []artifact.Step) (RootCause, bool) {
	for i, s := range steps {
		if s.Status != artifact.StepError {
			continue
		}
		start := i - 3
		if start < 0 {
			start = 0
		}
		var chain []int
		for k := start; k < i; k++ {
			chain = append(chain, steps[k].StepID)
		}
		desc := fmt.Sprintf("step %d failed", s.StepID)
		if len(chain) > 0 {
			desc = fmt.Sprintf("step %d failed, preceded by steps %v", s.StepID, chain)
		}
		return RootCause{
			FailureStepID: s.StepID,
			Chain:         chain,
			Confidence:    rootCauseConfidence,
			Description:   desc,
		}, true
	}
	return RootCause{}, false
}
