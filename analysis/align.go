// Package analysis implements the Analysis Kernel: pure functions over one
// or two loaded runs that align steps, locate the point of divergence,
// check invariants, apply semantic labels, identify a likely root cause,
// and construct counterfactual runs. Every function here is side-effect
// free except Counterfactual, which writes a new run directory through
// artifact.Store exactly as the artifact store's own contract requires.
package analysis

import (
	"reflect"

	"github.com/traceforge/traceforge/artifact"
)

// AlignKind classifies one position in a two-run step alignment.
type AlignKind string

const (
	// AlignExact means both runs have a step at this position with equal
	// phase and structurally equal input.
	AlignExact AlignKind = "exact"

	// AlignPhase means both runs have a step at this position with equal
	// phase but differing input.
	AlignPhase AlignKind = "phase"

	// AlignMismatch means the positions disagree on phase, or only one
	// run has a step at this position.
	AlignMismatch AlignKind = "mismatch"
)

// AlignmentEntry is one position in a two-run alignment. AStepID/BStepID
// are nil when the corresponding run has no step at this position.
type AlignmentEntry struct {
	Index   int
	AStepID *int
	BStepID *int
	Kind    AlignKind
}

// Align produces an ordered alignment between runs a and b, iterating by
// index up to max(len(a), len(b)).
func Align(a, b []artifact.Step) []AlignmentEntry {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]AlignmentEntry, 0, n)
	for i := 0; i < n; i++ {
		entry := AlignmentEntry{Index: i}
		hasA := i < len(a)
		hasB := i < len(b)
		if hasA {
			id := a[i].StepID
			entry.AStepID = &id
		}
		if hasB {
			id := b[i].StepID
			entry.BStepID = &id
		}
		switch {
		case hasA && hasB:
			switch {
			case a[i].Phase == b[i].Phase && reflect.DeepEqual(a[i].Input, b[i].Input):
				entry.Kind = AlignExact
			case a[i].Phase == b[i].Phase:
				entry.Kind = AlignPhase
			default:
				entry.Kind = AlignMismatch
			}
		default:
			entry.Kind = AlignMismatch
		}
		out = append(out, entry)
	}
	return out
}

// DivergencePoint returns the step identifier (from run a) at the first
// index where input or output payloads differ structurally. If the runs
// share a common prefix but differ in length, the divergence point is the
// last shared step identifier. The second return value is false when no
// divergence point exists: the runs are structurally identical, or one of
// them is empty so no position is shared.
func DivergencePoint(a, b []artifact.Step) (int, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if !reflect.DeepEqual(a[i].Input, b[i].Input) || !reflect.DeepEqual(a[i].Output, b[i].Output) {
			return a[i].StepID, true
		}
	}
	if len(a) != len(b) {
		if n == 0 {
			return 0, false
		}
		return a[n-1].StepID, true
	}
	return 0, false
}
