package recorder

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/traceforge/traceforge/artifact"
)

// computeDiff produces the structural delta between two snapshots by
// round-tripping both through JSON into generic maps and walking them in
// lockstep. There is no third-party structural (path-addressed) diff
// library in use anywhere in the teacher's stack — the available diff
// packages in the wider ecosystem operate on text, not arbitrary decoded
// JSON values — so this walk is hand-rolled, matching the standard-library
// justification recorded in DESIGN.md.
func computeDiff(stepID int, prev, next artifact.Snapshot) (artifact.Diff, error) {
	prevMap, err := toGeneric(prev)
	if err != nil {
		return artifact.Diff{}, fmt.Errorf("recorder: encode prev snapshot: %w", err)
	}
	nextMap, err := toGeneric(next)
	if err != nil {
		return artifact.Diff{}, fmt.Errorf("recorder: encode next snapshot: %w", err)
	}
	var changes []artifact.Change
	walkDiff(nil, prevMap, nextMap, &changes)
	sort.Slice(changes, func(i, j int) bool {
		return fmt.Sprint(changes[i].Path) < fmt.Sprint(changes[j].Path)
	})
	return artifact.Diff{StepID: stepID, Changes: changes}, nil
}

func toGeneric(snap artifact.Snapshot) (map[string]any, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func walkDiff(path []string, prev, next any, changes *[]artifact.Change) {
	prevMap, prevIsMap := prev.(map[string]any)
	nextMap, nextIsMap := next.(map[string]any)
	if prevIsMap && nextIsMap {
		keys := map[string]struct{}{}
		for k := range prevMap {
			keys[k] = struct{}{}
		}
		for k := range nextMap {
			keys[k] = struct{}{}
		}
		for k := range keys {
			walkDiff(append(append([]string{}, path...), k), prevMap[k], nextMap[k], changes)
		}
		return
	}
	if !reflect.DeepEqual(prev, next) {
		*changes = append(*changes, artifact.Change{
			Path:     append([]string{}, path...),
			OldValue: prev,
			NewValue: next,
		})
	}
}
