package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/traceforge/traceforge/artifact"
	"github.com/traceforge/traceforge/telemetry"
)

// Config configures an Engine at construction time.
type Config struct {
	Logger telemetry.Logger

	// CatalogPath, if set, indexes the replay trace into the
	// artifact.Catalog database at the given path when Finish seals it.
	// A failure to index is logged and never fails Finish.
	CatalogPath string
}

func (c Config) logger() telemetry.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return telemetry.NewNoopLogger()
}

// Engine reproduces a recorded run. The agent under replay calls Model and
// Tool in place of its real model/tool endpoints; Engine answers from the
// recorded step sequence and never invokes an external effect.
type Engine struct {
	mu sync.Mutex

	origDir string
	original *artifact.Run
	pos      int

	replay       *artifact.Store
	nextReplayID int

	divergences []Divergence
	logger      telemetry.Logger
	catalogPath string
}

// New loads the source run at originalDir and prepares an Engine to replay
// it. Start must be called before Model/Tool.
func New(originalDir string, cfg Config) (*Engine, error) {
	run, err := artifact.Load(originalDir)
	if err != nil {
		return nil, fmt.Errorf("replay: load source run: %w", err)
	}
	return &Engine{
		origDir:      originalDir,
		original:     run,
		nextReplayID: 1,
		logger:       cfg.logger(),
		catalogPath:  cfg.CatalogPath,
	}, nil
}

// Start creates the replay trace's run directory, tagged "replay" and
// carrying the originating run identifier as a tag.
func (e *Engine) Start(replayRunDir string) error {
	meta := e.original.Meta
	meta.RunID = uuid.NewString()
	meta.CreatedAt = time.Now().UTC()
	meta.Status = ""
	meta.TerminationReason = ""
	meta.Truncated = false
	meta.Tags = append(append([]string{}, meta.Tags...), "replay", "source:"+e.original.Meta.RunID)

	store, err := artifact.Create(replayRunDir, meta)
	if err != nil {
		return fmt.Errorf("replay: start: %w", err)
	}
	e.replay = store
	return nil
}

// Model answers a model-endpoint invocation by advancing the cursor to the
// next "reason" step and returning its recorded output.
func (e *Engine) Model(ctx context.Context, prompt map[string]any) (map[string]any, error) {
	step, err := e.advance(artifact.PhaseReason)
	if err != nil {
		return nil, err
	}
	if err := e.appendReplay(step); err != nil {
		return nil, err
	}
	return step.Output, nil
}

// Tool answers a tool-endpoint invocation by advancing the cursor to the
// next "tool" step. If the requested tool name does not match the recorded
// tool name at that position, a divergence of kind output_mismatch is
// recorded and ErrToolMismatch is returned.
func (e *Engine) Tool(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	step, err := e.advance(artifact.PhaseTool)
	if err != nil {
		return nil, err
	}
	recordedTool, _ := step.Input["tool"].(string)
	if recordedTool != "" && recordedTool != name {
		e.mu.Lock()
		e.divergences = append(e.divergences, Divergence{
			Kind:   DivergenceOutputMismatch,
			StepID: step.StepID,
			Detail: fmt.Sprintf("replay requested tool %q, recorded step %d expected %q", name, step.StepID, recordedTool),
		})
		e.mu.Unlock()
		_ = e.appendReplay(step)
		return nil, ErrToolMismatch
	}
	if err := e.appendReplay(step); err != nil {
		return nil, err
	}
	return step.Output, nil
}

// advance scans forward from the cursor for the next step matching phase,
// skipping retry/observe/memory steps (replay-invisible per the matching
// algorithm). It returns ErrCursorExhausted, recording an extra_step
// divergence, once the source run's steps are exhausted. A phase mismatch
// at the next matchable position is recorded as an output_mismatch
// divergence and returns ErrToolMismatch.
func (e *Engine) advance(phase artifact.Phase) (artifact.Step, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.pos < len(e.original.Steps) {
		s := e.original.Steps[e.pos]
		if s.Phase == artifact.PhaseRetry || s.Phase == artifact.PhaseObserve || s.Phase == artifact.PhaseMemory {
			e.pos++
			continue
		}
		e.pos++
		if s.Phase != phase {
			e.divergences = append(e.divergences, Divergence{
				Kind:   DivergenceOutputMismatch,
				StepID: s.StepID,
				Detail: fmt.Sprintf("expected a %s step next but replay requested %s", s.Phase, phase),
			})
			return s, ErrToolMismatch
		}
		return s, nil
	}
	e.divergences = append(e.divergences, Divergence{
		Kind:   DivergenceExtraStep,
		StepID: -1,
		Detail: fmt.Sprintf("replay requested a %s step beyond the recorded %d steps", phase, len(e.original.Steps)),
	})
	return artifact.Step{}, ErrCursorExhausted
}

// appendReplay writes step to the replay trace verbatim, under a fresh
// sequential step_id (the replay log must itself be contiguous, even
// though retry/observe/memory steps from the source are never replayed),
// tagging it with the originating step identifier via Step.Extra.
func (e *Engine) appendReplay(step artifact.Step) error {
	e.mu.Lock()
	newID := e.nextReplayID
	e.nextReplayID++
	e.mu.Unlock()

	snap, err := artifact.LoadSnapshot(e.origDir, step.StepID)
	if err != nil {
		snap = artifact.Snapshot{}
	}
	snap.StepID = newID
	if err := e.replay.WriteSnapshot(newID, snap); err != nil {
		return fmt.Errorf("replay: write snapshot for step %d: %w", newID, err)
	}

	sourceID, err := json.Marshal(step.StepID)
	if err != nil {
		return fmt.Errorf("replay: marshal source step id: %w", err)
	}
	replayed, err := json.Marshal(true)
	if err != nil {
		return fmt.Errorf("replay: marshal replayed flag: %w", err)
	}

	replayStep := step
	replayStep.StepID = newID
	replayStep.StateRef = fmt.Sprintf("snapshots/step_%d.json", newID)
	replayStep.DiffRef = ""
	replayStep.Timestamp = time.Now().UnixMilli()
	replayStep.Extra = map[string]json.RawMessage{
		"source_step_id": sourceID,
		"replayed":       replayed,
	}

	if err := e.replay.AppendStep(replayStep); err != nil {
		return fmt.Errorf("replay: append step %d: %w", newID, err)
	}
	return nil
}

// Finish performs the final-snapshot comparison and missing-step check,
// seals the replay trace, and returns the accumulated result. finalSnapshot
// is the agent's reported state at the end of the replayed run.
func (e *Engine) Finish(finalSnapshot artifact.Snapshot) (*Result, error) {
	e.mu.Lock()
	remaining := 0
	for _, s := range e.original.Steps[e.pos:] {
		if s.Phase == artifact.PhaseReason || s.Phase == artifact.PhaseTool {
			remaining++
		}
	}
	if remaining > 0 {
		e.divergences = append(e.divergences, Divergence{
			Kind:   DivergenceMissingStep,
			StepID: -1,
			Detail: fmt.Sprintf("%d recorded step(s) were never replayed", remaining),
		})
	}
	e.mu.Unlock()

	if len(e.original.Steps) > 0 {
		lastID := e.original.Steps[len(e.original.Steps)-1].StepID
		origSnap, err := artifact.LoadSnapshot(e.origDir, lastID)
		if err == nil {
			if detail := compareFinalFields(origSnap, finalSnapshot); detail != "" {
				e.mu.Lock()
				e.divergences = append(e.divergences, Divergence{
					Kind:   DivergenceStateMismatch,
					StepID: lastID,
					Detail: detail,
				})
				e.mu.Unlock()
			}
		}
	}

	status := artifact.StatusSuccess
	if len(e.divergences) > 0 {
		status = artifact.StatusFailure
	}
	if err := e.replay.Seal(status, "", false); err != nil {
		return nil, fmt.Errorf("replay: finish: %w", err)
	}

	e.logger.Info(context.Background(), "replay finished",
		"source_run", e.original.Meta.RunID, "divergences", len(e.divergences))

	if e.catalogPath != "" {
		if cat, err := artifact.OpenCatalog(e.catalogPath); err != nil {
			e.logger.Warn(context.Background(), "replay: open catalog failed", "error", err)
		} else {
			if err := cat.Index(e.replay.Dir()); err != nil {
				e.logger.Warn(context.Background(), "replay: catalog index failed", "error", err)
			}
			cat.Close()
		}
	}

	return &Result{RunDir: e.replay.Dir(), Divergences: e.divergences}, nil
}
