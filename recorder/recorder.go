// Package recorder implements the Trace Recorder: the instrumentation
// surface an agent process calls into while it runs, producing an append-
// only artifact.Store trace of every reasoning step, tool call, and memory
// update.
//
// A Recorder's zero value is idle. Init transitions it to recording and
// Stop seals it; every other method is only meaningful between those two
// calls. At most one Recorder in this process may be in the recording
// state at a time — a second Init while one is active fails with
// ErrAlreadyActive in strict mode, or is a no-op in lenient mode.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/traceforge/traceforge/artifact"
	"github.com/traceforge/traceforge/telemetry"
)

type runState int32

const (
	stateIdle runState = iota
	stateRecording
	stateSealed
)

var (
	procMu     sync.Mutex
	procActive *Recorder
)

// Recorder is the per-run instrumentation handle returned by Init. Its zero
// value is a valid, idle recorder: calling any instrumentation method on it
// before Init returns ErrNoActiveRun in strict mode.
type Recorder struct {
	mu sync.Mutex

	state    runState
	lenient  bool
	maxSteps int

	store       *artifact.Store
	runID       string
	runDir      string
	catalogPath string
	redactor    *redactor

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	nextStepID     int
	stepOpen       bool
	openStepID     int
	prevSnapshot   *artifact.Snapshot
	stagedSnapshot *artifact.Snapshot

	discardedIO uint64
}

// Init constructs a new idle Recorder and immediately initializes it,
// matching the instrumentation surface's init(...) -> run handle contract.
func Init(cfg Config) (*Recorder, error) {
	r := &Recorder{}
	if err := r.Init(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Init transitions an idle Recorder to recording: it creates the backing
// artifact.Store under cfg.RunDir and enforces the process-wide
// single-active-run constraint.
func (r *Recorder) Init(cfg Config) error {
	procMu.Lock()
	defer procMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateIdle {
		return fmt.Errorf("recorder: Init called on a non-idle recorder")
	}
	if procActive != nil {
		if !cfg.Lenient {
			return ErrAlreadyActive
		}
		cfg.logger().Warn(context.Background(), "recorder: Init ignored, another run is already active")
		r.state = stateSealed // lenient no-op recorder behaves as already-sealed: every call is dropped
		r.lenient = true
		r.logger = cfg.logger()
		return nil
	}

	runID := uuid.NewString()
	meta := artifact.Metadata{
		RunID:        runID,
		AgentVersion: cfg.AgentVersion,
		LLM:          cfg.LLM,
		Temperature:  cfg.Temperature,
		Tools:        cfg.Tools,
		Seed:         cfg.Seed,
		CreatedAt:    time.Now().UTC(),
		Tags:         cfg.Tags,
	}
	store, err := artifact.Create(cfg.RunDir, meta)
	if err != nil {
		return fmt.Errorf("recorder: init: %w", err)
	}

	r.state = stateRecording
	r.lenient = cfg.Lenient
	r.maxSteps = cfg.maxSteps()
	r.store = store
	r.runID = runID
	r.runDir = cfg.RunDir
	r.catalogPath = cfg.CatalogPath
	r.redactor = newRedactor(cfg)
	r.logger = cfg.logger()
	r.metrics = cfg.metrics()
	r.tracer = cfg.tracer()
	r.nextStepID = 1

	procActive = r
	return nil
}

// RunID returns the run identifier assigned at Init, or "" if idle.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Stop seals the run with the given terminal status and releases the
// process-wide active-run slot.
func (r *Recorder) Stop(status artifact.Status) error {
	procMu.Lock()
	defer procMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateRecording {
		if r.lenient {
			r.logger.Warn(context.Background(), "recorder: Stop dropped, no active run")
			return nil
		}
		return r.idleErrLocked()
	}
	if r.stepOpen {
		return ErrNestedStep
	}
	if err := r.store.Seal(status, "", false); err != nil {
		return fmt.Errorf("recorder: stop: %w", err)
	}
	r.state = stateSealed
	if procActive == r {
		procActive = nil
	}
	r.indexCatalog()
	return nil
}

// indexCatalog updates the optional catalog database with this run's
// terminal metadata. Must be called after the run has sealed.
func (r *Recorder) indexCatalog() {
	if r.catalogPath == "" {
		return
	}
	cat, err := artifact.OpenCatalog(r.catalogPath)
	if err != nil {
		r.logger.Warn(context.Background(), "recorder: open catalog failed", "error", err)
		return
	}
	defer cat.Close()
	if err := cat.Index(r.runDir); err != nil {
		r.logger.Warn(context.Background(), "recorder: catalog index failed", "error", err)
	}
}

// UpdateMemory stages a snapshot to attach to the next step that closes. If
// no step closes before Stop, the staged snapshot is discarded.
func (r *Recorder) UpdateMemory(snap artifact.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRecording {
		if r.lenient {
			r.logger.Warn(context.Background(), "recorder: UpdateMemory dropped, no active run")
			return nil
		}
		return r.idleErrLocked()
	}
	snap.Memory = redactMemory(r.redactor, snap.Memory)
	snap.ToolsState = r.redactor.RedactMap(snap.ToolsState)
	r.stagedSnapshot = &snap
	return nil
}

func redactMemory(red *redactor, entries []map[string]any) []map[string]any {
	if entries == nil {
		return nil
	}
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = red.RedactMap(e)
	}
	return out
}

// Step opens a new step scope. Exactly one step may be open on a Recorder
// at a time; opening a second step before the first is closed fails with
// ErrNestedStep (strict) or returns a scope whose writes are discarded
// (lenient).
func (r *Recorder) Step(phase artifact.Phase, input map[string]any) (*StepScope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openStepLocked(phase, input)
}

func (r *Recorder) openStepLocked(phase artifact.Phase, input map[string]any) (*StepScope, error) {
	if r.state != stateRecording {
		if r.lenient {
			r.logger.Warn(context.Background(), "recorder: step dropped, no active run", "phase", string(phase))
			return newDiscardScope(phase), nil
		}
		return nil, r.idleErrLocked()
	}
	if r.stepOpen {
		if r.lenient {
			r.logger.Warn(context.Background(), "recorder: nested step dropped", "phase", string(phase))
			return newDiscardScope(phase), nil
		}
		return nil, ErrNestedStep
	}
	if r.nextStepID > r.maxSteps-1 {
		r.sealForLimitLocked()
		return nil, ErrLimitExceeded
	}

	stepID := r.nextStepID
	r.nextStepID++
	r.stepOpen = true
	r.openStepID = stepID

	redacted := r.redactor.RedactMap(input)
	return &StepScope{
		rec:    r,
		stepID: stepID,
		phase:  phase,
		input:  redacted,
		status: artifact.StepOK,
		output: map[string]any{},
		start:  time.Now(),
	}, nil
}

// idleErrLocked reports why the recorder refused a call while not actively
// recording. Must be called with r.mu held.
func (r *Recorder) idleErrLocked() error {
	if r.state == stateSealed {
		return ErrSealed
	}
	return ErrNoActiveRun
}

// sealForLimitLocked writes a terminal terminate step, seals the run
// truncated, and marks the recorder sealed. Must be called with r.mu held
// and with no step currently open.
func (r *Recorder) sealForLimitLocked() {
	stepID := r.nextStepID
	snap := artifact.Snapshot{StepID: stepID}
	if r.prevSnapshot != nil {
		snap = *r.prevSnapshot
		snap.StepID = stepID
	}
	if err := r.store.WriteSnapshot(stepID, snap); err != nil {
		r.logger.Error(context.Background(), "recorder: write terminate snapshot failed", "error", err)
	}
	step := artifact.Step{
		StepID:    stepID,
		Timestamp: time.Now().UnixMilli(),
		Phase:     artifact.PhaseTerminate,
		Input:     map[string]any{},
		Output:    map[string]any{"reason": string(artifact.ReasonLimitExceeded)},
		StateRef:  snapshotRef(stepID),
		Status:    artifact.StepOK,
	}
	if err := r.store.AppendStep(step); err != nil {
		r.logger.Error(context.Background(), "recorder: append terminate step failed", "error", err)
	}
	if err := r.store.Seal(artifact.StatusLimitExceeded, artifact.ReasonLimitExceeded, true); err != nil {
		r.logger.Error(context.Background(), "recorder: seal on limit failed", "error", err)
	}
	r.state = stateSealed
	r.metrics.IncCounter("recorder.run.truncated", 1)
	if procActive == r {
		procActive = nil
	}
	r.indexCatalog()
}

// bindToolIO routes captured tool I/O bytes to the currently open step, or
// discards them with a warning counter if no step is open (e.g. the step
// closed between the tool call starting and its output stream flushing).
func (r *Recorder) bindToolIO(stream string, data []byte) {
	r.mu.Lock()
	open := r.stepOpen
	stepID := r.openStepID
	store := r.store
	r.mu.Unlock()

	if !open || store == nil {
		r.discardIO(stream, len(data))
		return
	}
	if err := store.CaptureToolIO(stepID, stream, data); err != nil {
		r.logger.Warn(context.Background(), "recorder: capture tool io failed", "error", err)
	}
}

func (r *Recorder) discardIO(stream string, n int) {
	r.mu.Lock()
	r.discardedIO++
	count := r.discardedIO
	logger := r.logger
	r.mu.Unlock()
	if logger == nil {
		return
	}
	logger.Warn(context.Background(), "recorder: discarding tool i/o written after step closed",
		"stream", stream, "bytes", n, "discarded_total", count)
}

func snapshotRef(stepID int) string { return fmt.Sprintf("snapshots/step_%d.json", stepID) }
func diffRef(stepID int) string     { return fmt.Sprintf("diffs/step_%d.diff.json", stepID) }
