package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/traceforge/traceforge/artifact"
	"github.com/traceforge/traceforge/replay"
	"github.com/traceforge/traceforge/telemetry"
	"gopkg.in/yaml.v3"
)

// assertions is the minimal reference subset of the external YAML assertion
// surface: enough to make the test subcommand's exit-code contract concrete.
// A richer assertion language is a Non-goal; this exists to exercise it, not
// to be it.
type assertions struct {
	StepCount      *int    `yaml:"step_count"`
	Status         *string `yaml:"status"`
	MaxDivergences *int    `yaml:"max_divergences"`
}

func loadAssertions(path string) (assertions, error) {
	var a assertions
	b, err := os.ReadFile(path)
	if err != nil {
		return a, fmt.Errorf("read assertion file: %w", err)
	}
	if err := yaml.Unmarshal(b, &a); err != nil {
		return a, fmt.Errorf("parse assertion file: %w", err)
	}
	return a, nil
}

// cmdTest checks a run against an assertion file. max_divergences drives the
// run through replay.Engine against its own recorded outputs, since
// divergence count is otherwise not a property of a single run.
func cmdTest(args []string) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "log engine diagnostics via a ClueLogger instead of discarding them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("test: expected [-verbose] <run_dir> <assertion_file>")
	}
	runDir, assertionPath := fs.Arg(0), fs.Arg(1)

	want, err := loadAssertions(assertionPath)
	if err != nil {
		return err
	}

	run, err := artifact.Load(runDir)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	var failures []string

	if want.StepCount != nil && len(run.Steps) != *want.StepCount {
		failures = append(failures, fmt.Sprintf("step_count: want %d, got %d", *want.StepCount, len(run.Steps)))
	}
	if want.Status != nil && string(run.Meta.Status) != *want.Status {
		failures = append(failures, fmt.Sprintf("status: want %q, got %q", *want.Status, run.Meta.Status))
	}
	if want.MaxDivergences != nil {
		n, err := countDivergences(runDir, *verbose)
		if err != nil {
			return fmt.Errorf("replay for max_divergences: %w", err)
		}
		if n > *want.MaxDivergences {
			failures = append(failures, fmt.Sprintf("max_divergences: want <= %d, got %d", *want.MaxDivergences, n))
		}
	}

	for _, f := range failures {
		fmt.Println("FAIL:", f)
	}
	if len(failures) > 0 {
		os.Exit(1)
	}
	fmt.Println("PASS")
	return nil
}

func countDivergences(runDir string, verbose bool) (int, error) {
	source, err := artifact.Load(runDir)
	if err != nil {
		return 0, err
	}
	cfg := replay.Config{}
	if verbose {
		cfg.Logger = telemetry.NewClueLogger()
	}
	eng, err := replay.New(runDir, cfg)
	if err != nil {
		return 0, err
	}
	replayDir, err := os.MkdirTemp("", "tracectl-test-replay-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(replayDir)
	if err := eng.Start(filepath.Join(replayDir, "replay")); err != nil {
		return 0, err
	}

	ctx := context.Background()
	var lastSnap artifact.Snapshot
	for _, step := range source.Steps {
		switch step.Phase {
		case artifact.PhaseReason:
			_, _ = eng.Model(ctx, step.Input)
		case artifact.PhaseTool:
			name, _ := step.Input["tool"].(string)
			_, _ = eng.Tool(ctx, name, step.Input)
		}
		if snap, err := artifact.LoadSnapshot(runDir, step.StepID); err == nil {
			lastSnap = snap
		}
	}

	result, err := eng.Finish(lastSnap)
	if err != nil {
		return 0, err
	}
	return len(result.Divergences), nil
}
