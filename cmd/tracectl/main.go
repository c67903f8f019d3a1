// Command tracectl is a thin, read-only reference CLI over the artifact,
// replay, and analysis packages.
//
// # Usage
//
//	tracectl inspect <run_dir>
//	tracectl replay [-verbose] <run_dir> <replay_dir>
//	tracectl analyze <run_dir> [<run_dir_b>]
//	tracectl test [-verbose] <run_dir> <assertion_file>
//	tracectl list <catalog_path>
//
// -verbose, where supported, routes the engine's internal logging through
// a ClueLogger instead of the default no-op, so replay/divergence diagnosis
// has somewhere to go.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/traceforge/traceforge/analysis"
	"github.com/traceforge/traceforge/artifact"
	"github.com/traceforge/traceforge/replay"
	"github.com/traceforge/traceforge/telemetry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "inspect":
		err = cmdInspect(os.Args[2:])
	case "replay":
		err = cmdReplay(os.Args[2:])
	case "analyze":
		err = cmdAnalyze(os.Args[2:])
	case "test":
		err = cmdTest(os.Args[2:])
	case "list":
		err = cmdList(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tracectl <inspect|replay|analyze|test|list> ...")
}

func cmdInspect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("inspect: expected <run_dir>")
	}
	run, err := artifact.Load(args[0])
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	fmt.Printf("run_id:     %s\n", run.Meta.RunID)
	fmt.Printf("agent:      %s (llm=%s)\n", run.Meta.AgentVersion, run.Meta.LLM)
	fmt.Printf("status:     %s\n", run.Meta.Status)
	if run.Meta.TerminationReason != "" {
		fmt.Printf("reason:     %s\n", run.Meta.TerminationReason)
	}
	fmt.Printf("truncated:  %t\n", run.Meta.Truncated)
	fmt.Printf("partial:    %t\n", run.Partial)
	fmt.Printf("steps:      %d\n", len(run.Steps))
	for _, s := range run.Steps {
		fmt.Printf("  [%d] %-9s status=%s\n", s.StepID, s.Phase, s.Status)
	}
	return nil
}

// cmdReplay drives replay.Engine against the recorded run using its own
// recorded outputs as the substitute model/tool endpoints, since the core
// replay contract never invokes an external effect: this exercises the
// matching and divergence logic without requiring a live agent process.
func cmdReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "log engine diagnostics via a ClueLogger instead of discarding them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("replay: expected [-verbose] <run_dir> <replay_dir>")
	}
	sourceDir, replayDir := fs.Arg(0), fs.Arg(1)

	source, err := artifact.Load(sourceDir)
	if err != nil {
		return fmt.Errorf("load source run: %w", err)
	}

	cfg := replay.Config{}
	if *verbose {
		cfg.Logger = telemetry.NewClueLogger()
	}
	eng, err := replay.New(sourceDir, cfg)
	if err != nil {
		return fmt.Errorf("new engine: %w", err)
	}
	if err := eng.Start(replayDir); err != nil {
		return fmt.Errorf("start replay: %w", err)
	}

	ctx := context.Background()
	var lastSnap artifact.Snapshot
	for _, step := range source.Steps {
		switch step.Phase {
		case artifact.PhaseReason:
			if _, err := eng.Model(ctx, step.Input); err != nil {
				fmt.Fprintf(os.Stderr, "tracectl: replay step %d: %v\n", step.StepID, err)
			}
		case artifact.PhaseTool:
			name, _ := step.Input["tool"].(string)
			if _, err := eng.Tool(ctx, name, step.Input); err != nil {
				fmt.Fprintf(os.Stderr, "tracectl: replay step %d: %v\n", step.StepID, err)
			}
		}
		if snap, err := artifact.LoadSnapshot(sourceDir, step.StepID); err == nil {
			lastSnap = snap
		}
	}

	result, err := eng.Finish(lastSnap)
	if err != nil {
		return fmt.Errorf("finish replay: %w", err)
	}
	fmt.Printf("replay_dir: %s\n", result.RunDir)
	fmt.Printf("clean:      %t\n", result.Clean())
	for _, d := range result.Divergences {
		fmt.Println(" ", d.String())
	}
	if !result.Clean() {
		os.Exit(1)
	}
	return nil
}

func cmdAnalyze(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("analyze: expected <run_dir> [<run_dir_b>]")
	}
	runA, err := artifact.Load(args[0])
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	fmt.Println("invariant checks:")
	for _, r := range analysis.NewRegistry().RunAll(runA.Steps) {
		fmt.Printf("  %-16s pass=%t %s\n", r.Name, r.Pass, r.Detail)
	}

	if rc, ok := analysis.FindRootCause(runA.Steps); ok {
		fmt.Printf("root cause: step %d (confidence=%.2f) chain=%v\n", rc.FailureStepID, rc.Confidence, rc.Chain)
		fmt.Println(" ", rc.Description)
	}

	for stepID, labels := range analysis.Labels(runA.Steps) {
		fmt.Printf("labels[%d]: %v\n", stepID, labels)
	}

	if len(args) == 2 {
		runB, err := artifact.Load(args[1])
		if err != nil {
			return fmt.Errorf("load run b: %w", err)
		}
		if id, ok := analysis.DivergencePoint(runA.Steps, runB.Steps); ok {
			fmt.Printf("divergence point: step %d\n", id)
		} else {
			fmt.Println("divergence point: none")
		}
		for _, e := range analysis.Align(runA.Steps, runB.Steps) {
			fmt.Printf("  [%d] a=%v b=%v kind=%s\n", e.Index, e.AStepID, e.BStepID, e.Kind)
		}
	}
	return nil
}

func cmdList(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("list: expected <catalog_path>")
	}
	cat, err := artifact.OpenCatalog(args[0])
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	entries, err := cat.List("")
	if err != nil {
		return fmt.Errorf("list catalog: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%-36s %-12s %-9s truncated=%t  %s\n", e.RunID, e.Status, e.TerminationReason, e.Truncated, e.Dir)
	}
	return nil
}
