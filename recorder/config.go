package recorder

import (
	"regexp"

	"github.com/traceforge/traceforge/telemetry"
)

// DefaultMaxSteps is the step-count ceiling applied when Config.MaxSteps is
// left at zero.
const DefaultMaxSteps = 1000

// Config configures a run at Init time. Zero-value fields fall back to
// documented defaults.
type Config struct {
	RunDir       string
	AgentVersion string
	LLM          string
	Temperature  float64
	Tools        []string
	Seed         int64
	Tags         []string

	// Lenient relaxes the instrumentation error mode: misuse (no active
	// run, nested step, exceeding the process-wide single-active-run
	// constraint) is logged and swallowed instead of returned as an error.
	// The default (false) is strict: misuse is a loud failure, matching the
	// safety posture a trace substrate needs by default.
	Lenient bool

	// MaxSteps bounds the number of step records a run may persist before
	// it is force-sealed truncated. Zero means DefaultMaxSteps.
	MaxSteps int

	// CatalogPath, if set, indexes this run into the artifact.Catalog
	// database at the given path when the run seals. A failure to index
	// is logged and never fails Stop: the catalog is purely a discovery
	// accelerator, never the source of truth for a run's state.
	CatalogPath string

	// RedactValuePatterns overrides the default value-level redaction
	// patterns (secret-shaped strings, regardless of key name). Nil selects
	// DefaultRedactPatterns.
	RedactValuePatterns []*regexp.Regexp

	// RedactKeyPattern overrides the default key-name redaction pattern,
	// matched against map keys at any nesting depth. An override is applied
	// as given; DefaultRedactKeyPattern is case-insensitive. Nil selects
	// DefaultRedactKeyPattern.
	RedactKeyPattern *regexp.Regexp

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

func (c Config) maxSteps() int {
	if c.MaxSteps > 0 {
		return c.MaxSteps
	}
	return DefaultMaxSteps
}

func (c Config) logger() telemetry.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return telemetry.NewNoopLogger()
}

func (c Config) metrics() telemetry.Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return telemetry.NewNoopMetrics()
}

func (c Config) tracer() telemetry.Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}
	return telemetry.NewNoopTracer()
}
