package recorder

import "errors"

// Sentinel errors returned by Recorder operations. Wrapped context is added
// with fmt.Errorf; callers should use errors.Is against these values.
var (
	// ErrNoActiveRun is returned when an instrumentation call is made while
	// the recorder is idle (before Init, or after Stop) in strict mode.
	ErrNoActiveRun = errors.New("recorder: no active run")

	// ErrAlreadyActive is returned by Init when another recorder in this
	// process is already recording and strict mode is in effect.
	ErrAlreadyActive = errors.New("recorder: another run is already active")

	// ErrSealed is returned when an instrumentation call is made after Stop
	// has sealed the run.
	ErrSealed = errors.New("recorder: run is sealed")

	// ErrLimitExceeded is returned when the configured maximum step count
	// has been reached; the recorder has already sealed the run truncated.
	ErrLimitExceeded = errors.New("recorder: step limit exceeded")

	// ErrNestedStep is returned when a second step is opened while one is
	// already open within the same recorder.
	ErrNestedStep = errors.New("recorder: a step is already open")
)
