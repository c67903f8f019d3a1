package replay

import "errors"

var (
	// ErrCursorExhausted is returned when the agent under replay requests
	// more model/tool calls than the source run recorded.
	ErrCursorExhausted = errors.New("replay: cursor exhausted, no more recorded steps")

	// ErrToolMismatch is returned when the phase or tool name requested by
	// the agent under replay does not match the next recorded step.
	ErrToolMismatch = errors.New("replay: requested call does not match recorded step")
)
