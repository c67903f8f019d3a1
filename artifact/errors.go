package artifact

import "errors"

// Sentinel errors returned by Store operations. Callers should use
// errors.Is against these values; wrapped context is added with fmt.Errorf.
var (
	// ErrInvalidArtifact indicates missing metadata, a malformed metadata
	// file, or an unreadable run directory.
	ErrInvalidArtifact = errors.New("artifact: invalid artifact")

	// ErrSealed indicates an attempted write against a run that has already
	// been sealed.
	ErrSealed = errors.New("artifact: run is sealed")

	// ErrNotFound names a run directory that does not exist. No operation in
	// this package returns it: Load and Seal report a missing run directory
	// or meta.json as ErrInvalidArtifact.
	ErrNotFound = errors.New("artifact: run not found")
)
