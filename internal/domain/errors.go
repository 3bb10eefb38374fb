package domain

import "errors"

// Domain errors represent error conditions in the veilcap domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Run() is called on a running session.
	ErrAlreadyRunning = errors.New("veilcap: already running")

	// ErrNotRunning is returned when a session operation requires a running session.
	ErrNotRunning = errors.New("veilcap: not running")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("veilcap: invalid configuration")

	// ErrOutputCollision is returned when two outputs resolve to the same path.
	ErrOutputCollision = errors.New("veilcap: output path collision")

	// ErrRestartLimit is returned when recoverable errors exceed the restart cap.
	ErrRestartLimit = errors.New("veilcap: restart limit exceeded")

	// ErrWriterFinished is returned when a sample is appended to a finished writer.
	ErrWriterFinished = errors.New("veilcap: track writer finished")

	// ErrDrainTimeout is returned when finalize callbacks do not complete in time.
	ErrDrainTimeout = errors.New("veilcap: drain timeout")
)
