package domain

import "errors"

// Sentinel errors wrapped with %w throughout the codebase.
var (
	// ErrValidation marks malformed or missing batch input. A batch that
	// fails validation is rejected before anything is persisted.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup for an entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an illegal state transition, e.g. marking a
	// terminal job as done a second time.
	ErrConflict = errors.New("conflict")

	// ErrAuth marks a failed credential acquisition. Fatal for the current
	// job only, never for the whole run.
	ErrAuth = errors.New("auth error")

	// ErrTransport marks a mail provider rejection. Per-job, non-fatal to
	// the batch.
	ErrTransport = errors.New("transport error")

	// ErrAssembly marks a message encoding failure.
	ErrAssembly = errors.New("assembly error")
)
