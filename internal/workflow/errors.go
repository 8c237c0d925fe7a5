package workflow

import "errors"

var (
	// ErrHardSearchFailure marks a lead search error that, combined with zero
	// discovered leads, fails the whole run.
	ErrHardSearchFailure = errors.New("lead search hard failure")

	// ErrTransient marks a per-item collaborator failure. Items are retried
	// once and then degraded (email absent / validation unknown).
	ErrTransient = errors.New("transient collaborator failure")

	// ErrCredentialMissing marks a collaborator that cannot be used at all for
	// this run. The affected stage degrades instead of aborting the run.
	ErrCredentialMissing = errors.New("collaborator credential missing")

	// ErrRunCancelled is returned when a run is cancelled between stages.
	ErrRunCancelled = errors.New("run cancelled")
)
