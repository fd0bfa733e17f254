package models

import "errors"

// Domain-level sentinel errors for business logic
// These errors should not contain HTTP-specific information

var (
	// ErrTripNotFound indicates that a trip with the given ID does not exist
	ErrTripNotFound = errors.New("trip not found")

	// ErrVersionConflict indicates a compare-and-swap version mismatch; the
	// caller must re-read the document and resubmit its change
	ErrVersionConflict = errors.New("version conflict: trip was modified by another user")

	// ErrJobNotFound indicates that a job with the given ID does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyActive indicates that a non-terminal job already exists
	// for the trip
	ErrJobAlreadyActive = errors.New("an active job already exists for this trip")

	// ErrSessionNotFound indicates that a session with the given ID does not exist
	ErrSessionNotFound = errors.New("session not found")
)
