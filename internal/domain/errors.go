package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTransition is returned when a job status change would move
	// backwards along the lifecycle or leave a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus is returned when a job status value is not one of the
	// known lifecycle states.
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrUnknownProvider is returned when a job references a provider that
	// is not configured.
	ErrUnknownProvider = errors.New("unknown provider")
)
