package model

import "errors"

// Shared error taxonomy. The store maps driver-level errors onto these so
// callers can branch without knowing the persistence layer.
var (
	// ErrNotFound indicates the referenced record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an illegal lifecycle transition was requested
	ErrInvalidState = errors.New("invalid state transition")

	// ErrConflict indicates a concurrent writer won the race for the same
	// target; the caller must re-fetch and retry
	ErrConflict = errors.New("conflict")
)
