package storage

import "errors"

// Sentinel errors for turn-store operations.
var (
	// ErrNotFound is returned when a session has no stored transcript.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned when an appended turn collides with an
	// already-stored sequence number for the session.
	ErrConflict = errors.New("turn already exists")
)
