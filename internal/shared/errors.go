package shared

import "errors"

// The registry error taxonomy. Every failure from the core wraps one of
// these sentinels, with the offending field appended as detail.
var (
	// ErrUnauthorized indicates a role or delegation check failed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates a certificate or proposal id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the operation conflicts with current state
	// (double approval, terminal proposal, re-revocation, protected role).
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed input (empty identity, empty
	// metadata, mismatched batch lengths, non-positive threshold).
	ErrValidation = errors.New("validation failed")
	// ErrPaused indicates a mutation was attempted while the registry is paused.
	ErrPaused = errors.New("registry paused")
)
