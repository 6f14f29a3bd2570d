package domain

import "errors"

// Error taxonomy surfaced to callers. Operations fail with exactly one of
// these; nothing is retried inside the core — retry policy belongs to the
// surrounding app.
var (
	// ErrInvalidArgument malformed input, e.g. self chat or empty room id
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound referenced room or message does not exist
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized caller does not own the message or is not a participant
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStoreUnavailable transient store or connectivity failure
	ErrStoreUnavailable = errors.New("store unavailable")
)
