package scan

import "errors"

var (
	// ErrExhausted is returned by NextRow when no row is pending. It is a
	// precondition violation, not a data error.
	ErrExhausted = errors.New("row iterator exhausted")

	// ErrNotInitialized is returned when HasNext or NextRow is called
	// before Init.
	ErrNotInitialized = errors.New("row iterator not initialized")

	// ErrAlreadyInitialized is returned by a second Init call. Iterator
	// states only move forward.
	ErrAlreadyInitialized = errors.New("row iterator already initialized")
)
