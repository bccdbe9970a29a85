package keycodec

import "errors"

var (
	// ErrCorrupt is returned when stored key bytes cannot be decoded.
	// It is a data-corruption condition: callers must abort the scan and
	// surface it, never skip the entry.
	ErrCorrupt = errors.New("corrupt key encoding")
)
