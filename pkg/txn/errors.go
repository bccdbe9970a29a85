package txn

import "errors"

var (
	// ErrStatusUnknown is returned when the status authority cannot
	// determine a transaction's outcome. It is retryable: the caller must
	// restart the affected scan range after backoff, because partial
	// progress built on an in-doubt transaction is never trusted. The
	// core never retries it internally.
	ErrStatusUnknown = errors.New("transaction status unknown")

	// ErrNoStatusAuthority is returned when an intent from another
	// transaction is encountered but no status authority was configured.
	ErrNoStatusAuthority = errors.New("no transaction status authority configured")

	// ErrInvalidID is returned for malformed transaction ids.
	ErrInvalidID = errors.New("invalid transaction id")

	// ErrCorrupt is returned when a stored intent value cannot be decoded.
	ErrCorrupt = errors.New("corrupt intent encoding")
)
