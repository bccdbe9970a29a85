package iterator

// Iterator defines the interface for iterating over the entries of an
// ordered byte-keyed store. This is the contract the read path consumes,
// regardless of whether the entries live in memory or in a loaded segment.
type Iterator interface {
	// SeekToFirst positions the iterator at the first key
	SeekToFirst()

	// Seek positions the iterator at the first key >= target
	Seek(target []byte) bool

	// Next advances the iterator to the next key
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() []byte

	// Valid returns true if the iterator is positioned at a valid entry
	Valid() bool

	// Error returns the first I/O error the iterator encountered, if any.
	// A non-nil error means the current position cannot be trusted.
	Error() error
}
