// Package store provides the ordered byte-keyed storage the read path
// runs against: an in-memory skip list index, batched writes that encode
// document cells and transaction intents, and durable segment files.
package store

import (
	"github.com/DocKV/dockv/pkg/common/iterator"
)

// Store is an ordered byte-keyed key-value store. Keys carry their own
// ordering semantics from the key codec; the store itself only compares
// raw bytes.
type Store interface {
	// Put writes a key-value pair, replacing any existing value for
	// the exact key.
	Put(key, value []byte) error

	// NewIterator returns an iterator over the full key range. The
	// iterator observes a prefix of the writes applied so far.
	NewIterator() iterator.Iterator
}

// MemStore is the in-memory Store implementation.
type MemStore struct {
	list *skipList
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{list: newSkipList()}
}

// Put implements Store.
func (m *MemStore) Put(key, value []byte) error {
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	m.list.insert(&entry{key: k, value: v})
	return nil
}

// NewIterator implements Store.
func (m *MemStore) NewIterator() iterator.Iterator {
	return m.list.newIterator()
}

// Len returns the number of distinct keys in the store.
func (m *MemStore) Len() int {
	return int(m.list.count())
}

// ApproximateSize returns the approximate memory footprint in bytes.
func (m *MemStore) ApproximateSize() int64 {
	return m.list.approximateSize()
}
