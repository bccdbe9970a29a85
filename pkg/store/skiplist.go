package store

import (
	"bytes"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	// maxHeight is the maximum height of the skip list
	maxHeight = 12

	// branchingFactor determines the probability of increasing the height
	branchingFactor = 4
)

// entry is a single key-value pair. Version ordering is already encoded
// into the key bytes, so entries compare by raw key alone.
type entry struct {
	key   []byte
	value []byte
}

// size returns the approximate size of the entry in memory
func (e *entry) size() int {
	return len(e.key) + len(e.value) + 16
}

// node represents a node in the skip list
type node struct {
	entry  *entry
	height int32
	// next contains pointers to the next nodes at each level
	next [maxHeight]unsafe.Pointer
}

func newNode(e *entry, height int) *node {
	return &node{
		entry:  e,
		height: int32(height),
	}
}

// getNext returns the next node at the given level
func (n *node) getNext(level int) *node {
	return (*node)(atomic.LoadPointer(&n.next[level]))
}

// setNext sets the next node at the given level
func (n *node) setNext(level int, next *node) {
	atomic.StorePointer(&n.next[level], unsafe.Pointer(next))
}

// skipList is an ordered in-memory index over encoded keys. Readers may
// iterate concurrently with writers; writers serialize among themselves.
type skipList struct {
	head     *node
	maxLevel int32
	rnd      *rand.Rand
	writeMtx sync.Mutex
	size     int64
	entryCnt int64
}

func newSkipList() *skipList {
	seed := time.Now().UnixNano()
	return &skipList{
		head:     newNode(nil, maxHeight),
		maxLevel: 1,
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

// randomHeight generates a random height for a new node
func (s *skipList) randomHeight() int {
	height := 1
	for height < maxHeight && s.rnd.Intn(branchingFactor) == 0 {
		height++
	}
	return height
}

func (s *skipList) currentHeight() int {
	return int(atomic.LoadInt32(&s.maxLevel))
}

// insert adds an entry, replacing the value in place when the exact key
// is already present.
func (s *skipList) insert(e *entry) {
	s.writeMtx.Lock()
	defer s.writeMtx.Unlock()

	var prev [maxHeight]*node
	currHeight := s.currentHeight()

	current := s.head
	for level := maxHeight - 1; level >= 0; level-- {
		for next := current.getNext(level); next != nil; next = current.getNext(level) {
			if bytes.Compare(next.entry.key, e.key) >= 0 {
				break
			}
			current = next
		}
		prev[level] = current
	}

	// Exact match replaces the existing value rather than stacking a
	// duplicate key
	if next := prev[0].getNext(0); next != nil && bytes.Equal(next.entry.key, e.key) {
		old := next.entry
		next.entry = e
		atomic.AddInt64(&s.size, int64(e.size()-old.size()))
		return
	}

	height := s.randomHeight()
	if height > currHeight {
		atomic.StoreInt32(&s.maxLevel, int32(height))
	}

	n := newNode(e, height)
	for level := 0; level < height; level++ {
		n.setNext(level, prev[level].getNext(level))
		prev[level].setNext(level, n)
	}

	atomic.AddInt64(&s.size, int64(e.size()))
	atomic.AddInt64(&s.entryCnt, 1)
}

// approximateSize returns the approximate size of the skip list in bytes
func (s *skipList) approximateSize() int64 {
	return atomic.LoadInt64(&s.size)
}

// count returns the number of distinct keys
func (s *skipList) count() int64 {
	return atomic.LoadInt64(&s.entryCnt)
}

// listIterator provides ordered access to the skip list entries
type listIterator struct {
	list    *skipList
	current *node
}

func (s *skipList) newIterator() *listIterator {
	return &listIterator{
		list:    s,
		current: nil,
	}
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *listIterator) Valid() bool {
	return it.current != nil && it.current != it.list.head
}

// Next advances the iterator to the next entry
func (it *listIterator) Next() bool {
	if it.current == nil {
		return false
	}
	it.current = it.current.getNext(0)
	return it.Valid()
}

// SeekToFirst positions the iterator at the first entry
func (it *listIterator) SeekToFirst() {
	it.current = it.list.head.getNext(0)
}

// Seek positions the iterator at the first entry with a key >= target
func (it *listIterator) Seek(target []byte) bool {
	current := it.list.head
	height := it.list.currentHeight()

	for level := height - 1; level >= 0; level-- {
		for next := current.getNext(level); next != nil; next = current.getNext(level) {
			if bytes.Compare(next.entry.key, target) >= 0 {
				break
			}
			current = next
		}
	}

	it.current = current.getNext(0)
	return it.Valid()
}

// Key returns the key of the current entry
func (it *listIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.current.entry.key
}

// Value returns the value of the current entry
func (it *listIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.current.entry.value
}

// Error implements iterator.Iterator. In-memory iteration cannot fail.
func (it *listIterator) Error() error {
	return nil
}
