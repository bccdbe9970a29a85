package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/DocKV/dockv/pkg/keycodec"
)

// Status is a transaction outcome as reported by the status authority.
type Status uint8

const (
	// StatusPending means the transaction has not resolved relative to
	// the read ceiling it was queried at
	StatusPending Status = iota + 1
	// StatusCommitted means the transaction committed; CommitTime is set
	StatusCommitted
	// StatusAborted means the transaction aborted; its intents are
	// permanently invisible
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCommitted:
		return "COMMITTED"
	case StatusAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("STATUS(%d)", s)
	}
}

// StatusResult is the authority's answer for one transaction at one read
// ceiling.
type StatusResult struct {
	Status     Status
	CommitTime keycodec.HybridTime
}

// StatusAuthority answers transaction status queries. The production
// implementation may incur a remote round trip per call; the call is
// expressed synchronously and the core issues at most one per unresolved
// intent, with no internal retry. Implementations must be safe for
// concurrent use by many iterators.
type StatusAuthority interface {
	// RequestStatus returns the transaction's outcome as of readCeiling.
	// An indeterminate outcome is reported as an error wrapping
	// ErrStatusUnknown.
	RequestStatus(ctx context.Context, id ID, readCeiling keycodec.HybridTime) (StatusResult, error)
}

// InMemoryAuthority is the test-double StatusAuthority: a process-local
// registry of transaction outcomes. The remote client in txn/remote is
// the production implementation of the same contract.
type InMemoryAuthority struct {
	mu        sync.RWMutex
	pending   map[ID]struct{}
	committed map[ID]keycodec.HybridTime
	aborted   map[ID]struct{}
}

// NewInMemoryAuthority creates an empty in-memory authority.
func NewInMemoryAuthority() *InMemoryAuthority {
	return &InMemoryAuthority{
		pending:   make(map[ID]struct{}),
		committed: make(map[ID]keycodec.HybridTime),
		aborted:   make(map[ID]struct{}),
	}
}

// Begin registers a transaction as pending.
func (a *InMemoryAuthority) Begin(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[id] = struct{}{}
}

// Commit records the transaction as committed at the given time.
func (a *InMemoryAuthority) Commit(id ID, at keycodec.HybridTime) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, id)
	a.committed[id] = at
}

// Abort records the transaction as aborted.
func (a *InMemoryAuthority) Abort(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, id)
	a.aborted[id] = struct{}{}
}

// RequestStatus implements StatusAuthority. A transaction committed after
// the read ceiling is reported as pending relative to that ceiling, so the
// reader's visibility decision depends only on ceiling versus commit time.
func (a *InMemoryAuthority) RequestStatus(ctx context.Context, id ID, readCeiling keycodec.HybridTime) (StatusResult, error) {
	if err := ctx.Err(); err != nil {
		return StatusResult{}, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if commit, ok := a.committed[id]; ok {
		if commit.Compare(readCeiling) <= 0 {
			return StatusResult{Status: StatusCommitted, CommitTime: commit}, nil
		}
		return StatusResult{Status: StatusPending}, nil
	}
	if _, ok := a.aborted[id]; ok {
		return StatusResult{Status: StatusAborted}, nil
	}
	if _, ok := a.pending[id]; ok {
		return StatusResult{Status: StatusPending}, nil
	}
	return StatusResult{}, fmt.Errorf("transaction %s: %w", id, ErrStatusUnknown)
}
