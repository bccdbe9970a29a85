// Package scan implements the multi-version document read path: a pull
// iterator that reconstructs projected row images as of a caller-chosen
// read ceiling, honoring tombstones, TTL expiry and transaction intents.
package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DocKV/dockv/pkg/common/iterator"
	"github.com/DocKV/dockv/pkg/common/log"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/schema"
	"github.com/DocKV/dockv/pkg/txn"
)

// Source hands out iterators over the ordered store the scan reads.
// Each iterator observes a point-in-time prefix of the store's writes.
type Source interface {
	NewIterator() iterator.Iterator
}

// State is the lifecycle state of a RowIterator. Transitions are
// monotonic; an exhausted iterator never re-positions.
type State uint8

const (
	// StateUninitialized is the state before Init
	StateUninitialized State = iota

	// StatePositioned means the iterator can produce rows
	StatePositioned

	// StateExhausted means the scan range is fully consumed
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StatePositioned:
		return "POSITIONED"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Options configures a RowIterator.
type Options struct {
	// Source is the ordered store to scan. Required.
	Source Source

	// Schema describes the table being read. Required.
	Schema *schema.Schema

	// Projection selects the output columns. Required.
	Projection *schema.Projection

	// Ceiling is the read time: only versions at or under it are
	// visible.
	Ceiling keycodec.HybridTime

	// Authority answers commit status questions for foreign intents.
	// May be nil when the store holds no intents from other
	// transactions.
	Authority txn.StatusAuthority

	// OwnTxn is the reading session's transaction, if any. Its
	// uncommitted intents are visible to this scan at their original
	// write time.
	OwnTxn *txn.ID

	// StartKey optionally positions the scan at the first document at
	// or after it.
	StartKey *keycodec.DocKey

	// Logger defaults to a no-op logger.
	Logger log.Logger

	// Metrics defaults to no-op metrics.
	Metrics Metrics
}

// RowIterator is the pull-based orchestrator of the read path. It owns
// its underlying cursors exclusively; concurrent use requires one
// iterator per goroutine.
type RowIterator struct {
	src      Source
	schema   *schema.Schema
	proj     *schema.Projection
	ceiling  keycodec.HybridTime
	resolver *txn.Resolver
	logger   log.Logger
	metrics  Metrics

	// non-key column ids probed for document liveness
	liveCols []keycodec.ColumnID

	state    State
	regIt    iterator.Iterator
	intentIt iterator.Iterator
	lower    []byte

	pending    Row
	pendingSet bool
}

// NewRowIterator validates the options and creates an iterator in the
// uninitialized state.
func NewRowIterator(opts Options) (*RowIterator, error) {
	if opts.Source == nil {
		return nil, errors.New("scan: Source is required")
	}
	if opts.Schema == nil {
		return nil, errors.New("scan: Schema is required")
	}
	if opts.Projection == nil {
		return nil, errors.New("scan: Projection is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewNoopMetrics()
	}

	var liveCols []keycodec.ColumnID
	for _, col := range opts.Schema.Columns() {
		if opts.Schema.KeyColumnIndex(col.ID) < 0 {
			liveCols = append(liveCols, col.ID)
		}
	}

	ri := &RowIterator{
		src:      opts.Source,
		schema:   opts.Schema,
		proj:     opts.Projection,
		ceiling:  opts.Ceiling,
		resolver: txn.NewResolver(opts.Authority, opts.Ceiling, opts.OwnTxn),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		liveCols: liveCols,
		state:    StateUninitialized,
	}
	if opts.StartKey != nil {
		ri.lower = opts.StartKey.Encode()
	}
	return ri, nil
}

// Init positions the iterator at the start of the scan range. It may
// only be called once.
func (ri *RowIterator) Init(ctx context.Context) error {
	if ri.state != StateUninitialized {
		return ErrAlreadyInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ri.regIt = ri.src.NewIterator()
	ri.intentIt = ri.src.NewIterator()
	if err := ri.regIt.Error(); err != nil {
		return fmt.Errorf("open scan cursor: %w", err)
	}
	ri.state = StatePositioned
	return nil
}

// HasNext reports whether another row is available, resolving the next
// live document lazily. It is idempotent: repeated calls without an
// intervening NextRow return the same answer and do not advance.
func (ri *RowIterator) HasNext(ctx context.Context) (bool, error) {
	switch ri.state {
	case StateUninitialized:
		return false, ErrNotInitialized
	case StateExhausted:
		return false, nil
	}
	if ri.pendingSet {
		return true, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		doc, ok, err := ri.nextCandidateDoc()
		if err != nil {
			return false, err
		}
		if !ok {
			ri.state = StateExhausted
			return false, nil
		}

		start := time.Now()
		cur, err := newDocCursor(ctx, doc, ri.regIt, ri.intentIt, ri.resolver, ri.ceiling, ri.logger, ri.metrics)
		if err != nil {
			return false, err
		}

		// Whole-document skip: advance the lower bound past the full
		// key range of this document in one step
		ri.lower = keycodec.PrefixEnd(doc)

		live, err := cur.anyLive(ctx, ri.liveCols)
		if err != nil {
			return false, err
		}
		if !live {
			reason := SkipEmpty
			if cur.hasDocTomb {
				reason = SkipDeleted
			}
			ri.metrics.RecordDocSkipped(ctx, reason)
			continue
		}

		if err := assembleRow(ctx, ri.schema, ri.proj, cur, &ri.pending); err != nil {
			return false, err
		}
		ri.metrics.RecordRow(ctx, time.Since(start))
		ri.pendingSet = true
		return true, nil
	}
}

// NextRow copies the pending row into out and advances past its
// document. Calling it with no pending row fails with ErrExhausted.
func (ri *RowIterator) NextRow(ctx context.Context, out *Row) error {
	if ri.state == StateUninitialized {
		return ErrNotInitialized
	}

	if !ri.pendingSet {
		ok, err := ri.HasNext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrExhausted
		}
	}

	*out = ri.pending
	ri.pending = Row{}
	ri.pendingSet = false
	return nil
}

// State returns the iterator's lifecycle state.
func (ri *RowIterator) State() State {
	return ri.state
}

// nextCandidateDoc finds the smallest encoded document key at or after
// the lower bound that has any entry, regular or intent. The returned
// slice is owned by the caller.
func (ri *RowIterator) nextCandidateDoc() ([]byte, bool, error) {
	reg, err := ri.candidateIn(ri.regIt, keycodec.KeyspaceRegular)
	if err != nil {
		return nil, false, err
	}
	in, err := ri.candidateIn(ri.intentIt, keycodec.KeyspaceIntent)
	if err != nil {
		return nil, false, err
	}

	switch {
	case reg == nil && in == nil:
		return nil, false, nil
	case reg == nil:
		return in, true, nil
	case in == nil:
		return reg, true, nil
	case bytes.Compare(reg, in) <= 0:
		return reg, true, nil
	default:
		return in, true, nil
	}
}

// candidateIn returns the encoded document key of the first entry at or
// after the lower bound inside one keyspace, or nil when the keyspace
// has no further documents.
func (ri *RowIterator) candidateIn(it iterator.Iterator, ks keycodec.Keyspace) ([]byte, error) {
	target := append(keycodec.KeyspaceStart(ks), ri.lower...)
	if !it.Seek(target) {
		return nil, it.Error()
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	key := it.Key()
	if keycodec.Keyspace(key[0]) != ks {
		return nil, nil
	}
	doc, _, err := keycodec.SplitDocKey(key)
	if err != nil {
		ri.logger.Error("corrupt key %x while scanning: %v", key, err)
		return nil, err
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}
