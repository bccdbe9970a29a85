package scan

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/common/iterator"
	"github.com/DocKV/dockv/pkg/common/iterator/bounded"
	"github.com/DocKV/dockv/pkg/common/log"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/txn"
)

// columnState is the visibility outcome of one column lookup.
type columnState uint8

const (
	// stateNeedsLookup means the column has not been resolved yet
	stateNeedsLookup columnState = iota

	// stateHasValue means a live value is visible at the read ceiling
	stateHasValue

	// stateAbsent means the column is null: never written, tombstoned,
	// or expired
	stateAbsent

	// stateDocumentDeleted means a document-level tombstone shadows the
	// column
	stateDocumentDeleted
)

// columnLookup is the memoized result of one column resolution. Once a
// column leaves stateNeedsLookup its result never changes, which makes
// repeated peeks idempotent.
type columnLookup struct {
	state   columnState
	version keycodec.Version
	meta    cell.Meta
	raw     []byte
	value   cell.Value
	decoded bool
}

// candidate is one version-history entry competing to be a column's
// visible value.
type candidate struct {
	version keycodec.Version
	meta    cell.Meta
	raw     []byte
	value   cell.Value
	decoded bool
}

// docCursor resolves the visible cells of a single document under a read
// ceiling. It merges the regular version history with the resolved
// transactional intents of the document; the larger effective version
// wins. Construction prefetches and resolves every intent of the
// document, so per-column lookups afterwards touch only the regular
// keyspace.
type docCursor struct {
	docBytes []byte
	docKey   keycodec.DocKey
	ceiling  keycodec.HybridTime

	regIt    iterator.Iterator
	resolver *txn.Resolver

	intents    map[keycodec.ColumnID]candidate
	docTomb    keycodec.Version
	hasDocTomb bool

	cols map[keycodec.ColumnID]*columnLookup

	logger  log.Logger
	metrics Metrics
}

func newDocCursor(ctx context.Context, docBytes []byte, regIt, intentIt iterator.Iterator, resolver *txn.Resolver, ceiling keycodec.HybridTime, logger log.Logger, metrics Metrics) (*docCursor, error) {
	docKey, rest, err := keycodec.DecodeDocKey(docBytes)
	if err != nil {
		return nil, fmt.Errorf("decode document key %x: %w", docBytes, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("document key %x has %d trailing bytes: %w", docBytes, len(rest), keycodec.ErrCorrupt)
	}

	c := &docCursor{
		docBytes: docBytes,
		docKey:   docKey,
		ceiling:  ceiling,
		regIt:    regIt,
		resolver: resolver,
		intents:  make(map[keycodec.ColumnID]candidate),
		cols:     make(map[keycodec.ColumnID]*columnLookup),
		logger:   logger,
		metrics:  metrics,
	}
	if err := c.prefetchIntents(ctx, intentIt); err != nil {
		return nil, err
	}
	if err := c.probeDocTombstone(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// prefetchIntents resolves every intent of the document and keeps, per
// column, the visible candidate with the largest effective version. A
// visible document-level tombstone intent contributes to the document
// tombstone instead.
func (c *docCursor) prefetchIntents(ctx context.Context, intentIt iterator.Iterator) error {
	prefix := keycodec.IntentDocPrefix(c.docBytes)
	it := bounded.NewBoundedIterator(intentIt, prefix, keycodec.PrefixEnd(prefix))

	for it.SeekToFirst(); it.Valid(); it.Next() {
		in, err := txn.DecodeIntentEntry(it.Key(), it.Value())
		if err != nil {
			return fmt.Errorf("intent entry %x: %w", it.Key(), err)
		}

		res, err := c.resolver.Resolve(ctx, in)
		if err != nil {
			c.metrics.RecordResolve(ctx, OutcomeRetry)
			c.logger.Warn("intent resolution failed for %s: %v", in.Owner, err)
			return err
		}
		if !res.Visible {
			c.metrics.RecordResolve(ctx, OutcomeInvisible)
			continue
		}
		c.metrics.RecordResolve(ctx, OutcomeVisible)

		if !in.HasColumn {
			if res.Value.IsTombstone() && (!c.hasDocTomb || res.Effective.Compare(c.docTomb) > 0) {
				c.docTomb = res.Effective
				c.hasDocTomb = true
			}
			continue
		}

		cand := candidate{
			version: res.Effective,
			meta:    cell.Meta{Kind: res.Value.Kind, TTL: res.Value.TTL},
			value:   res.Value,
			decoded: true,
		}
		if prev, ok := c.intents[in.Column]; !ok || cand.version.Compare(prev.version) > 0 {
			c.intents[in.Column] = cand
		}
	}
	return it.Error()
}

// probeDocTombstone looks for the newest regular document-level entry at
// or under the ceiling and merges it into the document tombstone.
func (c *docCursor) probeDocTombstone(ctx context.Context) error {
	cand, err := c.seekRegular(ctx, nil)
	if err != nil {
		return err
	}
	if cand == nil {
		return nil
	}
	meta := cand.meta
	if !meta.IsTombstone() {
		return nil
	}
	if !c.hasDocTomb || cand.version.Compare(c.docTomb) > 0 {
		c.docTomb = cand.version
		c.hasDocTomb = true
	}
	return nil
}

// seekRegular performs one ceiling-bounded seek for the document-level
// entry (col == nil) or a column's newest entry at or under the ceiling.
// It returns nil when the document or column has no such entry.
func (c *docCursor) seekRegular(ctx context.Context, col *keycodec.ColumnID) (*candidate, error) {
	var prefix []byte
	if col == nil {
		prefix = keycodec.RegularDocLevelPrefix(c.docBytes)
	} else {
		prefix = keycodec.RegularColumnPrefix(c.docBytes, *col)
	}

	start := time.Now()
	found := c.regIt.Seek(keycodec.RegularSeekKey(c.docBytes, col, c.ceiling))
	if err := c.regIt.Error(); err != nil {
		return nil, fmt.Errorf("seek %s: %w", c.docKey, err)
	}
	found = found && bytes.HasPrefix(c.regIt.Key(), prefix)
	c.metrics.RecordSeek(ctx, time.Since(start), found)
	if !found {
		return nil, nil
	}

	dk, err := keycodec.DecodeKey(c.regIt.Key())
	if err != nil {
		c.logger.Error("corrupt cell key %x: %v", c.regIt.Key(), err)
		return nil, err
	}
	meta, err := cell.DecodeMeta(c.regIt.Value())
	if err != nil {
		c.logger.Error("corrupt cell value at %s: %v", c.docKey, err)
		return nil, fmt.Errorf("cell value at %s: %w", c.docKey, err)
	}

	raw := make([]byte, len(c.regIt.Value()))
	copy(raw, c.regIt.Value())
	return &candidate{version: dk.Version, meta: meta, raw: raw}, nil
}

// column resolves the visible state of one column, merging the regular
// candidate with the document's resolved intents. Results are memoized;
// the value bytes are only decoded when needValue is set, so columns
// outside the projection are never value-decoded.
func (c *docCursor) column(ctx context.Context, id keycodec.ColumnID, needValue bool) (*columnLookup, error) {
	lk, ok := c.cols[id]
	if !ok {
		var err error
		lk, err = c.lookupColumn(ctx, id)
		if err != nil {
			return nil, err
		}
		c.cols[id] = lk
	}

	if needValue && lk.state == stateHasValue && !lk.decoded {
		v, err := cell.Decode(lk.raw)
		if err != nil {
			return nil, fmt.Errorf("cell value at %s column %d: %w", c.docKey, id, err)
		}
		lk.value = v
		lk.decoded = true
	}
	return lk, nil
}

func (c *docCursor) lookupColumn(ctx context.Context, id keycodec.ColumnID) (*columnLookup, error) {
	reg, err := c.seekRegular(ctx, &id)
	if err != nil {
		return nil, err
	}

	var winner *candidate
	if reg != nil {
		winner = reg
	}
	if in, ok := c.intents[id]; ok {
		if winner == nil || in.version.Compare(winner.version) > 0 {
			winner = &in
		}
	}

	if winner == nil {
		if c.hasDocTomb {
			return &columnLookup{state: stateDocumentDeleted}, nil
		}
		return &columnLookup{state: stateAbsent}, nil
	}

	// A document tombstone hides every cell at or under its version
	if c.hasDocTomb && winner.version.Compare(c.docTomb) <= 0 {
		return &columnLookup{state: stateDocumentDeleted, version: winner.version}, nil
	}

	if winner.meta.IsTombstone() || c.expired(winner.version.Time, winner.meta.TTL) {
		return &columnLookup{state: stateAbsent, version: winner.version, meta: winner.meta}, nil
	}

	return &columnLookup{
		state:   stateHasValue,
		version: winner.version,
		meta:    winner.meta,
		raw:     winner.raw,
		value:   winner.value,
		decoded: winner.decoded,
	}, nil
}

// expired reports whether a value with the given TTL is past its
// lifetime at the read ceiling. The value is visible only while
// ceiling < write time + TTL, so a ceiling exactly at the boundary
// already reads the value as expired.
func (c *docCursor) expired(written keycodec.HybridTime, ttl time.Duration) bool {
	if ttl == 0 {
		return false
	}
	expiry := keycodec.HybridTime{
		Physical: written.Physical + uint64(ttl/time.Microsecond),
		Logical:  written.Logical,
	}
	return c.ceiling.Compare(expiry) >= 0
}

// anyLive reports whether at least one of the given columns has a live
// value, which decides whether the document is present at all.
func (c *docCursor) anyLive(ctx context.Context, ids []keycodec.ColumnID) (bool, error) {
	for _, id := range ids {
		lk, err := c.column(ctx, id, false)
		if err != nil {
			return false, err
		}
		if lk.state == stateHasValue {
			return true, nil
		}
	}
	return false, nil
}
