package store

import (
	"fmt"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/txn"
)

// mutation is one pending write inside a Batch. A nil column targets the
// document level.
type mutation struct {
	doc       keycodec.DocKey
	hasColumn bool
	column    keycodec.ColumnID
	value     cell.Value
}

// Batch collects mutations for a single write time. Write ids are
// assigned by position, so later mutations in the same batch win ties at
// equal version time.
type Batch struct {
	muts []mutation
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// SetCell queues a column write.
func (b *Batch) SetCell(doc keycodec.DocKey, col keycodec.ColumnID, value cell.Value) *Batch {
	b.muts = append(b.muts, mutation{doc: doc, hasColumn: true, column: col, value: value})
	return b
}

// DeleteColumn queues a column tombstone.
func (b *Batch) DeleteColumn(doc keycodec.DocKey, col keycodec.ColumnID) *Batch {
	return b.SetCell(doc, col, cell.Tombstone())
}

// DeleteDocument queues a document-level tombstone that shadows every
// column written at or before the batch time.
func (b *Batch) DeleteDocument(doc keycodec.DocKey) *Batch {
	b.muts = append(b.muts, mutation{doc: doc, value: cell.Tombstone()})
	return b
}

// Len returns the number of queued mutations.
func (b *Batch) Len() int {
	return len(b.muts)
}

// Apply writes the batch to the store at the given time. With a nil owner
// the mutations land in the regular keyspace; with an owner they land as
// provisional intents the resolver makes visible once the transaction
// commits.
func (b *Batch) Apply(s Store, at keycodec.HybridTime, owner *txn.ID) error {
	if owner != nil {
		return b.applyIntents(s, at, *owner)
	}
	for i, m := range b.muts {
		v := keycodec.Version{Time: at, WriteID: uint32(i)}
		var col *keycodec.ColumnID
		if m.hasColumn {
			c := m.column
			col = &c
		}
		key := keycodec.RegularCellKey(m.doc.Encode(), col, v)
		if err := s.Put(key, cell.Encode(m.value)); err != nil {
			return fmt.Errorf("apply cell %s: %w", m.doc, err)
		}
	}
	return nil
}

// applyIntents writes one strong intent per mutation plus a weak
// document-level intent per distinct document that had a column write.
// Every intent also gets a reverse index entry keyed by the owner, so
// the transaction's footprint can be enumerated without scanning the
// forward keyspace.
func (b *Batch) applyIntents(s Store, at keycodec.HybridTime, owner txn.ID) error {
	put := func(key, value []byte) error {
		if err := s.Put(key, value); err != nil {
			return err
		}
		return s.Put(keycodec.ReverseIntentKey(owner.Bytes(), key), nil)
	}

	weakDone := make(map[string]struct{})
	for i, m := range b.muts {
		v := keycodec.Version{Time: at, WriteID: uint32(i)}
		doc := m.doc.Encode()

		var col *keycodec.ColumnID
		if m.hasColumn {
			c := m.column
			col = &c

			// Ancestor marker: taken once per document, at the
			// same version as the first column write that needs it
			if _, ok := weakDone[string(doc)]; !ok {
				weakDone[string(doc)] = struct{}{}
				weakKey := keycodec.IntentCellKey(doc, nil, keycodec.WeakIntent, v)
				if err := put(weakKey, txn.EncodeIntentValue(owner, nil)); err != nil {
					return fmt.Errorf("apply weak intent %s: %w", m.doc, err)
				}
			}
		}

		mv := m.value
		key := keycodec.IntentCellKey(doc, col, keycodec.StrongIntent, v)
		if err := put(key, txn.EncodeIntentValue(owner, &mv)); err != nil {
			return fmt.Errorf("apply intent %s: %w", m.doc, err)
		}
	}
	return nil
}
