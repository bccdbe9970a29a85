package txn

import (
	"fmt"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/keycodec"
)

// Intent is a decoded provisional cell written under a pending
// transaction. Strong intents carry an actual value or tombstone; weak
// intents only record that the path's ancestor was touched.
type Intent struct {
	DocBytes  []byte
	HasColumn bool
	Column    keycodec.ColumnID
	Strength  keycodec.IntentStrength
	// Written is the version stamped at write time. For shadowing it is
	// only meaningful once replaced by the owning transaction's commit
	// time; see Resolver.
	Written keycodec.Version
	Owner   ID
	// Cell is set for strong intents only.
	Cell cell.Value
}

// EncodeIntentValue encodes the stored value of an intent: the owning
// transaction id, followed by the cell bytes for strong intents.
func EncodeIntentValue(owner ID, c *cell.Value) []byte {
	b := make([]byte, 0, keycodec.TxnIDLen+16)
	b = append(b, owner.Bytes()...)
	if c != nil {
		b = append(b, cell.Encode(*c)...)
	}
	return b
}

// DecodeIntentEntry decodes a forward intent entry from its stored key
// and value.
func DecodeIntentEntry(key, value []byte) (Intent, error) {
	dk, err := keycodec.DecodeKey(key)
	if err != nil {
		return Intent{}, err
	}
	if dk.Keyspace != keycodec.KeyspaceIntent {
		return Intent{}, fmt.Errorf("entry in %s keyspace is not an intent: %w", dk.Keyspace, ErrCorrupt)
	}
	if len(value) < keycodec.TxnIDLen {
		return Intent{}, fmt.Errorf("intent value is %d bytes: %w", len(value), ErrCorrupt)
	}
	owner, err := IDFromBytes(value[:keycodec.TxnIDLen])
	if err != nil {
		return Intent{}, err
	}

	in := Intent{
		DocBytes:  dk.DocBytes,
		HasColumn: dk.HasColumn,
		Column:    dk.Column,
		Strength:  dk.Strength,
		Written:   dk.Version,
		Owner:     owner,
	}

	payload := value[keycodec.TxnIDLen:]
	switch dk.Strength {
	case keycodec.StrongIntent:
		c, err := cell.Decode(payload)
		if err != nil {
			return Intent{}, fmt.Errorf("strong intent payload: %w", err)
		}
		in.Cell = c
	case keycodec.WeakIntent:
		if len(payload) != 0 {
			return Intent{}, fmt.Errorf("weak intent with %d payload bytes: %w", len(payload), ErrCorrupt)
		}
	}
	return in, nil
}
