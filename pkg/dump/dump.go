// Package dump renders every raw entry of a store as deterministic text,
// in ascending key order. It exists for golden verification of the key
// encoding and shadowing layout and is not part of the read surface.
package dump

import (
	"fmt"
	"strings"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/common/iterator"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/txn"
)

// Source hands out iterators over the store being dumped.
type Source interface {
	NewIterator() iterator.Iterator
}

// Dump renders every entry of the source, one line per entry, in
// ascending key order.
func Dump(src Source) (string, error) {
	var b strings.Builder
	it := src.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		line, err := renderEntry(it.Key(), it.Value())
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := it.Error(); err != nil {
		return "", fmt.Errorf("dump store: %w", err)
	}
	return b.String(), nil
}

func renderEntry(key, value []byte) (string, error) {
	dk, err := keycodec.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("dump key %x: %w", key, err)
	}

	switch dk.Keyspace {
	case keycodec.KeyspaceRegular:
		v, err := cell.Decode(value)
		if err != nil {
			return "", fmt.Errorf("dump value at %s: %w", dk.Doc, err)
		}
		return fmt.Sprintf("Cell(%s, %s) -> %s", dk.Doc, renderPath(dk), v), nil

	case keycodec.KeyspaceIntent:
		in, err := txn.DecodeIntentEntry(key, value)
		if err != nil {
			return "", fmt.Errorf("dump intent at %s: %w", dk.Doc, err)
		}
		if in.Strength == keycodec.WeakIntent {
			return fmt.Sprintf("Intent(%s, %s, weak) -> Txn(%s)",
				dk.Doc, renderPath(dk), in.Owner), nil
		}
		return fmt.Sprintf("Intent(%s, %s, strong) -> Txn(%s) %s",
			dk.Doc, renderPath(dk), in.Owner, in.Cell), nil

	case keycodec.KeyspaceReverse:
		id, err := txn.IDFromBytes(dk.TxnID)
		if err != nil {
			return "", fmt.Errorf("dump reverse entry: %w", err)
		}
		ref := dk.Ref
		return fmt.Sprintf("TxnRev(%s) -> Intent(%s, %s)",
			id, ref.Doc, renderPath(*ref)), nil

	default:
		return "", fmt.Errorf("dump key %x: keyspace %s: %w", key, dk.Keyspace, keycodec.ErrCorrupt)
	}
}

// renderPath renders the column (or document level) and version of a
// decoded cell or intent key.
func renderPath(dk keycodec.DecodedKey) string {
	if dk.HasColumn {
		return fmt.Sprintf("Column(%d), %s", dk.Column, dk.Version)
	}
	return fmt.Sprintf("doc, %s", dk.Version)
}
