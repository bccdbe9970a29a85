// Package txn models transactions as seen by the read path: transaction
// ids, the status authority answering whether and when a transaction
// committed, and the resolution of provisional intent cells against it.
package txn

import (
	"fmt"

	"github.com/DocKV/dockv/pkg/keycodec"
)

// ID is a 16-byte transaction identifier.
type ID [keycodec.TxnIDLen]byte

// IDFromBytes creates an ID from its raw byte form.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != keycodec.TxnIDLen {
		return ID{}, fmt.Errorf("id is %d bytes, want %d: %w", len(b), keycodec.TxnIDLen, ErrInvalidID)
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// IDFromString creates an ID from a 16-character string, treating the
// characters as raw bytes. Convenient for fixtures and the CLI.
func IDFromString(s string) (ID, error) {
	return IDFromBytes([]byte(s))
}

// Bytes returns the raw byte form of the id.
func (id ID) Bytes() []byte {
	return id[:]
}

// String renders the id in grouped hex form.
func (id ID) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", id[0:4], id[4:6], id[6:8], id[8:10], id[10:16])
}
