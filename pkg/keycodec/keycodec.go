// Package keycodec defines the ordered byte encoding of versioned cell
// keys. Three keyspaces share one ordered store: regular cells, forward
// transaction intents, and the reverse intent index keyed by transaction
// id. Within a document, document-level entries sort before column entries
// and, within one path, newer versions sort before older ones, so a seek
// bounded by a read ceiling lands directly on the newest version not newer
// than the ceiling.
package keycodec

import (
	"encoding/binary"
	"fmt"
)

// Keyspace identifies which of the three key ranges a key belongs to.
type Keyspace byte

const (
	// KeyspaceRegular holds committed, non-transactional cells
	KeyspaceRegular Keyspace = 0x01
	// KeyspaceIntent holds provisional cells of pending transactions
	KeyspaceIntent Keyspace = 0x02
	// KeyspaceReverse indexes intent locations by transaction id
	KeyspaceReverse Keyspace = 0x03
)

func (k Keyspace) String() string {
	switch k {
	case KeyspaceRegular:
		return "regular"
	case KeyspaceIntent:
		return "intent"
	case KeyspaceReverse:
		return "reverse"
	default:
		return fmt.Sprintf("keyspace(0x%02x)", byte(k))
	}
}

// ColumnID is the small stable integer naming a schema column. Key columns
// are part of the document key and never appear in a cell key.
type ColumnID uint32

// IntentStrength distinguishes weak intents (an ancestor path was touched,
// never directly visible) from strong intents (an actual leaf write).
type IntentStrength byte

const (
	// StrongIntent marks an actual value write
	StrongIntent IntentStrength = 0x53 // 'S'
	// WeakIntent marks a touched ancestor path
	WeakIntent IntentStrength = 0x57 // 'W'
)

func (s IntentStrength) String() string {
	switch s {
	case StrongIntent:
		return "strong"
	case WeakIntent:
		return "weak"
	default:
		return fmt.Sprintf("strength(0x%02x)", byte(s))
	}
}

// Internal structure tags. versionTag sorts before columnTag so the
// document-level entries of a document group ahead of its column entries.
const (
	versionTag byte = 0x23 // '#'
	columnTag  byte = 0x43 // 'C'
)

// TxnIDLen is the byte length of a transaction id embedded in reverse
// index keys.
const TxnIDLen = 16

// KeyspaceStart returns the inclusive lower bound key of a keyspace.
func KeyspaceStart(ks Keyspace) []byte {
	return []byte{byte(ks)}
}

// KeyspaceEnd returns the exclusive upper bound key of a keyspace.
func KeyspaceEnd(ks Keyspace) []byte {
	return []byte{byte(ks) + 1}
}

// PrefixEnd returns the exclusive upper bound of every key starting with
// prefix, for the prefixes produced by this package: no cell key continues
// a document or column prefix with a 0xFF byte, so appending one is a
// tight bound.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xFF
	return end
}

func appendColumn(b []byte, col ColumnID) []byte {
	b = append(b, columnTag)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(col))
	return append(b, buf[:]...)
}

// RegularCellKey encodes the key of a regular cell: document, optional
// column, version. A nil column addresses the document-level marker slot.
func RegularCellKey(doc []byte, col *ColumnID, v Version) []byte {
	b := make([]byte, 0, len(doc)+1+5+1+versionEncodedLen)
	b = append(b, byte(KeyspaceRegular))
	b = append(b, doc...)
	if col != nil {
		b = appendColumn(b, *col)
	}
	b = append(b, versionTag)
	return appendVersionDesc(b, v)
}

// RegularSeekKey encodes the seek target for the newest version of a path
// not newer than the ceiling: the ceiling with the maximal write id, which
// sorts at or before every stored version <= ceiling.
func RegularSeekKey(doc []byte, col *ColumnID, ceiling HybridTime) []byte {
	return RegularCellKey(doc, col, Version{Time: ceiling, WriteID: MaxWriteID})
}

// RegularDocPrefix returns the prefix shared by every regular cell of the
// document. PrefixEnd of it is the whole-document skip target.
func RegularDocPrefix(doc []byte) []byte {
	b := make([]byte, 0, len(doc)+1)
	b = append(b, byte(KeyspaceRegular))
	return append(b, doc...)
}

// RegularDocLevelPrefix returns the prefix of the document-level marker
// entries (document tombstones) of the document.
func RegularDocLevelPrefix(doc []byte) []byte {
	return append(RegularDocPrefix(doc), versionTag)
}

// RegularColumnSectionPrefix returns the prefix of all column cells of the
// document, past its document-level entries.
func RegularColumnSectionPrefix(doc []byte) []byte {
	return append(RegularDocPrefix(doc), columnTag)
}

// RegularColumnPrefix returns the prefix of every version of one column
// cell.
func RegularColumnPrefix(doc []byte, col ColumnID) []byte {
	return appendColumn(RegularDocPrefix(doc), col)
}

// IntentCellKey encodes the forward key of a transaction intent. The
// owning transaction id travels in the value; strength is part of the key
// so weak and strong intents on one path never collide.
func IntentCellKey(doc []byte, col *ColumnID, strength IntentStrength, v Version) []byte {
	b := make([]byte, 0, len(doc)+1+5+2+versionEncodedLen)
	b = append(b, byte(KeyspaceIntent))
	b = append(b, doc...)
	if col != nil {
		b = appendColumn(b, *col)
	}
	b = append(b, versionTag, byte(strength))
	return appendVersionDesc(b, v)
}

// IntentDocPrefix returns the prefix shared by every intent of the
// document, document-level and per-column alike.
func IntentDocPrefix(doc []byte) []byte {
	b := make([]byte, 0, len(doc)+1)
	b = append(b, byte(KeyspaceIntent))
	return append(b, doc...)
}

// ReverseIntentKey encodes a reverse index entry: transaction id followed
// by the full forward intent key it refers to. The value is empty.
func ReverseIntentKey(txnID []byte, intentKey []byte) []byte {
	b := make([]byte, 0, 1+len(txnID)+len(intentKey))
	b = append(b, byte(KeyspaceReverse))
	b = append(b, txnID...)
	return append(b, intentKey...)
}

// ReversePrefix returns the prefix of every reverse index entry of one
// transaction.
func ReversePrefix(txnID []byte) []byte {
	b := make([]byte, 0, 1+len(txnID))
	b = append(b, byte(KeyspaceReverse))
	return append(b, txnID...)
}

// DecodedKey is the parsed form of any stored key.
type DecodedKey struct {
	Keyspace  Keyspace
	Doc       DocKey
	DocBytes  []byte
	HasColumn bool
	Column    ColumnID
	Version   Version
	// Intent keys only
	Strength IntentStrength
	// Reverse index keys only
	TxnID []byte
	Ref   *DecodedKey
}

// SplitDocKey returns the encoded document-key portion of a regular or
// intent cell key, plus the suffix after it. The returned slices alias key.
func SplitDocKey(key []byte) (doc []byte, rest []byte, err error) {
	if len(key) < 2 {
		return nil, nil, fmt.Errorf("cell key too short: %w", ErrCorrupt)
	}
	ks := Keyspace(key[0])
	if ks != KeyspaceRegular && ks != KeyspaceIntent {
		return nil, nil, fmt.Errorf("cell key in %s keyspace: %w", ks, ErrCorrupt)
	}
	_, rest, err = DecodeDocKey(key[1:])
	if err != nil {
		return nil, nil, err
	}
	return key[1 : len(key)-len(rest)], rest, nil
}

// DecodeKey decodes any stored key into its parsed form. Malformed bytes
// fail with ErrCorrupt; they are never coerced into a best-effort result.
func DecodeKey(key []byte) (DecodedKey, error) {
	if len(key) == 0 {
		return DecodedKey{}, fmt.Errorf("empty key: %w", ErrCorrupt)
	}
	switch Keyspace(key[0]) {
	case KeyspaceRegular:
		return decodeCellKey(key, KeyspaceRegular)
	case KeyspaceIntent:
		return decodeCellKey(key, KeyspaceIntent)
	case KeyspaceReverse:
		return decodeReverseKey(key)
	default:
		return DecodedKey{}, fmt.Errorf("unknown keyspace 0x%02x: %w", key[0], ErrCorrupt)
	}
}

func decodeCellKey(key []byte, ks Keyspace) (DecodedKey, error) {
	doc, rest, err := DecodeDocKey(key[1:])
	if err != nil {
		return DecodedKey{}, err
	}
	dk := DecodedKey{
		Keyspace: ks,
		Doc:      doc,
		DocBytes: key[1 : len(key)-len(rest)],
	}
	if len(rest) == 0 {
		return DecodedKey{}, fmt.Errorf("cell key missing version: %w", ErrCorrupt)
	}
	if rest[0] == columnTag {
		if len(rest) < 5 {
			return DecodedKey{}, fmt.Errorf("column id truncated: %w", ErrCorrupt)
		}
		dk.HasColumn = true
		dk.Column = ColumnID(binary.BigEndian.Uint32(rest[1:5]))
		rest = rest[5:]
	}
	if len(rest) == 0 || rest[0] != versionTag {
		return DecodedKey{}, fmt.Errorf("cell key missing version tag: %w", ErrCorrupt)
	}
	rest = rest[1:]
	if ks == KeyspaceIntent {
		if len(rest) == 0 {
			return DecodedKey{}, fmt.Errorf("intent key missing strength: %w", ErrCorrupt)
		}
		s := IntentStrength(rest[0])
		if s != StrongIntent && s != WeakIntent {
			return DecodedKey{}, fmt.Errorf("invalid intent strength 0x%02x: %w", rest[0], ErrCorrupt)
		}
		dk.Strength = s
		rest = rest[1:]
	}
	v, rest, err := decodeVersionDesc(rest)
	if err != nil {
		return DecodedKey{}, err
	}
	if len(rest) != 0 {
		return DecodedKey{}, fmt.Errorf("%d trailing bytes after version: %w", len(rest), ErrCorrupt)
	}
	dk.Version = v
	return dk, nil
}

func decodeReverseKey(key []byte) (DecodedKey, error) {
	if len(key) < 1+TxnIDLen+1 {
		return DecodedKey{}, fmt.Errorf("reverse index key too short: %w", ErrCorrupt)
	}
	ref, err := DecodeKey(key[1+TxnIDLen:])
	if err != nil {
		return DecodedKey{}, err
	}
	if ref.Keyspace != KeyspaceIntent {
		return DecodedKey{}, fmt.Errorf("reverse index entry refers to %s keyspace: %w", ref.Keyspace, ErrCorrupt)
	}
	return DecodedKey{
		Keyspace: KeyspaceReverse,
		TxnID:    key[1 : 1+TxnIDLen],
		Ref:      &ref,
	}, nil
}
