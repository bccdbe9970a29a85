// Package cell defines the value encoding of a versioned cell: a typed
// primitive or a tombstone, optionally carrying a time-to-live offset from
// its write time. The layout is part of the contract the write path must
// honor; the decoder is strict and reports corruption instead of coercing.
package cell

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt is returned when stored value bytes cannot be decoded.
var ErrCorrupt = errors.New("corrupt cell encoding")

// Kind identifies the runtime type of a cell value.
type Kind uint8

const (
	// KindTombstone records a deletion shadowing older versions
	KindTombstone Kind = iota + 1
	// KindString is a UTF-8 string value
	KindString
	// KindInt64 is a signed 64-bit integer value
	KindInt64
)

func (k Kind) String() string {
	switch k {
	case KindTombstone:
		return "tombstone"
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Value is a decoded cell value. TTL is the expiration offset from the
// cell's write time; zero means the value never expires.
type Value struct {
	Kind Kind
	Str  string
	Int  int64
	TTL  time.Duration
}

// String creates a string value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Int64 creates an int64 value.
func Int64(i int64) Value {
	return Value{Kind: KindInt64, Int: i}
}

// Tombstone creates a deletion marker.
func Tombstone() Value {
	return Value{Kind: KindTombstone}
}

// WithTTL returns a copy of v carrying the given time-to-live.
func (v Value) WithTTL(ttl time.Duration) Value {
	v.TTL = ttl
	return v
}

// IsTombstone reports whether v is a deletion marker.
func (v Value) IsTombstone() bool {
	return v.Kind == KindTombstone
}

func (v Value) String() string {
	var s string
	switch v.Kind {
	case KindTombstone:
		s = "DEL"
	case KindString:
		s = fmt.Sprintf("%q", v.Str)
	case KindInt64:
		s = fmt.Sprintf("%d", v.Int)
	default:
		s = fmt.Sprintf("value(kind=%d)", v.Kind)
	}
	if v.TTL != 0 {
		s += fmt.Sprintf("; ttl: %s", v.TTL)
	}
	return s
}

// Encoded layout: [flags byte] [uvarint ttl micros, if flagTTL]
// [type byte] [payload].
const (
	flagTTL byte = 1 << 0

	typeTombstone byte = 0x58 // 'X'
	typeString    byte = 0x24 // '$'
	typeInt64     byte = 0x49 // 'I'
)

// Encode returns the byte encoding of v.
func Encode(v Value) []byte {
	b := make([]byte, 0, len(v.Str)+16)
	var flags byte
	if v.TTL != 0 {
		flags |= flagTTL
	}
	b = append(b, flags)
	if v.TTL != 0 {
		b = binary.AppendUvarint(b, uint64(v.TTL.Microseconds()))
	}
	switch v.Kind {
	case KindTombstone:
		b = append(b, typeTombstone)
	case KindString:
		b = append(b, typeString)
		b = append(b, v.Str...)
	case KindInt64:
		b = append(b, typeInt64)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v.Int))
		b = append(b, buf[:]...)
	}
	return b
}

// Decode decodes a full cell value.
func Decode(b []byte) (Value, error) {
	v, payload, err := decodeHeader(b)
	if err != nil {
		return Value{}, err
	}
	switch v.Kind {
	case KindTombstone:
		if len(payload) != 0 {
			return Value{}, fmt.Errorf("tombstone with %d payload bytes: %w", len(payload), ErrCorrupt)
		}
	case KindString:
		v.Str = string(payload)
	case KindInt64:
		if len(payload) != 8 {
			return Value{}, fmt.Errorf("int64 payload is %d bytes: %w", len(payload), ErrCorrupt)
		}
		v.Int = int64(binary.BigEndian.Uint64(payload))
	}
	return v, nil
}

// Meta is the part of a cell value needed for visibility decisions:
// its kind and TTL, without the payload.
type Meta struct {
	Kind Kind
	TTL  time.Duration
}

// IsTombstone reports whether the cell is a deletion marker.
func (m Meta) IsTombstone() bool {
	return m.Kind == KindTombstone
}

// DecodeMeta decodes only the header of a cell value. Columns outside a
// projection are checked for liveness through this, so their payload bytes
// are never materialized.
func DecodeMeta(b []byte) (Meta, error) {
	v, _, err := decodeHeader(b)
	if err != nil {
		return Meta{}, err
	}
	return Meta{Kind: v.Kind, TTL: v.TTL}, nil
}

func decodeHeader(b []byte) (Value, []byte, error) {
	if len(b) < 2 {
		return Value{}, nil, fmt.Errorf("cell value too short: %w", ErrCorrupt)
	}
	flags := b[0]
	if flags &^ flagTTL != 0 {
		return Value{}, nil, fmt.Errorf("unknown cell flags 0x%02x: %w", flags, ErrCorrupt)
	}
	b = b[1:]

	var v Value
	if flags&flagTTL != 0 {
		us, n := binary.Uvarint(b)
		if n <= 0 {
			return Value{}, nil, fmt.Errorf("invalid ttl varint: %w", ErrCorrupt)
		}
		v.TTL = time.Duration(us) * time.Microsecond
		b = b[n:]
	}
	if len(b) == 0 {
		return Value{}, nil, fmt.Errorf("cell value missing type byte: %w", ErrCorrupt)
	}
	switch b[0] {
	case typeTombstone:
		v.Kind = KindTombstone
	case typeString:
		v.Kind = KindString
	case typeInt64:
		v.Kind = KindInt64
	default:
		return Value{}, nil, fmt.Errorf("unknown cell type 0x%02x: %w", b[0], ErrCorrupt)
	}
	return v, b[1:], nil
}
