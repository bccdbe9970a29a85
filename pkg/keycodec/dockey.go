package keycodec

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ComponentKind identifies the type of one document-key component.
type ComponentKind uint8

const (
	// ComponentInt64 is a signed 64-bit integer component
	ComponentInt64 ComponentKind = iota + 1
	// ComponentString is a UTF-8 string component
	ComponentString
)

// Component is one typed primitive of a document key.
type Component struct {
	Kind ComponentKind
	Str  string
	Int  int64
}

// StringComponent creates a string document-key component.
func StringComponent(s string) Component {
	return Component{Kind: ComponentString, Str: s}
}

// Int64Component creates an int64 document-key component.
func Int64Component(i int64) Component {
	return Component{Kind: ComponentInt64, Int: i}
}

func (c Component) String() string {
	switch c.Kind {
	case ComponentString:
		return fmt.Sprintf("%q", c.Str)
	case ComponentInt64:
		return fmt.Sprintf("%d", c.Int)
	default:
		return fmt.Sprintf("Component(kind=%d)", c.Kind)
	}
}

// DocKey is the ordered tuple of typed primitives uniquely identifying a
// document. Its encoded bytes are the common prefix of every cell that
// belongs to the document; it is never stored as a cell of its own.
type DocKey struct {
	Components []Component
}

// MakeDocKey creates a DocKey from the given components.
func MakeDocKey(parts ...Component) DocKey {
	return DocKey{Components: parts}
}

func (k DocKey) String() string {
	parts := make([]string, len(k.Components))
	for i, c := range k.Components {
		parts[i] = c.String()
	}
	return "DocKey([" + strings.Join(parts, ", ") + "])"
}

// Type tags for encoded key components. Every tag is greater than groupEnd
// so a terminated document key sorts before any longer key extending it.
const (
	typeTagInt64  byte = 0x49 // 'I'
	typeTagString byte = 0x53 // 'S'
	groupEnd      byte = 0x21 // '!'
)

const int64SignFlip = uint64(1) << 63

// Encode returns the order-preserving byte encoding of the document key:
// each component is tagged and encoded so byte order matches component
// order, terminated by a group-end byte.
func (k DocKey) Encode() []byte {
	// Rough size guess to avoid growth for typical keys
	b := make([]byte, 0, 16*len(k.Components)+1)
	for _, c := range k.Components {
		switch c.Kind {
		case ComponentInt64:
			b = append(b, typeTagInt64)
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(c.Int)^int64SignFlip)
			b = append(b, buf[:]...)
		case ComponentString:
			b = append(b, typeTagString)
			b = appendEscapedString(b, c.Str)
		}
	}
	return append(b, groupEnd)
}

// appendEscapedString appends s with zero bytes escaped (0x00 -> 0x00 0x01)
// and a 0x00 0x00 terminator, preserving lexicographic order for strings of
// different lengths.
func appendEscapedString(b []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == 0x00 {
			b = append(b, 0x00, 0x01)
		} else {
			b = append(b, s[i])
		}
	}
	return append(b, 0x00, 0x00)
}

// decodeEscapedString decodes an escaped, terminated string, returning the
// remaining bytes.
func decodeEscapedString(b []byte) (string, []byte, error) {
	var sb strings.Builder
	for i := 0; i < len(b); {
		c := b[i]
		if c != 0x00 {
			sb.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(b) {
			return "", nil, fmt.Errorf("string component truncated: %w", ErrCorrupt)
		}
		switch b[i+1] {
		case 0x00:
			return sb.String(), b[i+2:], nil
		case 0x01:
			sb.WriteByte(0x00)
			i += 2
		default:
			return "", nil, fmt.Errorf("invalid string escape 0x%02x: %w", b[i+1], ErrCorrupt)
		}
	}
	return "", nil, fmt.Errorf("unterminated string component: %w", ErrCorrupt)
}

// DecodeDocKey decodes a document key from the front of b, returning the
// key and the remaining bytes (the column/version suffix of a cell key).
func DecodeDocKey(b []byte) (DocKey, []byte, error) {
	var key DocKey
	for len(b) > 0 {
		tag := b[0]
		b = b[1:]
		switch tag {
		case groupEnd:
			return key, b, nil
		case typeTagInt64:
			if len(b) < 8 {
				return DocKey{}, nil, fmt.Errorf("int64 component truncated: %w", ErrCorrupt)
			}
			v := binary.BigEndian.Uint64(b[:8]) ^ int64SignFlip
			key.Components = append(key.Components, Int64Component(int64(v)))
			b = b[8:]
		case typeTagString:
			s, rest, err := decodeEscapedString(b)
			if err != nil {
				return DocKey{}, nil, err
			}
			key.Components = append(key.Components, StringComponent(s))
			b = rest
		default:
			return DocKey{}, nil, fmt.Errorf("unknown component tag 0x%02x: %w", tag, ErrCorrupt)
		}
	}
	return DocKey{}, nil, fmt.Errorf("unterminated document key: %w", ErrCorrupt)
}
