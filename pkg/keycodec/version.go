package keycodec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HybridTime is the version-time component stamped on every cell: a coarse
// physical component in microseconds and a fine logical tie-break.
type HybridTime struct {
	Physical uint64
	Logical  uint32
}

// FromMicros creates a HybridTime with the given physical component and a
// zero logical component.
func FromMicros(us uint64) HybridTime {
	return HybridTime{Physical: us}
}

// MaxHybridTime is the largest representable hybrid time. Reading at this
// ceiling sees every committed write.
var MaxHybridTime = HybridTime{Physical: math.MaxUint64, Logical: math.MaxUint32}

// Compare returns -1, 0 or 1 as t sorts before, equal to or after o.
func (t HybridTime) Compare(o HybridTime) int {
	if t.Physical != o.Physical {
		if t.Physical < o.Physical {
			return -1
		}
		return 1
	}
	if t.Logical != o.Logical {
		if t.Logical < o.Logical {
			return -1
		}
		return 1
	}
	return 0
}

// IsZero reports whether t is the zero hybrid time.
func (t HybridTime) IsZero() bool {
	return t.Physical == 0 && t.Logical == 0
}

func (t HybridTime) String() string {
	if t.Logical == 0 {
		return fmt.Sprintf("HT{physical: %d}", t.Physical)
	}
	return fmt.Sprintf("HT{physical: %d logical: %d}", t.Physical, t.Logical)
}

// MaxWriteID is the largest intra-batch write id. Seeking with it positions
// at the newest entry carrying the seek's hybrid time.
const MaxWriteID = math.MaxUint32

// Version identifies one write of a path: its hybrid time plus the
// intra-batch write id used only to break ties among writes sharing a
// hybrid time within one batch.
type Version struct {
	Time    HybridTime
	WriteID uint32
}

// Compare orders versions by hybrid time, then by write id. A larger write
// id means a later op in the same batch, so it sorts after.
func (v Version) Compare(o Version) int {
	if c := v.Time.Compare(o.Time); c != 0 {
		return c
	}
	if v.WriteID != o.WriteID {
		if v.WriteID < o.WriteID {
			return -1
		}
		return 1
	}
	return 0
}

func (v Version) String() string {
	if v.WriteID == 0 {
		return v.Time.String()
	}
	if v.Time.Logical == 0 {
		return fmt.Sprintf("HT{physical: %d w: %d}", v.Time.Physical, v.WriteID)
	}
	return fmt.Sprintf("HT{physical: %d logical: %d w: %d}", v.Time.Physical, v.Time.Logical, v.WriteID)
}

// versionEncodedLen is the fixed byte length of an encoded version.
const versionEncodedLen = 16

// appendVersionDesc appends the descending encoding of v: every component
// is bit-inverted so that a larger version sorts byte-wise first. Scanning
// forward within one path therefore visits the newest version first.
func appendVersionDesc(b []byte, v Version) []byte {
	var buf [versionEncodedLen]byte
	binary.BigEndian.PutUint64(buf[0:8], ^v.Time.Physical)
	binary.BigEndian.PutUint32(buf[8:12], ^v.Time.Logical)
	binary.BigEndian.PutUint32(buf[12:16], ^v.WriteID)
	return append(b, buf[:]...)
}

// decodeVersionDesc decodes a descending-encoded version, returning the
// remaining bytes.
func decodeVersionDesc(b []byte) (Version, []byte, error) {
	if len(b) < versionEncodedLen {
		return Version{}, nil, fmt.Errorf("version truncated at %d bytes: %w", len(b), ErrCorrupt)
	}
	v := Version{
		Time: HybridTime{
			Physical: ^binary.BigEndian.Uint64(b[0:8]),
			Logical:  ^binary.BigEndian.Uint32(b[8:12]),
		},
		WriteID: ^binary.BigEndian.Uint32(b[12:16]),
	}
	return v, b[versionEncodedLen:], nil
}
