package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// Segment file layout:
//
//	[8]  magic
//	[1]  format version
//	[1]  compression codec
//	[4]  entry count, big endian
//	[8]  payload length, big endian
//	[..] payload: repeated (uvarint keyLen, key, uvarint valueLen, value)
//	[8]  xxhash64 of everything above, big endian
//
// Entries are stored in key order, so a loaded segment rebuilds its index
// with sequential inserts.

var segmentMagic = [8]byte{'d', 'o', 'c', 'k', 'v', 's', 'e', 'g'}

const segmentFormatVersion = 1

// Compression selects the payload codec of a segment file.
type Compression byte

const (
	// NoCompression stores the payload verbatim
	NoCompression Compression = 0

	// ZstdCompression compresses the payload with zstd
	ZstdCompression Compression = 1
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case ZstdCompression:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

var (
	// ErrInvalidSegment indicates a file that is not a segment or uses
	// an unsupported format version.
	ErrInvalidSegment = errors.New("invalid segment file")

	// ErrSegmentCorrupt indicates a segment whose checksum or payload
	// does not decode.
	ErrSegmentCorrupt = errors.New("segment corrupt")
)

// WriteSegment writes every entry of the store to w in key order.
// It returns the number of entries written.
func WriteSegment(w io.Writer, src Store, compression Compression) (int, error) {
	var payload []byte
	var count uint32
	var tmp [binary.MaxVarintLen64]byte

	it := src.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		n := binary.PutUvarint(tmp[:], uint64(len(it.Key())))
		payload = append(payload, tmp[:n]...)
		payload = append(payload, it.Key()...)
		n = binary.PutUvarint(tmp[:], uint64(len(it.Value())))
		payload = append(payload, tmp[:n]...)
		payload = append(payload, it.Value()...)
		count++
	}
	if err := it.Error(); err != nil {
		return 0, fmt.Errorf("read source entries: %w", err)
	}

	if compression == ZstdCompression {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return 0, fmt.Errorf("create zstd encoder: %w", err)
		}
		payload = enc.EncodeAll(payload, nil)
		enc.Close()
	}

	header := make([]byte, 0, 22)
	header = append(header, segmentMagic[:]...)
	header = append(header, segmentFormatVersion, byte(compression))
	header = binary.BigEndian.AppendUint32(header, count)
	header = binary.BigEndian.AppendUint64(header, uint64(len(payload)))

	digest := xxhash.New()
	digest.Write(header)
	digest.Write(payload)

	if _, err := w.Write(header); err != nil {
		return 0, fmt.Errorf("write segment header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return 0, fmt.Errorf("write segment payload: %w", err)
	}
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], digest.Sum64())
	if _, err := w.Write(sum[:]); err != nil {
		return 0, fmt.Errorf("write segment checksum: %w", err)
	}
	return int(count), nil
}

// OpenSegment reads a segment file and loads its entries into a fresh
// in-memory store.
func OpenSegment(r io.Reader) (*MemStore, error) {
	header := make([]byte, 22)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read segment header: %w", ErrInvalidSegment)
	}
	if [8]byte(header[:8]) != segmentMagic {
		return nil, fmt.Errorf("bad magic: %w", ErrInvalidSegment)
	}
	if header[8] != segmentFormatVersion {
		return nil, fmt.Errorf("unsupported format version %d: %w", header[8], ErrInvalidSegment)
	}
	compression := Compression(header[9])
	count := binary.BigEndian.Uint32(header[10:14])
	payloadLen := binary.BigEndian.Uint64(header[14:22])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read segment payload: %w", ErrSegmentCorrupt)
	}
	var sum [8]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return nil, fmt.Errorf("read segment checksum: %w", ErrSegmentCorrupt)
	}

	digest := xxhash.New()
	digest.Write(header)
	digest.Write(payload)
	if binary.BigEndian.Uint64(sum[:]) != digest.Sum64() {
		return nil, fmt.Errorf("checksum mismatch: %w", ErrSegmentCorrupt)
	}

	switch compression {
	case NoCompression:
	case ZstdCompression:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		payload, err = dec.DecodeAll(payload, nil)
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", ErrSegmentCorrupt)
		}
	default:
		return nil, fmt.Errorf("unknown compression codec %d: %w", byte(compression), ErrInvalidSegment)
	}

	m := NewMemStore()
	for i := uint32(0); i < count; i++ {
		key, rest, err := readLenPrefixed(payload)
		if err != nil {
			return nil, fmt.Errorf("entry %d key: %w", i, err)
		}
		value, rest, err := readLenPrefixed(rest)
		if err != nil {
			return nil, fmt.Errorf("entry %d value: %w", i, err)
		}
		payload = rest
		if err := m.Put(key, value); err != nil {
			return nil, fmt.Errorf("load entry %d: %w", i, err)
		}
	}
	if len(payload) != 0 {
		return nil, fmt.Errorf("%d trailing payload bytes: %w", len(payload), ErrSegmentCorrupt)
	}
	return m, nil
}

func readLenPrefixed(b []byte) ([]byte, []byte, error) {
	n, size := binary.Uvarint(b)
	if size <= 0 {
		return nil, nil, fmt.Errorf("bad length prefix: %w", ErrSegmentCorrupt)
	}
	b = b[size:]
	if uint64(len(b)) < n {
		return nil, nil, fmt.Errorf("truncated entry: %w", ErrSegmentCorrupt)
	}
	return b[:n], b[n:], nil
}
