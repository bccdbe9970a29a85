// Package remote is the production StatusAuthority implementation: a
// gRPC client querying a status service, plus the matching server that
// exposes any local authority. Messages travel as hand-rolled protobuf
// wire format, so the package carries no generated code.
package remote

import (
	"fmt"

	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/txn"
	"google.golang.org/protobuf/encoding/protowire"
)

// Status request wire format:
//
//	field 1, bytes:  transaction id (16 bytes)
//	field 2, varint: read ceiling physical micros
//	field 3, varint: read ceiling logical counter
//
// Status response wire format:
//
//	field 1, varint: status code (txn.Status numeric value)
//	field 2, varint: commit time physical micros (committed only)
//	field 3, varint: commit time logical counter (committed only)

func encodeStatusRequest(id txn.ID, ceiling keycodec.HybridTime) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, id.Bytes())
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, ceiling.Physical)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ceiling.Logical))
	return b
}

func decodeStatusRequest(b []byte) (txn.ID, keycodec.HybridTime, error) {
	var id txn.ID
	var idSet bool
	var ceiling keycodec.HybridTime

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return txn.ID{}, keycodec.HybridTime{}, fmt.Errorf("status request: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return txn.ID{}, keycodec.HybridTime{}, fmt.Errorf("status request id: %w", protowire.ParseError(n))
			}
			b = b[n:]
			var err error
			id, err = txn.IDFromBytes(raw)
			if err != nil {
				return txn.ID{}, keycodec.HybridTime{}, err
			}
			idSet = true

		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return txn.ID{}, keycodec.HybridTime{}, fmt.Errorf("status request physical: %w", protowire.ParseError(n))
			}
			b = b[n:]
			ceiling.Physical = v

		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return txn.ID{}, keycodec.HybridTime{}, fmt.Errorf("status request logical: %w", protowire.ParseError(n))
			}
			b = b[n:]
			ceiling.Logical = uint32(v)

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return txn.ID{}, keycodec.HybridTime{}, fmt.Errorf("status request field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !idSet {
		return txn.ID{}, keycodec.HybridTime{}, fmt.Errorf("status request missing transaction id")
	}
	return id, ceiling, nil
}

func encodeStatusResponse(res txn.StatusResult) []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(res.Status))
	if res.Status == txn.StatusCommitted {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, res.CommitTime.Physical)
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(res.CommitTime.Logical))
	}
	return b
}

func decodeStatusResponse(b []byte) (txn.StatusResult, error) {
	var res txn.StatusResult

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return txn.StatusResult{}, fmt.Errorf("status response: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return txn.StatusResult{}, fmt.Errorf("status response code: %w", protowire.ParseError(n))
			}
			b = b[n:]
			res.Status = txn.Status(v)

		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return txn.StatusResult{}, fmt.Errorf("status response physical: %w", protowire.ParseError(n))
			}
			b = b[n:]
			res.CommitTime.Physical = v

		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return txn.StatusResult{}, fmt.Errorf("status response logical: %w", protowire.ParseError(n))
			}
			b = b[n:]
			res.CommitTime.Logical = uint32(v)

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return txn.StatusResult{}, fmt.Errorf("status response field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch res.Status {
	case txn.StatusPending, txn.StatusCommitted, txn.StatusAborted:
		return res, nil
	default:
		return txn.StatusResult{}, fmt.Errorf("status response carries unknown status %d", res.Status)
	}
}
