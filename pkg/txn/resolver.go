package txn

import (
	"context"
	"fmt"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/keycodec"
)

// Resolution is the visibility decision for one intent at one read
// ceiling. For a visible intent, Effective is the version every
// downstream shadowing and ordering decision must use: the owning
// transaction's commit time, not the original write time.
type Resolution struct {
	Visible   bool
	Effective keycodec.Version
	Value     cell.Value
}

// Resolver decides intent visibility for a single scan: one fixed read
// ceiling, optionally one reading transaction, one status authority.
// Outcomes are cached per transaction id, which is safe because the
// ceiling never changes within a scan and results from two different
// ceilings must never mix.
type Resolver struct {
	authority StatusAuthority
	ceiling   keycodec.HybridTime
	own       *ID
	cache     map[ID]StatusResult
}

// NewResolver creates a resolver. own is the reading session's own
// transaction id, if it is reading inside a transaction; authority may be
// nil only if no foreign intents will be encountered.
func NewResolver(authority StatusAuthority, ceiling keycodec.HybridTime, own *ID) *Resolver {
	return &Resolver{
		authority: authority,
		ceiling:   ceiling,
		own:       own,
		cache:     make(map[ID]StatusResult),
	}
}

// Resolve decides whether the intent is visible at the resolver's read
// ceiling. Weak intents are never visible. The reading session's own
// uncommitted writes are visible at their original write time. Any other
// intent is visible iff its owner committed with commit time <= ceiling,
// and its effective version carries the commit time with the intent's
// original write id for tie-breaking.
//
// An indeterminate status propagates as an error wrapping
// ErrStatusUnknown: the caller owns backoff and must restart the affected
// scan range from scratch.
func (r *Resolver) Resolve(ctx context.Context, in Intent) (Resolution, error) {
	if in.Strength == keycodec.WeakIntent {
		return Resolution{}, nil
	}

	// Same-transaction visibility: a session reads back its own pending
	// work regardless of global commit status.
	if r.own != nil && in.Owner == *r.own {
		if in.Written.Time.Compare(r.ceiling) > 0 {
			return Resolution{}, nil
		}
		return Resolution{Visible: true, Effective: in.Written, Value: in.Cell}, nil
	}

	result, ok := r.cache[in.Owner]
	if !ok {
		if r.authority == nil {
			return Resolution{}, fmt.Errorf("intent of %s: %w", in.Owner, ErrNoStatusAuthority)
		}
		var err error
		result, err = r.authority.RequestStatus(ctx, in.Owner, r.ceiling)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolve intent of %s: %w", in.Owner, err)
		}
		r.cache[in.Owner] = result
	}

	switch result.Status {
	case StatusCommitted:
		if result.CommitTime.Compare(r.ceiling) > 0 {
			return Resolution{}, nil
		}
		return Resolution{
			Visible:   true,
			Effective: keycodec.Version{Time: result.CommitTime, WriteID: in.Written.WriteID},
			Value:     in.Cell,
		}, nil
	case StatusPending, StatusAborted:
		return Resolution{}, nil
	default:
		return Resolution{}, fmt.Errorf("authority returned %s for %s: %w", result.Status, in.Owner, ErrStatusUnknown)
	}
}
