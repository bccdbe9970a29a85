package txn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/keycodec"
)

func mustID(t *testing.T, s string) ID {
	t.Helper()
	id, err := IDFromString(s)
	if err != nil {
		t.Fatalf("IDFromString(%q) failed: %v", s, err)
	}
	return id
}

func TestIDFromString(t *testing.T) {
	id := mustID(t, "0000000000000001")
	if id.String() != "30303030-3030-3030-3030-303030303031" {
		t.Errorf("unexpected id rendering: %s", id)
	}

	if _, err := IDFromString("short"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}

func TestInMemoryAuthority(t *testing.T) {
	ctx := context.Background()
	a := NewInMemoryAuthority()

	t1 := mustID(t, "0000000000000001")
	t2 := mustID(t, "0000000000000002")

	// Unknown transactions are indeterminate, not pending
	if _, err := a.RequestStatus(ctx, t1, keycodec.FromMicros(1000)); !errors.Is(err, ErrStatusUnknown) {
		t.Errorf("expected ErrStatusUnknown for unregistered txn, got %v", err)
	}

	a.Begin(t1)
	res, err := a.RequestStatus(ctx, t1, keycodec.FromMicros(1000))
	if err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if res.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", res.Status)
	}

	// Committed after the ceiling reads as pending at that ceiling
	a.Commit(t1, keycodec.FromMicros(3500))
	res, err = a.RequestStatus(ctx, t1, keycodec.FromMicros(2000))
	if err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if res.Status != StatusPending {
		t.Errorf("expected PENDING below commit time, got %s", res.Status)
	}

	res, err = a.RequestStatus(ctx, t1, keycodec.FromMicros(5000))
	if err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if res.Status != StatusCommitted || res.CommitTime.Physical != 3500 {
		t.Errorf("expected COMMITTED at 3500, got %s %s", res.Status, res.CommitTime)
	}

	a.Begin(t2)
	a.Abort(t2)
	res, err = a.RequestStatus(ctx, t2, keycodec.FromMicros(5000))
	if err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if res.Status != StatusAborted {
		t.Errorf("expected ABORTED, got %s", res.Status)
	}
}

func TestIntentValueRoundTrip(t *testing.T) {
	owner := mustID(t, "0000000000000001")
	doc := keycodec.MakeDocKey(keycodec.StringComponent("row1")).Encode()
	colID := keycodec.ColumnID(30)
	v := keycodec.Version{Time: keycodec.FromMicros(500)}

	strongVal := cell.String("row1_c_t1")
	key := keycodec.IntentCellKey(doc, &colID, keycodec.StrongIntent, v)
	in, err := DecodeIntentEntry(key, EncodeIntentValue(owner, &strongVal))
	if err != nil {
		t.Fatalf("decode strong intent failed: %v", err)
	}
	if in.Owner != owner {
		t.Errorf("owner mismatch: %s", in.Owner)
	}
	if in.Strength != keycodec.StrongIntent || in.Cell != strongVal {
		t.Errorf("strong intent mismatch: %+v", in)
	}
	if !in.HasColumn || in.Column != 30 {
		t.Errorf("column mismatch: %+v", in)
	}

	weakKey := keycodec.IntentCellKey(doc, nil, keycodec.WeakIntent, v)
	in, err = DecodeIntentEntry(weakKey, EncodeIntentValue(owner, nil))
	if err != nil {
		t.Fatalf("decode weak intent failed: %v", err)
	}
	if in.Strength != keycodec.WeakIntent || in.HasColumn {
		t.Errorf("weak intent mismatch: %+v", in)
	}

	// Corruption paths
	if _, err := DecodeIntentEntry(key, []byte{0x01}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for short value, got %v", err)
	}
	if _, err := DecodeIntentEntry(weakKey, EncodeIntentValue(owner, &strongVal)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for weak intent with payload, got %v", err)
	}
}

// countingAuthority counts status requests to verify per-scan caching.
type countingAuthority struct {
	inner StatusAuthority
	calls atomic.Int64
}

func (c *countingAuthority) RequestStatus(ctx context.Context, id ID, ceiling keycodec.HybridTime) (StatusResult, error) {
	c.calls.Add(1)
	return c.inner.RequestStatus(ctx, id, ceiling)
}

func TestResolverVisibility(t *testing.T) {
	ctx := context.Background()
	doc := keycodec.MakeDocKey(keycodec.StringComponent("row1")).Encode()
	colID := keycodec.ColumnID(40)

	committed := mustID(t, "0000000000000001")
	pending := mustID(t, "0000000000000002")
	aborted := mustID(t, "0000000000000003")

	a := NewInMemoryAuthority()
	a.Commit(committed, keycodec.FromMicros(3500))
	a.Begin(pending)
	a.Begin(aborted)
	a.Abort(aborted)

	mkIntent := func(owner ID, strength keycodec.IntentStrength, at uint64, wid uint32) Intent {
		return Intent{
			DocBytes:  doc,
			HasColumn: true,
			Column:    colID,
			Strength:  strength,
			Written:   keycodec.Version{Time: keycodec.FromMicros(at), WriteID: wid},
			Owner:     owner,
			Cell:      cell.Int64(40000),
		}
	}

	r := NewResolver(a, keycodec.FromMicros(5000), nil)

	// Weak intents never resolve to a visible value
	res, err := r.Resolve(ctx, mkIntent(committed, keycodec.WeakIntent, 500, 1))
	if err != nil || res.Visible {
		t.Errorf("weak intent must be invisible, got %+v, %v", res, err)
	}

	// Committed intent: visible, effective time is the commit time and
	// the write id is carried over for tie-breaking
	res, err = r.Resolve(ctx, mkIntent(committed, keycodec.StrongIntent, 500, 2))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Visible {
		t.Fatalf("committed intent below ceiling must be visible")
	}
	if res.Effective.Time.Physical != 3500 || res.Effective.WriteID != 2 {
		t.Errorf("effective version must be commit time with original write id, got %s", res.Effective)
	}

	// Pending and aborted intents are invisible, not errors
	if res, err = r.Resolve(ctx, mkIntent(pending, keycodec.StrongIntent, 500, 0)); err != nil || res.Visible {
		t.Errorf("pending intent must be invisible, got %+v, %v", res, err)
	}
	if res, err = r.Resolve(ctx, mkIntent(aborted, keycodec.StrongIntent, 500, 0)); err != nil || res.Visible {
		t.Errorf("aborted intent must be invisible, got %+v, %v", res, err)
	}

	// A ceiling below the commit time hides the intent
	rLow := NewResolver(a, keycodec.FromMicros(2000), nil)
	if res, err = rLow.Resolve(ctx, mkIntent(committed, keycodec.StrongIntent, 500, 0)); err != nil || res.Visible {
		t.Errorf("intent committed above ceiling must be invisible, got %+v, %v", res, err)
	}
}

func TestResolverOwnTransaction(t *testing.T) {
	ctx := context.Background()
	own := mustID(t, "00000000000000AA")
	doc := keycodec.MakeDocKey(keycodec.StringComponent("row1")).Encode()

	// No authority at all: the resolver must not need one for the
	// session's own writes
	r := NewResolver(nil, keycodec.FromMicros(2000), &own)

	in := Intent{
		DocBytes: doc,
		Strength: keycodec.StrongIntent,
		Written:  keycodec.Version{Time: keycodec.FromMicros(500), WriteID: 3},
		Owner:    own,
		Cell:     cell.String("mine"),
	}
	res, err := r.Resolve(ctx, in)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Visible {
		t.Fatalf("own uncommitted write must be visible")
	}
	if res.Effective != in.Written {
		t.Errorf("own write keeps its original version, got %s", res.Effective)
	}

	// Own writes above the ceiling stay invisible
	in.Written.Time = keycodec.FromMicros(9000)
	if res, err = r.Resolve(ctx, in); err != nil || res.Visible {
		t.Errorf("own write above ceiling must be invisible, got %+v, %v", res, err)
	}

	// A foreign intent without an authority is an error
	foreign := in
	foreign.Owner = mustID(t, "00000000000000BB")
	if _, err = r.Resolve(ctx, foreign); !errors.Is(err, ErrNoStatusAuthority) {
		t.Errorf("expected ErrNoStatusAuthority, got %v", err)
	}
}

func TestResolverUnknownStatusPropagates(t *testing.T) {
	ctx := context.Background()
	a := NewInMemoryAuthority()
	r := NewResolver(a, keycodec.FromMicros(5000), nil)

	in := Intent{
		Strength: keycodec.StrongIntent,
		Written:  keycodec.Version{Time: keycodec.FromMicros(500)},
		Owner:    mustID(t, "00000000000000CC"),
	}
	if _, err := r.Resolve(ctx, in); !errors.Is(err, ErrStatusUnknown) {
		t.Errorf("expected ErrStatusUnknown to propagate, got %v", err)
	}
}

func TestResolverCachesStatusPerTransaction(t *testing.T) {
	ctx := context.Background()
	id := mustID(t, "0000000000000001")

	inner := NewInMemoryAuthority()
	inner.Commit(id, keycodec.FromMicros(1000))
	counting := &countingAuthority{inner: inner}

	r := NewResolver(counting, keycodec.FromMicros(5000), nil)
	in := Intent{
		Strength: keycodec.StrongIntent,
		Written:  keycodec.Version{Time: keycodec.FromMicros(500)},
		Owner:    id,
		Cell:     cell.Int64(1),
	}

	for i := 0; i < 5; i++ {
		if _, err := r.Resolve(ctx, in); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}
	if got := counting.calls.Load(); got != 1 {
		t.Errorf("expected a single status request per transaction per scan, got %d", got)
	}
}
