package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/schema"
	"github.com/DocKV/dockv/pkg/store"
	"github.com/DocKV/dockv/pkg/txn"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.ColumnSchema{
		{Name: "a", ID: 10, Type: schema.TypeString},
		{Name: "b", ID: 20, Type: schema.TypeInt64},
		{Name: "c", ID: 30, Type: schema.TypeString, Nullable: true},
		{Name: "d", ID: 40, Type: schema.TypeInt64, Nullable: true},
		{Name: "e", ID: 50, Type: schema.TypeString, Nullable: true},
	}, 2)
	if err != nil {
		t.Fatalf("schema.New failed: %v", err)
	}
	return s
}

func fullProjection(t *testing.T, s *schema.Schema) *schema.Projection {
	t.Helper()
	p, err := s.Projection("a", "b", "c", "d", "e")
	if err != nil {
		t.Fatalf("Projection failed: %v", err)
	}
	return p
}

var (
	row1Key = keycodec.MakeDocKey(keycodec.StringComponent("row1"), keycodec.Int64Component(11111))
	row2Key = keycodec.MakeDocKey(keycodec.StringComponent("row2"), keycodec.Int64Component(22222))
)

func mustApply(t *testing.T, s store.Store, b *store.Batch, at uint64, owner *txn.ID) {
	t.Helper()
	if err := b.Apply(s, keycodec.FromMicros(at), owner); err != nil {
		t.Fatalf("batch apply at %d failed: %v", at, err)
	}
}

func testTxnID(t *testing.T, s string) txn.ID {
	t.Helper()
	id, err := txn.IDFromString(s)
	if err != nil {
		t.Fatalf("IDFromString failed: %v", err)
	}
	return id
}

// setupBase loads the plain two-document data set: row1's columns
// written at 1000; row2's column d written at 2000, tombstoned at 2500,
// rewritten at 3000, and column e written at 2000 then 4000.
func setupBase(t *testing.T) *store.MemStore {
	t.Helper()
	s := store.NewMemStore()

	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("row1_c")).
		SetCell(row1Key, 40, cell.Int64(10000)).
		SetCell(row1Key, 50, cell.String("row1_e")), 1000, nil)

	mustApply(t, s, store.NewBatch().
		SetCell(row2Key, 40, cell.Int64(20000)).
		SetCell(row2Key, 50, cell.String("row2_e")), 2000, nil)
	mustApply(t, s, store.NewBatch().
		DeleteColumn(row2Key, 40), 2500, nil)
	mustApply(t, s, store.NewBatch().
		SetCell(row2Key, 40, cell.Int64(30000)), 3000, nil)
	mustApply(t, s, store.NewBatch().
		SetCell(row2Key, 50, cell.String("row2_e_prime")), 4000, nil)

	return s
}

// addTxn1 writes transaction T1's intents: new values for row1's columns
// and row2's columns d and e, written at 500.
func addTxn1(t *testing.T, s store.Store, id txn.ID) {
	t.Helper()
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("row1_c_t1")).
		SetCell(row1Key, 40, cell.Int64(40000)).
		SetCell(row1Key, 50, cell.String("row1_e_t1")).
		SetCell(row2Key, 40, cell.Int64(42000)).
		SetCell(row2Key, 50, cell.String("row2_e_t1")), 500, &id)
}

// addTxn2 writes transaction T2's intents: delete row1 entirely and
// overwrite row2's column e, written at 600.
func addTxn2(t *testing.T, s store.Store, id txn.ID) {
	t.Helper()
	mustApply(t, s, store.NewBatch().
		DeleteDocument(row1Key).
		SetCell(row2Key, 50, cell.String("row2_e_t2")), 600, &id)
}

type scanConfig struct {
	proj      *schema.Projection
	authority txn.StatusAuthority
	own       *txn.ID
}

func collectRows(t *testing.T, src Source, ceiling uint64, cfg scanConfig) []Row {
	t.Helper()
	s := testSchema(t)
	proj := cfg.proj
	if proj == nil {
		proj = fullProjection(t, s)
	}

	ri, err := NewRowIterator(Options{
		Source:     src,
		Schema:     s,
		Projection: proj,
		Ceiling:    keycodec.FromMicros(ceiling),
		Authority:  cfg.authority,
		OwnTxn:     cfg.own,
	})
	if err != nil {
		t.Fatalf("NewRowIterator failed: %v", err)
	}
	ctx := context.Background()
	if err := ri.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var rows []Row
	for {
		ok, err := ri.HasNext(ctx)
		if err != nil {
			t.Fatalf("HasNext failed: %v", err)
		}
		if !ok {
			break
		}
		var row Row
		if err := ri.NextRow(ctx, &row); err != nil {
			t.Fatalf("NextRow failed: %v", err)
		}
		rows = append(rows, row)
	}
	return rows
}

// want describes one expected row: column name to expected value, nil
// for null. Unlisted projected columns must be null.
type want map[string]*cell.Value

func vs(s string) *cell.Value { v := cell.String(s); return &v }
func vi(i int64) *cell.Value  { v := cell.Int64(i); return &v }

func assertRows(t *testing.T, rows []Row, wants []want) {
	t.Helper()
	if len(rows) != len(wants) {
		t.Fatalf("expected %d rows, got %d: %v", len(wants), len(rows), rows)
	}
	for ri, w := range wants {
		row := rows[ri]
		for i := 0; i < row.Len(); i++ {
			col := row.Column(i)
			got, present := row.At(i)
			expected, listed := w[col.Name]
			switch {
			case !listed || expected == nil:
				if present {
					t.Errorf("row %d column %s: expected null, got %s", ri, col.Name, got)
				}
			case !present:
				t.Errorf("row %d column %s: expected %s, got null", ri, col.Name, expected)
			case got != *expected:
				t.Errorf("row %d column %s: expected %s, got %s", ri, col.Name, expected, got)
			}
		}
	}
}

func TestScanScenarioA(t *testing.T) {
	s := setupBase(t)

	rows := collectRows(t, s, 2000, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c"), "d": vi(10000), "e": vs("row1_e")},
		{"a": vs("row2"), "b": vi(22222), "d": vi(20000), "e": vs("row2_e")},
	})

	rows = collectRows(t, s, 5000, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c"), "d": vi(10000), "e": vs("row1_e")},
		{"a": vs("row2"), "b": vi(22222), "d": vi(30000), "e": vs("row2_e_prime")},
	})
}

func TestScanScenarioACeilingBetweenWrites(t *testing.T) {
	s := setupBase(t)

	// At 2500 row2's d is tombstoned; at 3000 the rewrite is visible
	rows := collectRows(t, s, 2500, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c"), "d": vi(10000), "e": vs("row1_e")},
		{"a": vs("row2"), "b": vi(22222), "e": vs("row2_e")},
	})

	rows = collectRows(t, s, 3000, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c"), "d": vi(10000), "e": vs("row1_e")},
		{"a": vs("row2"), "b": vi(22222), "d": vi(30000), "e": vs("row2_e")},
	})
}

func TestScanScenarioBDocumentTombstone(t *testing.T) {
	s := store.NewMemStore()
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("row1_c")).
		SetCell(row1Key, 40, cell.Int64(10000)), 1000, nil)
	mustApply(t, s, store.NewBatch().
		SetCell(row2Key, 40, cell.Int64(20000)), 2000, nil)
	mustApply(t, s, store.NewBatch().
		DeleteDocument(row1Key), 2500, nil)

	// Before the tombstone both documents are visible
	rows := collectRows(t, s, 2000, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c"), "d": vi(10000)},
		{"a": vs("row2"), "b": vi(22222), "d": vi(20000)},
	})

	// At the tombstone time row1 disappears entirely
	rows = collectRows(t, s, 2500, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row2"), "b": vi(22222), "d": vi(20000)},
	})
}

func TestScanDocTombstoneOverriddenByNewerColumn(t *testing.T) {
	s := store.NewMemStore()
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("old")).
		SetCell(row1Key, 40, cell.Int64(1)), 1000, nil)
	mustApply(t, s, store.NewBatch().
		DeleteDocument(row1Key), 2000, nil)
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("revived")), 3000, nil)

	// The column written after the tombstone resurfaces the document,
	// but columns under the tombstone stay hidden
	rows := collectRows(t, s, 3000, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("revived")},
	})
}

func TestScanScenarioCTransactionCommitTime(t *testing.T) {
	s := setupBase(t)
	t1 := testTxnID(t, "transaction1____")
	addTxn1(t, s, t1)

	authority := txn.NewInMemoryAuthority()
	authority.Commit(t1, keycodec.FromMicros(3500))

	// Below the commit time the intents stay invisible
	rows := collectRows(t, s, 2000, scanConfig{authority: authority})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c"), "d": vi(10000), "e": vs("row1_e")},
		{"a": vs("row2"), "b": vi(22222), "d": vi(20000), "e": vs("row2_e")},
	})

	// Above it, the effective version is the commit time 3500: newer
	// than row1's 1000-time cells and row2's d, but older than row2's
	// e written at 4000
	rows = collectRows(t, s, 5000, scanConfig{authority: authority})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c_t1"), "d": vi(40000), "e": vs("row1_e_t1")},
		{"a": vs("row2"), "b": vi(22222), "d": vi(42000), "e": vs("row2_e_prime")},
	})
}

func TestScanScenarioDTransactionalDelete(t *testing.T) {
	s := setupBase(t)
	t1 := testTxnID(t, "transaction1____")
	t2 := testTxnID(t, "transaction2____")
	addTxn1(t, s, t1)
	addTxn2(t, s, t2)

	authority := txn.NewInMemoryAuthority()
	authority.Commit(t1, keycodec.FromMicros(3500))
	authority.Commit(t2, keycodec.FromMicros(6000))

	rows := collectRows(t, s, 6000, scanConfig{authority: authority})
	assertRows(t, rows, []want{
		{"a": vs("row2"), "b": vi(22222), "d": vi(42000), "e": vs("row2_e_t2")},
	})
}

func TestScanOwnTransactionVisibility(t *testing.T) {
	s := setupBase(t)
	own := testTxnID(t, "own_txn_________")
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("mine")), 1500, &own)

	authority := txn.NewInMemoryAuthority()
	authority.Begin(own)

	// A foreign reader does not see the pending intent
	rows := collectRows(t, s, 2000, scanConfig{authority: authority})
	assertRows(t, rows[:1], []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c"), "d": vi(10000), "e": vs("row1_e")},
	})

	// The owning session reads back its own pending write
	rows = collectRows(t, s, 2000, scanConfig{authority: authority, own: &own})
	assertRows(t, rows[:1], []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("mine"), "d": vi(10000), "e": vs("row1_e")},
	})

	// But not above the ceiling
	rows = collectRows(t, s, 1200, scanConfig{authority: authority, own: &own})
	assertRows(t, rows[:1], []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("row1_c"), "d": vi(10000), "e": vs("row1_e")},
	})
}

func TestScanTTLBoundary(t *testing.T) {
	s := store.NewMemStore()
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("short-lived").WithTTL(1000*time.Microsecond)), 1000, nil)

	// Visible strictly before write time + TTL
	ttlVal := cell.String("short-lived").WithTTL(1000 * time.Microsecond)
	rows := collectRows(t, s, 1999, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": &ttlVal},
	})

	// Expired exactly at the boundary: the document vanishes with it
	rows = collectRows(t, s, 2000, scanConfig{})
	assertRows(t, rows, nil)
}

func TestScanWriteIDTieBreak(t *testing.T) {
	s := store.NewMemStore()

	// Two writes to the same column in one batch share the version
	// time; the higher write id wins
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("first")).
		SetCell(row1Key, 30, cell.String("second")), 1000, nil)

	rows := collectRows(t, s, 2000, scanConfig{})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("second")},
	})
}

func TestScanCommitTimeTieBreakAcrossHistories(t *testing.T) {
	s := store.NewMemStore()
	id := testTxnID(t, "tie_breaker_____")

	// The intent is the second mutation of its batch (write id 1); the
	// regular write carries write id 0. Committing at the regular write
	// time makes the effective versions collide, and the intent's
	// higher write id must win.
	mustApply(t, s, store.NewBatch().
		SetCell(row2Key, 40, cell.Int64(0)).
		SetCell(row1Key, 30, cell.String("from-intent")), 500, &id)
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("from-regular")), 3500, nil)

	authority := txn.NewInMemoryAuthority()
	authority.Commit(id, keycodec.FromMicros(3500))

	rows := collectRows(t, s, 5000, scanConfig{authority: authority})
	assertRows(t, rows[:1], []want{
		{"a": vs("row1"), "b": vi(11111), "c": vs("from-intent")},
	})
}

func TestScanProjectionSubset(t *testing.T) {
	s := setupBase(t)
	sch := testSchema(t)
	proj, err := sch.Projection("a", "c")
	if err != nil {
		t.Fatalf("Projection failed: %v", err)
	}

	rows := collectRows(t, s, 5000, scanConfig{proj: proj})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Len() != 2 {
		t.Fatalf("expected 2 projected columns, got %d", rows[0].Len())
	}
	assertRows(t, rows, []want{
		{"a": vs("row1"), "c": vs("row1_c")},
		{"a": vs("row2")},
	})

	// Key-only projection still sees both documents: liveness is
	// decided over the whole schema, not the projection
	keyProj, err := sch.Projection("a", "b")
	if err != nil {
		t.Fatalf("Projection failed: %v", err)
	}
	rows = collectRows(t, s, 5000, scanConfig{proj: keyProj})
	assertRows(t, rows, []want{
		{"a": vs("row1"), "b": vi(11111)},
		{"a": vs("row2"), "b": vi(22222)},
	})
}

func TestScanIdempotentHasNext(t *testing.T) {
	s := setupBase(t)
	sch := testSchema(t)

	ri, err := NewRowIterator(Options{
		Source:     s,
		Schema:     sch,
		Projection: fullProjection(t, sch),
		Ceiling:    keycodec.FromMicros(5000),
	})
	if err != nil {
		t.Fatalf("NewRowIterator failed: %v", err)
	}
	ctx := context.Background()
	if err := ri.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := ri.HasNext(ctx)
		if err != nil {
			t.Fatalf("HasNext call %d failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("HasNext call %d returned false", i)
		}
	}

	var row Row
	if err := ri.NextRow(ctx, &row); err != nil {
		t.Fatalf("NextRow failed: %v", err)
	}
	if v, ok := row.Value(10); !ok || v.Str != "row1" {
		t.Errorf("expected row1 first, got %v", row)
	}
}

func TestScanIteratorStates(t *testing.T) {
	s := setupBase(t)
	sch := testSchema(t)

	ri, err := NewRowIterator(Options{
		Source:     s,
		Schema:     sch,
		Projection: fullProjection(t, sch),
		Ceiling:    keycodec.FromMicros(5000),
	})
	if err != nil {
		t.Fatalf("NewRowIterator failed: %v", err)
	}
	ctx := context.Background()

	if ri.State() != StateUninitialized {
		t.Errorf("expected UNINITIALIZED, got %s", ri.State())
	}
	if _, err := ri.HasNext(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("HasNext before Init: expected ErrNotInitialized, got %v", err)
	}
	var row Row
	if err := ri.NextRow(ctx, &row); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("NextRow before Init: expected ErrNotInitialized, got %v", err)
	}

	if err := ri.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if ri.State() != StatePositioned {
		t.Errorf("expected POSITIONED, got %s", ri.State())
	}
	if err := ri.Init(ctx); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init: expected ErrAlreadyInitialized, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := ri.NextRow(ctx, &row); err != nil {
			t.Fatalf("NextRow %d failed: %v", i, err)
		}
	}
	if err := ri.NextRow(ctx, &row); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	if ri.State() != StateExhausted {
		t.Errorf("expected EXHAUSTED, got %s", ri.State())
	}
	if ok, err := ri.HasNext(ctx); err != nil || ok {
		t.Errorf("HasNext after exhaustion: expected false, got %v, %v", ok, err)
	}
}

func TestScanStartKey(t *testing.T) {
	s := setupBase(t)
	sch := testSchema(t)

	ri, err := NewRowIterator(Options{
		Source:     s,
		Schema:     sch,
		Projection: fullProjection(t, sch),
		Ceiling:    keycodec.FromMicros(5000),
		StartKey:   &row2Key,
	})
	if err != nil {
		t.Fatalf("NewRowIterator failed: %v", err)
	}
	ctx := context.Background()
	if err := ri.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var row Row
	if err := ri.NextRow(ctx, &row); err != nil {
		t.Fatalf("NextRow failed: %v", err)
	}
	if v, ok := row.Value(10); !ok || v.Str != "row2" {
		t.Errorf("expected the scan to start at row2, got %v", row)
	}
	if err := ri.NextRow(ctx, &row); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestScanUnknownStatusPropagates(t *testing.T) {
	s := setupBase(t)
	unknown := testTxnID(t, "never_registered")
	mustApply(t, s, store.NewBatch().
		SetCell(row1Key, 30, cell.String("doomed")), 1500, &unknown)

	sch := testSchema(t)
	ri, err := NewRowIterator(Options{
		Source:     s,
		Schema:     sch,
		Projection: fullProjection(t, sch),
		Ceiling:    keycodec.FromMicros(5000),
		Authority:  txn.NewInMemoryAuthority(),
	})
	if err != nil {
		t.Fatalf("NewRowIterator failed: %v", err)
	}
	ctx := context.Background()
	if err := ri.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if _, err := ri.HasNext(ctx); !errors.Is(err, txn.ErrStatusUnknown) {
		t.Errorf("expected ErrStatusUnknown to surface, got %v", err)
	}
}

func TestScanCorruptCellValue(t *testing.T) {
	s := setupBase(t)
	key := keycodec.RegularCellKey(row1Key.Encode(), colID(30), keycodec.Version{Time: keycodec.FromMicros(1500)})
	if err := s.Put(key, []byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	sch := testSchema(t)
	ri, err := NewRowIterator(Options{
		Source:     s,
		Schema:     sch,
		Projection: fullProjection(t, sch),
		Ceiling:    keycodec.FromMicros(5000),
	})
	if err != nil {
		t.Fatalf("NewRowIterator failed: %v", err)
	}
	ctx := context.Background()
	if err := ri.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if _, err := ri.HasNext(ctx); !errors.Is(err, cell.ErrCorrupt) {
		t.Errorf("expected corruption to abort the scan, got %v", err)
	}
}

func TestScanProjectionValidationFailsEarly(t *testing.T) {
	sch := testSchema(t)
	if _, err := sch.Projection("a", "nope"); !errors.Is(err, schema.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

func colID(id keycodec.ColumnID) *keycodec.ColumnID {
	return &id
}
