package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DocKV/dockv/pkg/config"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/scan"
	"github.com/DocKV/dockv/pkg/schema"
	"github.com/DocKV/dockv/pkg/store"
	"github.com/DocKV/dockv/pkg/telemetry"
	"github.com/DocKV/dockv/pkg/txn"
	"github.com/DocKV/dockv/pkg/txn/remote"
)

// session holds the interactive shell state: the store, the active
// schema, the session clock, and any open transaction.
type session struct {
	cfg     *config.Config
	tel     telemetry.Telemetry
	metrics scan.Metrics

	st    *store.MemStore
	sch   *schema.Schema
	local *txn.InMemoryAuthority

	// authority answers status questions during scans. It is the local
	// in-memory authority unless the manifest names a remote endpoint.
	authority txn.StatusAuthority
	remoteFar *remote.Authority

	// clock is the session's write clock in microseconds. Each applied
	// batch advances it.
	clock uint64

	// open transaction, if any
	curTxn  *txn.ID
	txnTime keycodec.HybridTime
}

func newSession(cfg *config.Config, tel telemetry.Telemetry) (*session, error) {
	sch, err := defaultSchema()
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		tel:     tel,
		metrics: scan.NewMetrics(tel),
		st:      store.NewMemStore(),
		sch:     sch,
		local:   txn.NewInMemoryAuthority(),
		clock:   1000,
	}
	s.authority = s.local

	if cfg.StatusAuthorityEndpoint != "" {
		far, err := remote.Dial(cfg.StatusAuthorityEndpoint)
		if err != nil {
			return nil, fmt.Errorf("dialing status authority: %w", err)
		}
		s.remoteFar = far
		s.authority = far
	}

	return s, nil
}

func defaultSchema() (*schema.Schema, error) {
	return schema.New([]schema.ColumnSchema{
		{Name: "id", ID: 10, Type: schema.TypeString},
		{Name: "name", ID: 20, Type: schema.TypeString},
		{Name: "email", ID: 30, Type: schema.TypeString},
		{Name: "age", ID: 40, Type: schema.TypeInt64},
	}, 1)
}

func (s *session) Close() {
	if s.remoteFar != nil {
		s.remoteFar.Close()
		s.remoteFar = nil
	}
	if s.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down telemetry: %s\n", err)
		}
		s.tel = nil
	}
}

// tick advances the session clock and returns the write time for a
// batch.
func (s *session) tick() keycodec.HybridTime {
	t := keycodec.FromMicros(s.clock)
	s.clock += 1000
	return t
}

// now returns the current read ceiling without advancing the clock.
func (s *session) now() keycodec.HybridTime {
	return keycodec.FromMicros(s.clock)
}

// applyBatch writes a batch either directly or as intents of the open
// transaction.
func (s *session) applyBatch(b *store.Batch) error {
	if s.curTxn != nil {
		return b.Apply(s.st, s.txnTime, s.curTxn)
	}
	return b.Apply(s.st, s.tick(), nil)
}

// parseKey turns a '/'-separated key literal into a DocKey typed by
// the schema's key columns.
func (s *session) parseKey(lit string) (keycodec.DocKey, error) {
	parts := strings.Split(lit, "/")
	numKey := s.sch.NumKeyColumns()
	if len(parts) != numKey {
		return keycodec.DocKey{}, fmt.Errorf("key %q has %d components, schema has %d key columns", lit, len(parts), numKey)
	}

	comps := make([]keycodec.Component, 0, numKey)
	for i, part := range parts {
		col := s.sch.Columns()[i]
		switch col.Type {
		case schema.TypeString:
			comps = append(comps, keycodec.StringComponent(part))
		case schema.TypeInt64:
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return keycodec.DocKey{}, fmt.Errorf("key component %q for int64 column %s: %w", part, col.Name, err)
			}
			comps = append(comps, keycodec.Int64Component(n))
		default:
			return keycodec.DocKey{}, fmt.Errorf("unsupported key column type for %s", col.Name)
		}
	}
	return keycodec.MakeDocKey(comps...), nil
}

// columnByName resolves a non-key column name.
func (s *session) columnByName(name string) (schema.ColumnSchema, error) {
	for _, col := range s.sch.Columns() {
		if col.Name == name {
			if s.sch.KeyColumnIndex(col.ID) >= 0 {
				return schema.ColumnSchema{}, fmt.Errorf("%s is a key column", name)
			}
			return col, nil
		}
	}
	return schema.ColumnSchema{}, fmt.Errorf("unknown column %q", name)
}

// newScan builds a row iterator over the full schema projection.
func (s *session) newScan(ceiling keycodec.HybridTime, startKey *keycodec.DocKey) (*scan.RowIterator, error) {
	names := make([]string, 0, len(s.sch.Columns()))
	for _, col := range s.sch.Columns() {
		names = append(names, col.Name)
	}
	proj, err := s.sch.Projection(names...)
	if err != nil {
		return nil, err
	}

	return scan.NewRowIterator(scan.Options{
		Source:     s.st,
		Schema:     s.sch,
		Projection: proj,
		Ceiling:    ceiling,
		Authority:  s.authority,
		OwnTxn:     s.curTxn,
		StartKey:   startKey,
		Metrics:    s.metrics,
	})
}

// beginTxn opens a transaction. An empty literal generates a random
// id; shorter literals are padded with underscores.
func (s *session) beginTxn(lit string) (txn.ID, error) {
	if s.curTxn != nil {
		return txn.ID{}, fmt.Errorf("transaction %s already in progress", s.curTxn)
	}

	var id txn.ID
	var err error
	if lit == "" {
		buf := make([]byte, keycodec.TxnIDLen/2)
		if _, err := rand.Read(buf); err != nil {
			return txn.ID{}, err
		}
		id, err = txn.IDFromString(hex.EncodeToString(buf))
	} else {
		if len(lit) > keycodec.TxnIDLen {
			return txn.ID{}, fmt.Errorf("transaction id %q longer than %d chars", lit, keycodec.TxnIDLen)
		}
		padded := lit + strings.Repeat("_", keycodec.TxnIDLen-len(lit))
		id, err = txn.IDFromString(padded)
	}
	if err != nil {
		return txn.ID{}, err
	}

	s.local.Begin(id)
	s.curTxn = &id
	s.txnTime = s.tick()
	return id, nil
}

func (s *session) commitTxn(at keycodec.HybridTime) error {
	if s.curTxn == nil {
		return fmt.Errorf("no transaction in progress")
	}
	s.local.Commit(*s.curTxn, at)
	s.curTxn = nil
	return nil
}

func (s *session) abortTxn() error {
	if s.curTxn == nil {
		return fmt.Errorf("no transaction in progress")
	}
	s.local.Abort(*s.curTxn)
	s.curTxn = nil
	return nil
}
