// Package schema holds the column metadata the read path needs: stable
// column ids, which leading columns form the document key, and validated
// projections. Schema construction is assumed to happen elsewhere; this
// package only checks the little it must.
package schema

import (
	"errors"
	"fmt"

	"github.com/DocKV/dockv/pkg/keycodec"
)

var (
	// ErrUnknownColumn is returned when a projection references a column
	// absent from the schema. It fails construction, before any scan runs.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrInvalidSchema is returned for malformed schema definitions.
	ErrInvalidSchema = errors.New("invalid schema")
)

// ColumnType is the declared type of a column's values.
type ColumnType uint8

const (
	// TypeString is a UTF-8 string column
	TypeString ColumnType = iota + 1
	// TypeInt64 is a signed 64-bit integer column
	TypeInt64
)

// ColumnSchema describes one column. IDs are stable across renames.
type ColumnSchema struct {
	Name     string
	ID       keycodec.ColumnID
	Type     ColumnType
	Nullable bool
}

// Schema is an ordered list of columns whose first NumKeyColumns form the
// document key. Key columns have no standalone cells; their values are the
// document-key components.
type Schema struct {
	columns       []ColumnSchema
	numKeyColumns int
	byName        map[string]int
	byID          map[keycodec.ColumnID]int
}

// New creates a schema from the given columns, of which the first
// numKeyColumns are key columns.
func New(columns []ColumnSchema, numKeyColumns int) (*Schema, error) {
	if numKeyColumns < 0 || numKeyColumns > len(columns) {
		return nil, fmt.Errorf("%d key columns out of %d: %w", numKeyColumns, len(columns), ErrInvalidSchema)
	}
	s := &Schema{
		columns:       append([]ColumnSchema(nil), columns...),
		numKeyColumns: numKeyColumns,
		byName:        make(map[string]int, len(columns)),
		byID:          make(map[keycodec.ColumnID]int, len(columns)),
	}
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name: %w", i, ErrInvalidSchema)
		}
		if _, dup := s.byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q: %w", c.Name, ErrInvalidSchema)
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate column id %d: %w", c.ID, ErrInvalidSchema)
		}
		s.byName[c.Name] = i
		s.byID[c.ID] = i
	}
	return s, nil
}

// Columns returns all columns in declaration order.
func (s *Schema) Columns() []ColumnSchema {
	return s.columns
}

// NumKeyColumns returns how many leading columns form the document key.
func (s *Schema) NumKeyColumns() int {
	return s.numKeyColumns
}

// KeyColumnIndex returns the position of id among the key columns, or -1
// if id is not a key column. The position matches the document-key
// component at the same index.
func (s *Schema) KeyColumnIndex(id keycodec.ColumnID) int {
	i, ok := s.byID[id]
	if !ok || i >= s.numKeyColumns {
		return -1
	}
	return i
}

// ColumnByID returns the column with the given id.
func (s *Schema) ColumnByID(id keycodec.ColumnID) (ColumnSchema, bool) {
	i, ok := s.byID[id]
	if !ok {
		return ColumnSchema{}, false
	}
	return s.columns[i], true
}

// Projection is the validated subset and order of columns a reader
// requests.
type Projection struct {
	columns []ColumnSchema
}

// Projection creates a projection of the named columns, in the given
// order. Unknown names fail now, not during the scan.
func (s *Schema) Projection(names ...string) (*Projection, error) {
	cols := make([]ColumnSchema, 0, len(names))
	for _, name := range names {
		i, ok := s.byName[name]
		if !ok {
			return nil, fmt.Errorf("column %q: %w", name, ErrUnknownColumn)
		}
		cols = append(cols, s.columns[i])
	}
	return &Projection{columns: cols}, nil
}

// ProjectionByIDs creates a projection of the columns with the given ids.
func (s *Schema) ProjectionByIDs(ids ...keycodec.ColumnID) (*Projection, error) {
	cols := make([]ColumnSchema, 0, len(ids))
	for _, id := range ids {
		i, ok := s.byID[id]
		if !ok {
			return nil, fmt.Errorf("column id %d: %w", id, ErrUnknownColumn)
		}
		cols = append(cols, s.columns[i])
	}
	return &Projection{columns: cols}, nil
}

// Columns returns the projected columns in projection order.
func (p *Projection) Columns() []ColumnSchema {
	return p.columns
}

// ColumnID returns the id of the i-th projected column.
func (p *Projection) ColumnID(i int) keycodec.ColumnID {
	return p.columns[i].ID
}

// Contains reports whether the projection includes the column id.
func (p *Projection) Contains(id keycodec.ColumnID) bool {
	for _, c := range p.columns {
		if c.ID == id {
			return true
		}
	}
	return false
}
