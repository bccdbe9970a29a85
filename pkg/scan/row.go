package scan

import (
	"strings"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/schema"
)

// Row is the assembled output for one visible document: an ordered
// mapping from projected column to an optional value. A Row is only
// valid until the iterator that filled it produces the next one.
type Row struct {
	columns []schema.ColumnSchema
	values  []cell.Value
	present []bool
}

// reset prepares the row for the given projection with every column null.
func (r *Row) reset(proj *schema.Projection) {
	cols := proj.Columns()
	r.columns = cols
	r.values = make([]cell.Value, len(cols))
	r.present = make([]bool, len(cols))
}

func (r *Row) set(i int, v cell.Value) {
	r.values[i] = v
	r.present[i] = true
}

// Len returns the number of projected columns.
func (r *Row) Len() int {
	return len(r.columns)
}

// Column returns the schema of the i-th projected column.
func (r *Row) Column(i int) schema.ColumnSchema {
	return r.columns[i]
}

// At returns the value of the i-th projected column. The second result
// is false when the column is null.
func (r *Row) At(i int) (cell.Value, bool) {
	return r.values[i], r.present[i]
}

// Value returns the value of the projected column with the given id.
// The second result is false when the column is null or not projected.
func (r *Row) Value(id keycodec.ColumnID) (cell.Value, bool) {
	for i, c := range r.columns {
		if c.ID == id {
			return r.At(i)
		}
	}
	return cell.Value{}, false
}

func (r *Row) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteString(": ")
		if r.present[i] {
			b.WriteString(r.values[i].String())
		} else {
			b.WriteString("null")
		}
	}
	b.WriteByte('}')
	return b.String()
}
