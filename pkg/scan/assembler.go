package scan

import (
	"context"
	"fmt"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/schema"
)

// assembleRow fills out with the projected values of the cursor's
// document. Key columns are decoded straight from the document key;
// non-key columns stay null unless the cursor resolved a live value.
func assembleRow(ctx context.Context, s *schema.Schema, proj *schema.Projection, cur *docCursor, out *Row) error {
	out.reset(proj)

	for i, col := range proj.Columns() {
		if ki := s.KeyColumnIndex(col.ID); ki >= 0 {
			v, err := keyColumnValue(cur.docKey, ki, col)
			if err != nil {
				return err
			}
			out.set(i, v)
			continue
		}

		lk, err := cur.column(ctx, col.ID, true)
		if err != nil {
			return err
		}
		if lk.state == stateHasValue {
			out.set(i, lk.value)
		}
	}
	return nil
}

// keyColumnValue converts one document-key component into a column value,
// checking that the stored component kind matches the schema.
func keyColumnValue(doc keycodec.DocKey, idx int, col schema.ColumnSchema) (cell.Value, error) {
	if idx >= len(doc.Components) {
		return cell.Value{}, fmt.Errorf("document key %s has no component for key column %q: %w",
			doc, col.Name, keycodec.ErrCorrupt)
	}
	comp := doc.Components[idx]
	switch {
	case comp.Kind == keycodec.ComponentString && col.Type == schema.TypeString:
		return cell.String(comp.Str), nil
	case comp.Kind == keycodec.ComponentInt64 && col.Type == schema.TypeInt64:
		return cell.Int64(comp.Int), nil
	default:
		return cell.Value{}, fmt.Errorf("key column %q: component kind %d does not match schema type: %w",
			col.Name, comp.Kind, keycodec.ErrCorrupt)
	}
}
