package table

import (
	"fmt"
	"sort"

	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/xitongsys/parquet-go/parquet"
)

type (
	// Column describes one flat parquet leaf column, enough to write it back
	// with the same physical, converted and logical type.
	Column struct {
		Name          string
		Type          parquet.Type
		ConvertedType *parquet.ConvertedType
		LogicalType   *parquet.LogicalType
		Scale         *int32
		Precision     *int32
		Length        *int32
	}

	// Row holds one value per schema column, in schema order. nil is null.
	Row []any

	// Table is immutable once built: sorting and slicing return new tables that
	// share the underlying rows.
	Table struct {
		Schema []Column
		Rows   []Row
	}
)

func New(schema []Column, rows []Row) (*Table, error) {
	for i, row := range rows {
		if len(row) != len(schema) {
			return nil, fmt.Errorf("row %d has %d values, schema has %d columns", i, len(row), len(schema))
		}
	}
	return &Table{Schema: schema, Rows: rows}, nil
}

func (t *Table) NumRows() int {
	return len(t.Rows)
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Schema))
	for i, col := range t.Schema {
		names[i] = col.Name
	}
	return names
}

// ColumnIndex returns a *utils.ColumnNotFoundError when name is not in the schema.
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, col := range t.Schema {
		if col.Name == name {
			return i, nil
		}
	}
	return -1, &utils.ColumnNotFoundError{Column: name, Available: t.ColumnNames()}
}

// Value returns the value of column name in row i.
func (t *Table) Value(i int, name string) (any, error) {
	idx, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	return t.Rows[i][idx], nil
}

// Slice returns rows [start, end) as a table sharing the same schema.
func (t *Table) Slice(start, end int) *Table {
	return &Table{Schema: t.Schema, Rows: t.Rows[start:end]}
}

// SortedBy stably orders rows by ascending value of column name, nulls last.
// Fails with utils.ErrIncomparableKeyType when the column cannot be totally ordered.
func (t *Table) SortedBy(name string) (*Table, error) {
	idx, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	if err := t.checkOrderable(idx); err != nil {
		return nil, err
	}

	rows := make([]Row, len(t.Rows))
	copy(rows, t.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][idx], rows[j][idx]
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		c, _ := Compare(a, b)
		return c < 0
	})
	return &Table{Schema: t.Schema, Rows: rows}, nil
}

func (t *Table) checkOrderable(idx int) error {
	col := t.Schema[idx]
	if ColumnKind(col) == KindUnorderable {
		return fmt.Errorf("column %s has physical type %s: %w", col.Name, col.Type, utils.ErrIncomparableKeyType)
	}
	var seen Kind = KindUnorderable
	for i, row := range t.Rows {
		v := row[idx]
		if v == nil {
			continue
		}
		k := KindOf(v)
		if k == KindUnorderable {
			return fmt.Errorf("row %d of column %s holds %T: %w", i, col.Name, v, utils.ErrIncomparableKeyType)
		}
		if seen == KindUnorderable {
			seen = k
		} else if k != seen {
			return fmt.Errorf("row %d of column %s holds %s among %s values: %w", i, col.Name, k, seen, utils.ErrIncomparableKeyType)
		}
	}
	return nil
}
