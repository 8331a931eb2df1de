package engine

import (
	"fmt"

	"github.com/castordb/castor/internal/column"
	"github.com/castordb/castor/internal/config"
)

// Table is an in-memory columnar table.
type Table struct {
	Name    string
	columns []*column.Column
	rows    int
}

// NewTable builds a table from full columns, validating equal lengths.
func NewTable(name string, columns []*column.Column) (*Table, error) {
	rows := 0
	for i, c := range columns {
		if i == 0 {
			rows = c.Len()
			continue
		}
		if c.Len() != rows {
			return nil, fmt.Errorf("table %q: column %q has %d rows, expected %d",
				name, c.Meta.Name, c.Len(), rows)
		}
	}
	return &Table{Name: name, columns: columns, rows: rows}, nil
}

// NewTableFromConfig builds a table from a yaml table definition.
func NewTableFromConfig(tc config.TableConfig) (*Table, error) {
	columns := make([]*column.Column, 0, len(tc.Columns))
	for _, cc := range tc.Columns {
		typ, err := column.ParseType(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("table %q column %q: %w", tc.Name, cc.Name, err)
		}
		col, err := columnFromValues(cc.Name, typ, cc.Values)
		if err != nil {
			return nil, fmt.Errorf("table %q column %q: %w", tc.Name, cc.Name, err)
		}
		columns = append(columns, col)
	}
	return NewTable(tc.Name, columns)
}

func columnFromValues(name string, typ column.Type, values []any) (*column.Column, error) {
	switch typ {
	case column.TypeInt64:
		out := make([]int64, 0, len(values))
		for _, v := range values {
			switch n := v.(type) {
			case int:
				out = append(out, int64(n))
			case int64:
				out = append(out, n)
			default:
				return nil, fmt.Errorf("value %v is not an integer", v)
			}
		}
		return column.NewInt64Column(name, out), nil
	case column.TypeFloat64:
		out := make([]float64, 0, len(values))
		for _, v := range values {
			switch n := v.(type) {
			case int:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			case float64:
				out = append(out, n)
			default:
				return nil, fmt.Errorf("value %v is not a number", v)
			}
		}
		return column.NewFloat64Column(name, out), nil
	default:
		out := make([]string, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("value %v is not a string", v)
			}
			out = append(out, s)
		}
		return column.NewStringColumn(name, out), nil
	}
}

// Rows returns the table's row count.
func (t *Table) Rows() int { return t.rows }

// Column returns the named column, or nil.
func (t *Table) Column(name string) *column.Column {
	for _, c := range t.columns {
		if c.Meta.Name == name {
			return c
		}
	}
	return nil
}

// Header returns the schema for a projection of the table's columns.
func (t *Table) Header(names []string) (column.Header, error) {
	h := make(column.Header, 0, len(names))
	for _, n := range names {
		c := t.Column(n)
		if c == nil {
			return nil, fmt.Errorf("table %q has no column %q", t.Name, n)
		}
		h = append(h, c.Meta)
	}
	return h, nil
}
