// Package column holds the engine's columnar value types: typed columns,
// chunks (equal-length column batches) and headers describing their schema.
package column

import (
	"fmt"
	"strings"
)

// Type identifies the value type of a column.
type Type int

const (
	TypeInt64 Type = iota
	TypeFloat64
	TypeString
)

// String returns the SQL-facing name of the type.
func (t Type) String() string {
	switch t {
	case TypeInt64:
		return "Int64"
	case TypeFloat64:
		return "Float64"
	case TypeString:
		return "String"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses a type name as used in configuration files.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "int64", "int":
		return TypeInt64, nil
	case "float64", "float", "double":
		return TypeFloat64, nil
	case "string", "text":
		return TypeString, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// Meta describes a single column: its name and value type.
type Meta struct {
	Name string
	Type Type
}

// Header is the ordered schema of a chunk.
type Header []Meta

// Equal reports whether two headers have the same columns in the same order.
func (h Header) Equal(other Header) bool {
	if len(h) != len(other) {
		return false
	}
	for i := range h {
		if h[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the header as a comma-separated "name Type" list. The
// textual form is stable and is what cache keys hash.
func (h Header) String() string {
	var b strings.Builder
	for i, m := range h {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(m.Name)
		b.WriteByte(' ')
		b.WriteString(m.Type.String())
	}
	return b.String()
}

// Column is a typed value vector. Exactly one of the data slices is in use,
// selected by Meta.Type.
type Column struct {
	Meta    Meta
	Ints    []int64
	Floats  []float64
	Strings []string
}

// NewInt64Column creates an Int64 column.
func NewInt64Column(name string, values []int64) *Column {
	return &Column{Meta: Meta{Name: name, Type: TypeInt64}, Ints: values}
}

// NewFloat64Column creates a Float64 column.
func NewFloat64Column(name string, values []float64) *Column {
	return &Column{Meta: Meta{Name: name, Type: TypeFloat64}, Floats: values}
}

// NewStringColumn creates a String column.
func NewStringColumn(name string, values []string) *Column {
	return &Column{Meta: Meta{Name: name, Type: TypeString}, Strings: values}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	switch c.Meta.Type {
	case TypeInt64:
		return len(c.Ints)
	case TypeFloat64:
		return len(c.Floats)
	default:
		return len(c.Strings)
	}
}

// AllocatedBytes estimates the memory held by the column's backing arrays.
func (c *Column) AllocatedBytes() int64 {
	switch c.Meta.Type {
	case TypeInt64:
		return int64(cap(c.Ints)) * 8
	case TypeFloat64:
		return int64(cap(c.Floats)) * 8
	default:
		var n int64
		for _, s := range c.Strings {
			n += int64(len(s))
		}
		return n + int64(cap(c.Strings))*16
	}
}

// Value returns the value at row i as an untyped interface.
func (c *Column) Value(i int) any {
	switch c.Meta.Type {
	case TypeInt64:
		return c.Ints[i]
	case TypeFloat64:
		return c.Floats[i]
	default:
		return c.Strings[i]
	}
}

// Clone returns a deep copy of the column. Backing arrays are allocated at
// exact length so the copy's weight is deterministic.
func (c *Column) Clone() *Column {
	out := &Column{Meta: c.Meta}
	switch c.Meta.Type {
	case TypeInt64:
		out.Ints = make([]int64, len(c.Ints))
		copy(out.Ints, c.Ints)
	case TypeFloat64:
		out.Floats = make([]float64, len(c.Floats))
		copy(out.Floats, c.Floats)
	default:
		out.Strings = make([]string, len(c.Strings))
		copy(out.Strings, c.Strings)
	}
	return out
}

// appendFrom appends all rows of other onto c. Types must match.
func (c *Column) appendFrom(other *Column) {
	switch c.Meta.Type {
	case TypeInt64:
		c.Ints = append(c.Ints, other.Ints...)
	case TypeFloat64:
		c.Floats = append(c.Floats, other.Floats...)
	default:
		c.Strings = append(c.Strings, other.Strings...)
	}
}

// Chunk is an ordered set of equal-length columns, the engine's unit of
// row-batch transfer.
type Chunk struct {
	columns []*Column
	rows    int
}

// NewChunk builds a chunk from columns, validating that all columns have the
// same length.
func NewChunk(columns []*Column) (*Chunk, error) {
	rows := 0
	for i, c := range columns {
		if i == 0 {
			rows = c.Len()
			continue
		}
		if c.Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Meta.Name, c.Len(), rows)
		}
	}
	return &Chunk{columns: columns, rows: rows}, nil
}

// EmptyChunk builds a zero-row chunk with the given header.
func EmptyChunk(header Header) *Chunk {
	columns := make([]*Column, len(header))
	for i, m := range header {
		columns[i] = &Column{Meta: m}
	}
	return &Chunk{columns: columns}
}

// Header returns the chunk's schema.
func (c *Chunk) Header() Header {
	h := make(Header, len(c.columns))
	for i, col := range c.columns {
		h[i] = col.Meta
	}
	return h
}

// Columns returns the chunk's columns in schema order.
func (c *Chunk) Columns() []*Column { return c.columns }

// NumRows returns the number of rows in the chunk.
func (c *Chunk) NumRows() int { return c.rows }

// AllocatedBytes returns the memory weight of the chunk.
func (c *Chunk) AllocatedBytes() int64 {
	var n int64
	for _, col := range c.columns {
		n += col.AllocatedBytes()
	}
	return n
}

// Clone returns a deep copy of the chunk.
func (c *Chunk) Clone() *Chunk {
	columns := make([]*Column, len(c.columns))
	for i, col := range c.columns {
		columns[i] = col.Clone()
	}
	return &Chunk{columns: columns, rows: c.rows}
}

// AppendRows appends all rows of other onto c. The headers must be equal.
func (c *Chunk) AppendRows(other *Chunk) error {
	if !c.Header().Equal(other.Header()) {
		return fmt.Errorf("header mismatch: %q vs %q", c.Header(), other.Header())
	}
	for i, col := range c.columns {
		col.appendFrom(other.columns[i])
	}
	c.rows += other.rows
	return nil
}

// Row returns row i as a slice of untyped values in schema order.
func (c *Chunk) Row(i int) []any {
	out := make([]any, len(c.columns))
	for j, col := range c.columns {
		out[j] = col.Value(i)
	}
	return out
}
