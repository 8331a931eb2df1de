package engine

import (
	"context"
	"fmt"

	"github.com/castordb/castor/internal/column"
	"github.com/castordb/castor/internal/pipeline"
	"github.com/castordb/castor/internal/sql"
)

// tableSource streams a filtered, projected table scan as chunks of at most
// batchSize rows.
type tableSource struct {
	table   *Table
	header  column.Header
	names   []string
	match   func(row int) bool // nil means all rows
	limit   int64              // <0 means no limit
	batch   int
	pos     int
	emitted int64
}

func newTableSource(t *Table, stmt *sql.Statement, batch int) (*tableSource, error) {
	names := stmt.Columns()
	header, err := t.Header(names)
	if err != nil {
		return nil, err
	}

	var match func(row int) bool
	if w := stmt.Where(); w != nil {
		match, err = buildPredicate(t, w)
		if err != nil {
			return nil, err
		}
	}

	limit := int64(-1)
	if n, ok := stmt.Limit(); ok {
		limit = n
	}

	return &tableSource{
		table:  t,
		header: header,
		names:  names,
		match:  match,
		limit:  limit,
		batch:  batch,
	}, nil
}

func (s *tableSource) Header() column.Header { return s.header }

func (s *tableSource) Next(ctx context.Context) (*column.Chunk, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.limit >= 0 && s.emitted >= s.limit {
		return nil, false, nil
	}

	cols := make([]*column.Column, len(s.names))
	for i := range s.names {
		cols[i] = &column.Column{Meta: s.header[i]}
	}
	rows := 0
	for s.pos < s.table.Rows() && rows < s.batch {
		row := s.pos
		s.pos++
		if s.match != nil && !s.match(row) {
			continue
		}
		for i, n := range s.names {
			src := s.table.Column(n)
			appendValue(cols[i], src, row)
		}
		rows++
		s.emitted++
		if s.limit >= 0 && s.emitted >= s.limit {
			break
		}
	}
	if rows == 0 {
		return nil, false, nil
	}
	chunk, err := column.NewChunk(cols)
	if err != nil {
		return nil, false, err
	}
	return chunk, true, nil
}

func appendValue(dst, src *column.Column, row int) {
	switch src.Meta.Type {
	case column.TypeInt64:
		dst.Ints = append(dst.Ints, src.Ints[row])
	case column.TypeFloat64:
		dst.Floats = append(dst.Floats, src.Floats[row])
	default:
		dst.Strings = append(dst.Strings, src.Strings[row])
	}
}

// buildPredicate compiles a WHERE clause into a per-row matcher.
func buildPredicate(t *Table, w *sql.Predicate) (func(row int) bool, error) {
	col := t.Column(w.Column)
	if col == nil {
		return nil, fmt.Errorf("table %q has no column %q", t.Name, w.Column)
	}

	switch col.Meta.Type {
	case column.TypeInt64:
		if w.Value.Int == nil {
			return nil, fmt.Errorf("column %q is Int64, literal is not an integer", w.Column)
		}
		v := *w.Value.Int
		return func(row int) bool { return compareOrdered(col.Ints[row], v, w.Op) }, nil
	case column.TypeFloat64:
		var v float64
		switch {
		case w.Value.Float != nil:
			v = *w.Value.Float
		case w.Value.Int != nil:
			v = float64(*w.Value.Int)
		default:
			return nil, fmt.Errorf("column %q is Float64, literal is not numeric", w.Column)
		}
		return func(row int) bool { return compareOrdered(col.Floats[row], v, w.Op) }, nil
	default:
		if w.Value.String == nil {
			return nil, fmt.Errorf("column %q is String, literal is not a string", w.Column)
		}
		v := w.Value.StringValue()
		return func(row int) bool { return compareOrdered(col.Strings[row], v, w.Op) }, nil
	}
}

func compareOrdered[T int64 | float64 | string](a, b T, op string) bool {
	switch op {
	case "=":
		return a == b
	case "!=", "<>":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	default:
		return false
	}
}

var _ pipeline.Source = (*tableSource)(nil)
