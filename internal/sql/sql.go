// Package sql parses the read-query dialect the engine executes. The parse
// result doubles as the cache's syntax-tree handle: it exposes a stable
// 128-bit tree hash over the normalized query shape, so two textually
// different but structurally identical queries share an identity.
package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/cespare/xxhash/v2"
)

//nolint:govet // Participle struct tags are DSL, not reflect tags
type selectStatement struct {
	Columns []string   `"SELECT" @Ident ( "," @Ident )*`
	Table   string     `"FROM" @Ident`
	Where   *Predicate `( "WHERE" @@ )?`
	Limit   *int64     `( "LIMIT" @Int )?`
}

// Predicate is a single "column op literal" filter.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type Predicate struct {
	Column string  `@Ident`
	Op     string  `@Op`
	Value  Literal `@@`
}

// Literal is a typed constant in a predicate.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type Literal struct {
	Float  *float64 `  @Float`
	Int    *int64   `| @Int`
	String *string  `| @String`
}

var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{"whitespace", `[ \t\r\n]+`},
	{"Float", `[0-9]+\.[0-9]+`},
	{"Int", `[0-9]+`},
	{"String", `'[^']*'`},
	{"Ident", `[A-Za-z_][A-Za-z0-9_]*`},
	{"Op", `<=|>=|!=|<>|=|<|>`},
	{"Punct", `[,()]`},
})

var parser = participle.MustBuild[selectStatement](
	participle.Lexer(sqlLexer),
	participle.CaseInsensitive("Ident"),
)

// Seeds for the two passes of the 128-bit tree hash.
const (
	treeHashSeedLo = 0x9e3779b97f4a7c15
	treeHashSeedHi = 0xc2b2ae3d27d4eb4f
)

// Statement is a parsed read query.
type Statement struct {
	sel       *selectStatement
	canonical string
	hash      [2]uint64
}

// Parse parses a SELECT statement.
func Parse(query string) (*Statement, error) {
	sel, err := parser.ParseString("", query)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	st := &Statement{sel: sel}
	st.canonical = canonicalize(sel)
	lo := xxhash.NewWithSeed(treeHashSeedLo)
	hi := xxhash.NewWithSeed(treeHashSeedHi)
	lo.WriteString(st.canonical)
	hi.WriteString(st.canonical)
	st.hash = [2]uint64{lo.Sum64(), hi.Sum64()}
	return st, nil
}

// canonicalize renders the parsed shape in a normalized textual form:
// lowercased identifiers, one operator spelling, typed literal formatting.
func canonicalize(sel *selectStatement) string {
	var b strings.Builder
	b.WriteString("select ")
	for i, c := range sel.Columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strings.ToLower(c))
	}
	b.WriteString(" from ")
	b.WriteString(strings.ToLower(sel.Table))
	if sel.Where != nil {
		b.WriteString(" where ")
		b.WriteString(strings.ToLower(sel.Where.Column))
		op := sel.Where.Op
		if op == "<>" {
			op = "!="
		}
		b.WriteString(op)
		switch v := sel.Where.Value; {
		case v.Int != nil:
			b.WriteString("i:")
			b.WriteString(strconv.FormatInt(*v.Int, 10))
		case v.Float != nil:
			b.WriteString("f:")
			b.WriteString(strconv.FormatFloat(*v.Float, 'g', -1, 64))
		case v.String != nil:
			b.WriteString("s:")
			b.WriteString(strings.Trim(*v.String, "'"))
		}
	}
	if sel.Limit != nil {
		b.WriteString(" limit ")
		b.WriteString(strconv.FormatInt(*sel.Limit, 10))
	}
	return b.String()
}

// TreeHash returns the stable 128-bit hash of the normalized query shape.
func (s *Statement) TreeHash() [2]uint64 { return s.hash }

// Canonical returns the normalized textual form of the statement.
func (s *Statement) Canonical() string { return s.canonical }

// Equal reports structural equality of two statements.
func (s *Statement) Equal(other *Statement) bool {
	return other != nil && s.canonical == other.canonical
}

// Columns returns the projected column names, lowercased.
func (s *Statement) Columns() []string {
	out := make([]string, len(s.sel.Columns))
	for i, c := range s.sel.Columns {
		out[i] = strings.ToLower(c)
	}
	return out
}

// Table returns the source table name, lowercased.
func (s *Statement) Table() string { return strings.ToLower(s.sel.Table) }

// Where returns the filter predicate, or nil.
func (s *Statement) Where() *Predicate { return s.sel.Where }

// Limit returns the row limit and whether one was given.
func (s *Statement) Limit() (int64, bool) {
	if s.sel.Limit == nil {
		return 0, false
	}
	return *s.sel.Limit, true
}

// StringValue returns the literal's string payload with quotes stripped.
func (l Literal) StringValue() string {
	if l.String == nil {
		return ""
	}
	return strings.Trim(*l.String, "'")
}
