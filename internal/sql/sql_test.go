package sql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castordb/castor/internal/sql"
)

func TestParse_Select(t *testing.T) {
	stmt, err := sql.Parse("SELECT ts, value FROM metrics WHERE host = 'a' LIMIT 10")
	require.NoError(t, err)

	assert.Equal(t, []string{"ts", "value"}, stmt.Columns())
	assert.Equal(t, "metrics", stmt.Table())
	require.NotNil(t, stmt.Where())
	assert.Equal(t, "host", stmt.Where().Column)
	assert.Equal(t, "=", stmt.Where().Op)
	assert.Equal(t, "a", stmt.Where().Value.StringValue())
	limit, ok := stmt.Limit()
	require.True(t, ok)
	assert.Equal(t, int64(10), limit)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "empty", query: ""},
		{name: "not a select", query: "INSERT INTO t VALUES (1)"},
		{name: "missing from", query: "SELECT a, b"},
		{name: "dangling where", query: "SELECT a FROM t WHERE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sql.Parse(tt.query)
			assert.Error(t, err)
		})
	}
}

func TestTreeHash_StableAcrossTexture(t *testing.T) {
	a, err := sql.Parse("SELECT ts FROM metrics WHERE host = 'a'")
	require.NoError(t, err)
	b, err := sql.Parse("select   TS\nfrom METRICS   where HOST='a'")
	require.NoError(t, err)

	assert.Equal(t, a.TreeHash(), b.TreeHash())
	assert.True(t, a.Equal(b))
}

func TestTreeHash_DistinguishesShapes(t *testing.T) {
	base, err := sql.Parse("SELECT ts FROM metrics")
	require.NoError(t, err)

	others := []string{
		"SELECT value FROM metrics",
		"SELECT ts FROM events",
		"SELECT ts FROM metrics LIMIT 1",
		"SELECT ts FROM metrics WHERE ts = 1",
		"SELECT ts FROM metrics WHERE ts = 2",
	}
	for _, q := range others {
		stmt, err := sql.Parse(q)
		require.NoError(t, err)
		assert.NotEqual(t, base.TreeHash(), stmt.TreeHash(), "query %q", q)
		assert.False(t, base.Equal(stmt))
	}
}

func TestTreeHash_LiteralTypeMatters(t *testing.T) {
	// An integer literal and a string literal with the same digits are
	// different shapes.
	a, err := sql.Parse("SELECT ts FROM metrics WHERE host = 1")
	require.NoError(t, err)
	b, err := sql.Parse("SELECT ts FROM metrics WHERE host = '1'")
	require.NoError(t, err)

	assert.NotEqual(t, a.TreeHash(), b.TreeHash())
}

func TestCanonical_NormalizesOperator(t *testing.T) {
	a, err := sql.Parse("SELECT ts FROM metrics WHERE host <> 'a'")
	require.NoError(t, err)
	b, err := sql.Parse("SELECT ts FROM metrics WHERE host != 'a'")
	require.NoError(t, err)

	assert.Equal(t, a.Canonical(), b.Canonical())
}
