package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castordb/castor/internal/column"
	"github.com/castordb/castor/internal/pipeline"
)

var header = column.Header{{Name: "v", Type: column.TypeInt64}}

func chunk(t *testing.T, values ...int64) *column.Chunk {
	t.Helper()
	c, err := column.NewChunk([]*column.Column{column.NewInt64Column("v", values)})
	require.NoError(t, err)
	return c
}

func TestSingleChunkSource_EmitsOnce(t *testing.T) {
	src := pipeline.NewSingleChunkSource(header, chunk(t, 1, 2))

	got, ok, err := src.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.NumRows())

	_, ok, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSingleChunkSource_CanceledContext(t *testing.T) {
	src := pipeline.NewSingleChunkSource(header, chunk(t, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSliceSource_EmitsInOrder(t *testing.T) {
	src := pipeline.NewSliceSource(header, []*column.Chunk{
		chunk(t, 1),
		chunk(t, 2, 3),
	})
	assert.True(t, src.Header().Equal(header))

	var rows []int64
	for {
		c, ok, err := src.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, c.Columns()[0].Ints...)
	}
	assert.Equal(t, []int64{1, 2, 3}, rows)
}
