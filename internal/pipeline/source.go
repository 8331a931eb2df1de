// Package pipeline defines the chunk source abstraction query execution is
// built from, plus the replay source the query cache hands back on a hit.
package pipeline

import (
	"context"

	"github.com/castordb/castor/internal/column"
)

// Source produces successive chunks sharing one header. Next returns
// (nil, false, nil) once the source is exhausted.
type Source interface {
	Header() column.Header
	Next(ctx context.Context) (*column.Chunk, bool, error)
}

// SingleChunkSource replays one pre-materialized chunk and then reports
// exhaustion. It is the source shape the query cache produces.
type SingleChunkSource struct {
	header column.Header
	chunk  *column.Chunk
	done   bool
}

// NewSingleChunkSource wraps chunk in a one-shot source.
func NewSingleChunkSource(header column.Header, chunk *column.Chunk) *SingleChunkSource {
	return &SingleChunkSource{header: header, chunk: chunk}
}

// Header returns the source's schema.
func (s *SingleChunkSource) Header() column.Header { return s.header }

// Next emits the chunk on the first call, then reports exhaustion.
func (s *SingleChunkSource) Next(ctx context.Context) (*column.Chunk, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.done {
		return nil, false, nil
	}
	s.done = true
	return s.chunk, true, nil
}

// SliceSource emits a fixed sequence of chunks. Tests use it.
type SliceSource struct {
	header column.Header
	chunks []*column.Chunk
	pos    int
}

// NewSliceSource wraps chunks in a source.
func NewSliceSource(header column.Header, chunks []*column.Chunk) *SliceSource {
	return &SliceSource{header: header, chunks: chunks}
}

// Header returns the source's schema.
func (s *SliceSource) Header() column.Header { return s.header }

// Next emits the next chunk in sequence.
func (s *SliceSource) Next(ctx context.Context) (*column.Chunk, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.chunks) {
		return nil, false, nil
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, true, nil
}
