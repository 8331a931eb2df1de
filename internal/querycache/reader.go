package querycache

import (
	"github.com/castordb/castor/internal/column"
	"github.com/castordb/castor/internal/pipeline"
)

// Reader is the scoped consumer-side handle. An empty reader means the key is
// absent or still being written; a non-empty one holds a replayable source
// over the complete result.
//
// The chunks are concatenated eagerly into one combined chunk: downstream
// pipelines want a source of successive chunks, and one allocation spike buys
// the simplest possible source. The emitted rows equal the original chunk
// sequence in order.
type Reader struct {
	source *pipeline.SingleChunkSource
	taken  bool
}

func newReader(entry *Entry, ok bool) *Reader {
	if !ok || entry.WriteInProgress() {
		return &Reader{}
	}
	combined := column.EmptyChunk(entry.Header())
	for _, c := range entry.Chunks() {
		if err := combined.AppendRows(c); err != nil {
			// A stored chunk can only mismatch its own entry header through
			// a caller bug; treat the entry as unreadable.
			return &Reader{}
		}
	}
	return &Reader{source: pipeline.NewSingleChunkSource(entry.Header(), combined)}
}

// HasResult reports whether the reader holds a complete cached result.
func (r *Reader) HasResult() bool { return r.source != nil }

// Source returns the replay source. It may be taken at most once; subsequent
// calls return nil.
func (r *Reader) Source() pipeline.Source {
	if r.source == nil || r.taken {
		return nil
	}
	r.taken = true
	return r.source
}
