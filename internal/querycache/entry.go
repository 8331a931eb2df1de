package querycache

import (
	"sync/atomic"

	"github.com/castordb/castor/internal/column"
)

// Entry is a cached query result: the captured chunks plus a
// write-in-progress flag. Chunks are appended by exactly one writer; readers
// only observe them after the flag has transitioned to false, which the
// atomic store/load pair orders.
type Entry struct {
	header          column.Header
	chunks          []*column.Chunk
	weight          atomic.Int64
	writeInProgress atomic.Bool
}

func newEntry(header column.Header) *Entry {
	e := &Entry{header: header}
	e.writeInProgress.Store(true)
	return e
}

// Header returns the schema of the cached result.
func (e *Entry) Header() column.Header { return e.header }

// WriteInProgress reports whether a writer still owns the entry. While true,
// readers must treat the entry as absent.
func (e *Entry) WriteInProgress() bool { return e.writeInProgress.Load() }

// Weight returns the sum of allocated bytes across the entry's chunks.
func (e *Entry) Weight() int64 { return e.weight.Load() }

// appendChunk is called only by the owning writer.
func (e *Entry) appendChunk(c *column.Chunk) {
	e.chunks = append(e.chunks, c)
	e.weight.Add(c.AllocatedBytes())
}

// publish makes the entry readable. The transition is one-way.
func (e *Entry) publish() { e.writeInProgress.Store(false) }

// Chunks returns the captured chunks. Valid only after publish.
func (e *Entry) Chunks() []*column.Chunk { return e.chunks }
