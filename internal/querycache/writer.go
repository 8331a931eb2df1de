package querycache

import (
	"time"

	"go.uber.org/zap"

	"github.com/castordb/castor/internal/column"
)

// Writer is the scoped producer-side handle for one query execution. At most
// one writer per key holds write rights at a time; the losers of the race
// silently drop everything. A writer is used from a single goroutine and must
// end with exactly one Release or Cancel.
type Writer struct {
	cache         *QueryCache
	key           Key
	entry         *Entry
	canInsert     bool
	released      bool
	maxEntryBytes int64
	putTimeout    time.Duration
}

// CanWrite reports whether this handle acquired write rights, i.e. whether it
// created the entry. The engine uses it to decide whether forwarding chunks
// is worthwhile.
func (w *Writer) CanWrite() bool { return w.canInsert }

// InsertChunk captures one produced chunk. The chunk is cloned; the pipeline
// keeps ownership of what it forwarded. If the capture pushes the entry over
// the per-entry ceiling, write rights are dropped and the partial entry is
// evicted; every further insert is a no-op.
func (w *Writer) InsertChunk(chunk *column.Chunk) {
	if !w.canInsert || w.released {
		return
	}
	if !chunk.Header().Equal(w.entry.Header()) {
		w.cache.logger.Warn("dropping chunk with mismatched header",
			zap.String("expected", w.entry.Header().String()),
			zap.String("got", chunk.Header().String()))
		return
	}
	w.entry.appendChunk(chunk.Clone())
	if w.entry.Weight() > w.maxEntryBytes {
		w.canInsert = false
		w.cache.store.Remove(w.key)
		w.cache.writerDone()
		w.cache.metrics.RecordQueryCacheWriteReject()
		w.cache.logger.Debug("entry exceeded per-entry ceiling, evicted",
			zap.Int64("weight", w.entry.Weight()),
			zap.Int64("max_entry_bytes", w.maxEntryBytes))
	}
}

// Cancel marks the entry unpublishable and removes it from the store. The
// engine must call it when execution fails mid-stream; a canceled entry is
// never observed by readers. Safe to call more than once and after Release is
// a no-op.
func (w *Writer) Cancel() {
	if w.released {
		return
	}
	w.released = true
	if !w.canInsert {
		return
	}
	w.canInsert = false
	// The write-in-progress flag stays set forever, so a reader racing the
	// removal still treats the entry as absent.
	w.cache.store.Remove(w.key)
	w.cache.writerDone()
	w.cache.logger.Debug("cache write canceled")
}

// Release publishes the entry and schedules its timed removal. Publication
// happens before scheduling, so the scheduler can never fire for an entry
// readers cannot yet see. Idempotent.
func (w *Writer) Release() {
	if w.released {
		return
	}
	w.released = true
	if !w.canInsert {
		return
	}
	w.canInsert = false
	w.entry.publish()
	// Refresh the store's weight accounting now that the entry is complete;
	// this is also what triggers LRU eviction of older entries.
	w.cache.store.Set(w.key, w.entry)
	w.cache.scheduler.Schedule(w.putTimeout, w.key)
	w.cache.writerDone()
	w.cache.metrics.RecordQueryCacheWrite()
	w.cache.logger.Debug("cache entry published",
		zap.Int64("weight", w.entry.Weight()),
		zap.Duration("put_timeout", w.putTimeout))
}
