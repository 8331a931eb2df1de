// Package querycache memoizes materialized read-query results so identical
// queries can be answered without re-executing the pipeline. It owns a
// weight-bounded LRU store of published results, a background worker that
// removes entries a configurable duration after they become readable, and the
// scoped writer/reader handles the engine interposes on its pipelines.
package querycache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/castordb/castor/internal/metrics"
)

// Config holds query cache configuration.
type Config struct {
	// MaxTotalBytes bounds the cumulative weight of all stored entries.
	MaxTotalBytes int64
	// MaxEntryBytes is the default per-entry ceiling; the
	// max_query_cache_entry_size setting overrides it per query.
	MaxEntryBytes int64
	// EntryPutTimeout is the default lifetime of an entry after it becomes
	// readable; the query_cache_entry_put_timeout setting overrides it.
	EntryPutTimeout time.Duration
}

// QueryCache is the facade the engine talks to. It owns the store, the
// removal scheduler and the scheduler's worker goroutine, and hands out the
// per-execution writer and reader handles.
type QueryCache struct {
	cfg       Config
	store     *Store
	scheduler *Scheduler
	logger    *zap.Logger
	metrics   *metrics.Metrics

	timesMu       sync.Mutex
	timesExecuted map[uint64][]*keyCount

	liveWriters atomic.Int64
	closeOnce   sync.Once
	workerDone  chan struct{}
}

type keyCount struct {
	key   Key
	count uint64
}

func entryWeight(e *Entry) int64 { return e.Weight() }

// New creates the cache and starts its background removal worker. m may be
// nil.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	qc := &QueryCache{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		timesExecuted: make(map[uint64][]*keyCount),
		workerDone:    make(chan struct{}),
	}
	qc.store = NewStore(cfg.MaxTotalBytes, entryWeight, func(*Entry) {
		m.RecordQueryCacheEviction()
	})
	qc.scheduler = NewScheduler(logger)

	go func() {
		qc.scheduler.Run(qc.store)
		close(qc.workerDone)
	}()

	logger.Info("query cache started",
		zap.Int64("max_total_bytes", cfg.MaxTotalBytes),
		zap.Int64("max_entry_bytes", cfg.MaxEntryBytes),
		zap.Duration("entry_put_timeout", cfg.EntryPutTimeout))
	return qc
}

// TryPutInCache returns a writer handle for key. The handle that actually
// installed the (empty, write-in-progress) entry gets write rights; handles
// that found an existing entry get none and silently drop chunks. Exclusion
// of concurrent writers comes from the store's atomic GetOrSet plus the
// entry's write-in-progress flag; no per-key locks exist.
func (q *QueryCache) TryPutInCache(key Key) *Writer {
	entry, inserted := q.store.GetOrSet(key, func() *Entry {
		return newEntry(key.Header)
	})
	w := &Writer{
		cache:         q,
		key:           key,
		entry:         entry,
		canInsert:     inserted,
		maxEntryBytes: key.Settings.MaxEntrySizeOr(q.cfg.MaxEntryBytes),
		putTimeout:    key.Settings.EntryPutTimeoutOr(q.cfg.EntryPutTimeout),
	}
	if inserted {
		q.liveWriters.Add(1)
	}
	return w
}

// TryReadFromCache returns a reader handle for key. The reader is empty when
// the key is absent or its entry is still being written.
func (q *QueryCache) TryReadFromCache(key Key) *Reader {
	r := newReader(q.store.Get(key))
	if r.HasResult() {
		q.metrics.RecordQueryCacheHit()
	} else {
		q.metrics.RecordQueryCacheMiss()
	}
	return r
}

// ContainsResult reports whether a complete result for key is present. The
// answer is advisory; it may race with eviction.
func (q *QueryCache) ContainsResult(key Key) bool {
	entry, ok := q.store.Contains(key)
	return ok && !entry.WriteInProgress()
}

// RecordQueryRun increments and returns the execution count for key. The
// counter is a primitive; whether it gates caching is the engine's policy.
func (q *QueryCache) RecordQueryRun(key Key) uint64 {
	hash := key.Hash()

	q.timesMu.Lock()
	defer q.timesMu.Unlock()

	for _, kc := range q.timesExecuted[hash] {
		if kc.key.Equal(key) {
			kc.count++
			return kc.count
		}
	}
	q.timesExecuted[hash] = append(q.timesExecuted[hash], &keyCount{key: key, count: 1})
	return 1
}

// Reset clears all cached entries.
func (q *QueryCache) Reset() {
	q.store.Reset()
	q.updateSizeMetrics()
}

// TotalWeight returns the cumulative weight of stored entries.
func (q *QueryCache) TotalWeight() int64 { return q.store.TotalWeight() }

// Len returns the number of stored entries.
func (q *QueryCache) Len() int { return q.store.Len() }

// Close stops the removal worker and joins it. All writer handles must have
// been released before Close; a remaining one indicates a caller bug and is
// logged. Idempotent.
func (q *QueryCache) Close() error {
	q.closeOnce.Do(func() {
		if n := q.liveWriters.Load(); n > 0 {
			q.logger.Warn("closing query cache with live writer handles",
				zap.Int64("writers", n))
		}
		q.scheduler.Stop()
		<-q.workerDone
		q.logger.Info("query cache stopped")
	})
	return nil
}

func (q *QueryCache) writerDone() {
	q.liveWriters.Add(-1)
	q.updateSizeMetrics()
}

func (q *QueryCache) updateSizeMetrics() {
	q.metrics.UpdateQueryCacheSize(q.store.TotalWeight(), q.store.Len())
}
