package querycache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castordb/castor/internal/column"
	"github.com/castordb/castor/internal/querycache"
	"github.com/castordb/castor/internal/settings"
)

type fakeTree struct{ lo, hi uint64 }

func (t fakeTree) TreeHash() [2]uint64 { return [2]uint64{t.lo, t.hi} }

var testHeader = column.Header{{Name: "value", Type: column.TypeInt64}}

func key(id uint64) querycache.Key {
	return querycache.Key{
		Tree:     fakeTree{lo: id, hi: ^id},
		Header:   testHeader,
		Settings: settings.Settings{},
	}
}

func intChunk(t *testing.T, values ...int64) *column.Chunk {
	t.Helper()
	chunk, err := column.NewChunk([]*column.Column{
		column.NewInt64Column("value", values),
	})
	require.NoError(t, err)
	return chunk
}

func chunkOfBytes(t *testing.T, bytes int64) *column.Chunk {
	t.Helper()
	return intChunk(t, make([]int64, bytes/8)...)
}

func newCache(t *testing.T, cfg querycache.Config) *querycache.QueryCache {
	t.Helper()
	qc := querycache.New(cfg, nil, nil)
	t.Cleanup(func() { qc.Close() })
	return qc
}

// drainRows pulls every row out of a reader's replay source.
func drainRows(t *testing.T, r *querycache.Reader) []int64 {
	t.Helper()
	src := r.Source()
	require.NotNil(t, src)

	var rows []int64
	for {
		chunk, ok, err := src.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return rows
		}
		rows = append(rows, chunk.Columns()[0].Ints...)
	}
}

func defaultConfig() querycache.Config {
	return querycache.Config{
		MaxTotalBytes:   1 << 20,
		MaxEntryBytes:   1 << 20,
		EntryPutTimeout: 10 * time.Second,
	}
}

func TestSimpleHit(t *testing.T) {
	qc := newCache(t, defaultConfig())
	k := key(1)

	w := qc.TryPutInCache(k)
	require.True(t, w.CanWrite())
	w.InsertChunk(intChunk(t, 1, 2, 3))
	w.InsertChunk(intChunk(t, 4, 5))
	w.Release()

	r := qc.TryReadFromCache(k)
	require.True(t, r.HasResult())
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, drainRows(t, r))
}

func TestReaderMissesAbsentKey(t *testing.T) {
	qc := newCache(t, defaultConfig())

	r := qc.TryReadFromCache(key(1))
	assert.False(t, r.HasResult())
	assert.Nil(t, r.Source())
}

func TestReaderIgnoresWriteInProgress(t *testing.T) {
	qc := newCache(t, defaultConfig())
	k := key(1)

	w := qc.TryPutInCache(k)
	require.True(t, w.CanWrite())
	w.InsertChunk(intChunk(t, 1, 2))

	// Not yet released: the entry must look absent.
	assert.False(t, qc.TryReadFromCache(k).HasResult())
	assert.False(t, qc.ContainsResult(k))

	w.Release()
	assert.True(t, qc.TryReadFromCache(k).HasResult())
	assert.True(t, qc.ContainsResult(k))
}

func TestSourceTakenAtMostOnce(t *testing.T) {
	qc := newCache(t, defaultConfig())
	k := key(1)

	w := qc.TryPutInCache(k)
	w.InsertChunk(intChunk(t, 1))
	w.Release()

	r := qc.TryReadFromCache(k)
	require.NotNil(t, r.Source())
	assert.Nil(t, r.Source())
}

func TestConcurrentWritersCollapse(t *testing.T) {
	qc := newCache(t, defaultConfig())
	k := key(1)

	const writers = 8
	handles := make([]*querycache.Writer, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := qc.TryPutInCache(k)
			if w.CanWrite() {
				w.InsertChunk(intChunk(t, int64(i)*10+1, int64(i)*10+2))
			} else {
				// Losers' inserts must be dropped silently.
				w.InsertChunk(intChunk(t, 999))
			}
			handles[i] = w
		}(i)
	}
	wg.Wait()

	winners := 0
	var winner int
	for i, w := range handles {
		if w.CanWrite() {
			winners++
			winner = i
		}
	}
	require.Equal(t, 1, winners, "exactly one writer may hold write rights")

	for _, w := range handles {
		w.Release()
	}

	r := qc.TryReadFromCache(k)
	require.True(t, r.HasResult())
	assert.Equal(t, []int64{int64(winner)*10 + 1, int64(winner)*10 + 2}, drainRows(t, r))
}

func TestPerEntryOverflow(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxEntryBytes = 500
	qc := newCache(t, cfg)
	k := key(1)

	w := qc.TryPutInCache(k)
	require.True(t, w.CanWrite())

	w.InsertChunk(chunkOfBytes(t, 300))
	assert.True(t, w.CanWrite())

	w.InsertChunk(chunkOfBytes(t, 300))
	assert.False(t, w.CanWrite())
	assert.False(t, qc.ContainsResult(k))

	w.Release()
	assert.False(t, qc.ContainsResult(k))
	assert.False(t, qc.TryReadFromCache(k).HasResult())
}

func TestEntryWeightBoundaries(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxEntryBytes = 800
	qc := newCache(t, cfg)

	// Exactly at the ceiling: publishes.
	exact := key(1)
	w := qc.TryPutInCache(exact)
	w.InsertChunk(chunkOfBytes(t, 800))
	require.True(t, w.CanWrite())
	w.Release()
	assert.True(t, qc.ContainsResult(exact))

	// Eight bytes over (one more row): evicted.
	over := key(2)
	w = qc.TryPutInCache(over)
	w.InsertChunk(chunkOfBytes(t, 808))
	assert.False(t, w.CanWrite())
	w.Release()
	assert.False(t, qc.ContainsResult(over))
}

func TestPerEntryCeilingFromSettings(t *testing.T) {
	qc := newCache(t, defaultConfig())

	k := key(1)
	k.Settings = settings.Settings{settings.MaxEntrySize: "500"}

	w := qc.TryPutInCache(k)
	w.InsertChunk(chunkOfBytes(t, 600))
	assert.False(t, w.CanWrite())
	w.Release()
	assert.False(t, qc.ContainsResult(k))
}

func TestScheduledExpiry(t *testing.T) {
	qc := newCache(t, defaultConfig())

	k := key(1)
	k.Settings = settings.Settings{settings.EntryPutTimeout: "200"}

	w := qc.TryPutInCache(k)
	w.InsertChunk(intChunk(t, 1))
	w.Release()

	// Well within the lifetime: hit.
	assert.True(t, qc.TryReadFromCache(k).HasResult())

	// Well past it: miss.
	require.Eventually(t, func() bool {
		return !qc.ContainsResult(k)
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, qc.TryReadFromCache(k).HasResult())
}

func TestCancelNeverPublishes(t *testing.T) {
	qc := newCache(t, defaultConfig())
	k := key(1)

	w := qc.TryPutInCache(k)
	require.True(t, w.CanWrite())
	w.InsertChunk(intChunk(t, 1, 2))
	w.Cancel()

	assert.False(t, qc.ContainsResult(k))
	assert.False(t, qc.TryReadFromCache(k).HasResult())

	// Release after Cancel is a no-op.
	w.Release()
	assert.False(t, qc.ContainsResult(k))

	// The key is free for a fresh writer.
	w2 := qc.TryPutInCache(k)
	assert.True(t, w2.CanWrite())
	w2.InsertChunk(intChunk(t, 7))
	w2.Release()

	r := qc.TryReadFromCache(k)
	require.True(t, r.HasResult())
	assert.Equal(t, []int64{7}, drainRows(t, r))
}

func TestInsertAfterReleaseDropped(t *testing.T) {
	qc := newCache(t, defaultConfig())
	k := key(1)

	w := qc.TryPutInCache(k)
	w.InsertChunk(intChunk(t, 1))
	w.Release()
	w.InsertChunk(intChunk(t, 2))
	w.Release()

	r := qc.TryReadFromCache(k)
	require.True(t, r.HasResult())
	assert.Equal(t, []int64{1}, drainRows(t, r))
}

func TestLRUEvictionUnderPressure(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxTotalBytes = 1000
	qc := newCache(t, cfg)

	publish := func(k querycache.Key, bytes int64) {
		w := qc.TryPutInCache(k)
		require.True(t, w.CanWrite())
		w.InsertChunk(chunkOfBytes(t, bytes))
		w.Release()
	}

	a, b, c := key(1), key(2), key(3)
	publish(a, 400)
	publish(b, 400)
	publish(c, 400)

	assert.False(t, qc.ContainsResult(a))
	assert.True(t, qc.ContainsResult(b))
	assert.True(t, qc.ContainsResult(c))
	assert.LessOrEqual(t, qc.TotalWeight(), int64(1000))
}

func TestTotalBudgetEvictsOlderEntry(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxTotalBytes = 1000
	cfg.MaxEntryBytes = 1000
	qc := newCache(t, cfg)
	k := key(1)

	w := qc.TryPutInCache(k)
	w.InsertChunk(chunkOfBytes(t, 960))
	// Within the per-entry ceiling but the combined chunk plus the store
	// budget cannot hold more than this one entry.
	w.Release()
	assert.True(t, qc.ContainsResult(k))

	big := key(2)
	w = qc.TryPutInCache(big)
	w.InsertChunk(chunkOfBytes(t, 960))
	w.Release()

	// Both fit individually; together they overflow, so the older one went.
	assert.False(t, qc.ContainsResult(k))
	assert.True(t, qc.ContainsResult(big))
}

func TestReaderSnapshotIsolation(t *testing.T) {
	qc := newCache(t, defaultConfig())
	k := key(1)

	w := qc.TryPutInCache(k)
	w.InsertChunk(intChunk(t, 1, 2, 3))
	w.Release()

	r := qc.TryReadFromCache(k)
	require.True(t, r.HasResult())

	// Evict while the reader holds its handle.
	qc.Reset()
	assert.False(t, qc.ContainsResult(k))

	assert.Equal(t, []int64{1, 2, 3}, drainRows(t, r))
}

func TestEmptyResultIsCacheable(t *testing.T) {
	qc := newCache(t, defaultConfig())
	k := key(1)

	w := qc.TryPutInCache(k)
	require.True(t, w.CanWrite())
	w.Release()

	r := qc.TryReadFromCache(k)
	require.True(t, r.HasResult())
	assert.Empty(t, drainRows(t, r))
}

func TestRecordQueryRun(t *testing.T) {
	qc := newCache(t, defaultConfig())

	k := key(1)
	assert.Equal(t, uint64(1), qc.RecordQueryRun(k))
	assert.Equal(t, uint64(2), qc.RecordQueryRun(k))

	// A different user is a different key.
	other := key(1)
	other.User = "alice"
	assert.Equal(t, uint64(1), qc.RecordQueryRun(other))

	// Different settings are a different key too.
	tuned := key(1)
	tuned.Settings = settings.Settings{"max_threads": "8"}
	assert.Equal(t, uint64(1), qc.RecordQueryRun(tuned))

	assert.Equal(t, uint64(3), qc.RecordQueryRun(k))
}

func TestKeyIdentity(t *testing.T) {
	a := key(1)
	b := key(1)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.True(t, a.Equal(b))

	c := key(2)
	assert.False(t, a.Equal(c))

	d := key(1)
	d.User = "alice"
	assert.False(t, a.Equal(d))
	assert.NotEqual(t, a.Hash(), d.Hash())

	e := key(1)
	e.Header = column.Header{{Name: "other", Type: column.TypeString}}
	assert.False(t, a.Equal(e))
	assert.NotEqual(t, a.Hash(), e.Hash())

	f := key(1)
	f.Settings = settings.Settings{"max_threads": "8"}
	assert.False(t, a.Equal(f))
	assert.NotEqual(t, a.Hash(), f.Hash())
}

func TestCloseIdempotent(t *testing.T) {
	qc := querycache.New(defaultConfig(), nil, nil)
	require.NoError(t, qc.Close())
	require.NoError(t, qc.Close())
}

func TestWeightInvariantUnderConcurrency(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxTotalBytes = 4096
	qc := newCache(t, cfg)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				k := key(uint64(g*1000 + i))
				w := qc.TryPutInCache(k)
				w.InsertChunk(chunkOfBytes(t, 512))
				w.Release()
				qc.TryReadFromCache(k)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, qc.TotalWeight(), int64(4096))
}
