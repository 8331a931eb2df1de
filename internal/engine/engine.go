// Package engine executes read queries against in-memory columnar tables and
// interposes the query result cache on their pipelines: a complete cached
// result replaces the scan as a single-chunk source, and cache-worthy
// executions stream their output chunks into a writer handle as a side
// effect.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/castordb/castor/internal/column"
	"github.com/castordb/castor/internal/metrics"
	"github.com/castordb/castor/internal/pipeline"
	"github.com/castordb/castor/internal/querycache"
	"github.com/castordb/castor/internal/settings"
	"github.com/castordb/castor/internal/sql"
)

// Config holds engine configuration.
type Config struct {
	// BatchSize is the number of rows per produced chunk.
	BatchSize int
	// MinQueryRuns gates cache writes: a query's result is captured only
	// from its MinQueryRuns-th execution on. Zero caches on the first run.
	MinQueryRuns uint64
}

// Result is a fully drained query result.
type Result struct {
	QueryID uuid.UUID
	Header  column.Header
	Chunks  []*column.Chunk
	Cached  bool
}

// Rows returns the total row count across the result's chunks.
func (r *Result) Rows() int {
	n := 0
	for _, c := range r.Chunks {
		n += c.NumRows()
	}
	return n
}

// Engine executes queries. The cache may be nil, which disables caching
// entirely.
type Engine struct {
	cfg     Config
	cache   *querycache.QueryCache
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	tables map[string]*Table
}

// New creates an engine. cache and m may be nil.
func New(cfg Config, cache *querycache.QueryCache, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8192
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		cache:   cache,
		logger:  logger,
		metrics: m,
		tables:  make(map[string]*Table),
	}
}

// RegisterTable makes a table queryable. Re-registering a name replaces it.
func (e *Engine) RegisterTable(t *Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[t.Name] = t
}

func (e *Engine) table(name string) (*Table, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	return t, ok
}

// Execute parses and runs one read query for the given user under the given
// settings, consulting the query cache on the way in and feeding it on the
// way out.
func (e *Engine) Execute(ctx context.Context, query string, set settings.Settings, user string) (*Result, error) {
	start := time.Now()
	queryID := uuid.New()
	log := e.logger.With(zap.String("query_id", queryID.String()))

	res, err := e.execute(ctx, queryID, query, set, user, log)
	if err != nil {
		e.metrics.RecordQueryError()
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	e.metrics.RecordQuery(time.Since(start).Seconds(), res.Rows())
	log.Debug("query finished",
		zap.Int("rows", res.Rows()),
		zap.Bool("cached", res.Cached),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func (e *Engine) execute(ctx context.Context, queryID uuid.UUID, query string, set settings.Settings, user string, log *zap.Logger) (*Result, error) {
	stmt, err := sql.Parse(query)
	if err != nil {
		return nil, err
	}
	t, ok := e.table(stmt.Table())
	if !ok {
		return nil, fmt.Errorf("unknown table %q", stmt.Table())
	}
	header, err := t.Header(stmt.Columns())
	if err != nil {
		return nil, err
	}

	if e.cache == nil {
		source, err := newTableSource(t, stmt, e.cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		return e.drain(ctx, queryID, header, source, nil, false)
	}

	key := querycache.Key{Tree: stmt, Header: header, Settings: set, User: user}
	runs := e.cache.RecordQueryRun(key)

	if reader := e.cache.TryReadFromCache(key); reader.HasResult() {
		log.Debug("serving query from cache")
		return e.drain(ctx, queryID, header, reader.Source(), nil, true)
	}

	source, err := newTableSource(t, stmt, e.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	var writer *querycache.Writer
	if runs >= e.cfg.MinQueryRuns {
		writer = e.cache.TryPutInCache(key)
	}
	return e.drain(ctx, queryID, header, source, writer, false)
}

// drain pulls the source dry, forwarding every chunk to the writer when one
// holds write rights. A mid-stream failure cancels the writer so a partial
// result is never published; success releases it, which publishes.
func (e *Engine) drain(ctx context.Context, queryID uuid.UUID, header column.Header, source pipeline.Source, writer *querycache.Writer, cached bool) (*Result, error) {
	res := &Result{QueryID: queryID, Header: header, Cached: cached}
	for {
		chunk, ok, err := source.Next(ctx)
		if err != nil {
			if writer != nil {
				writer.Cancel()
			}
			return nil, err
		}
		if !ok {
			break
		}
		if writer != nil && writer.CanWrite() {
			writer.InsertChunk(chunk)
		}
		res.Chunks = append(res.Chunks, chunk)
	}
	if writer != nil {
		writer.Release()
	}
	return res, nil
}
