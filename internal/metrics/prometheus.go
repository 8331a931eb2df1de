// Package metrics holds the Prometheus instrumentation for the query path
// and the query result cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is
// valid and records nothing, so library code can stay unconditional.
type Metrics struct {
	// Query path metrics
	QueriesTotal    prometheus.Counter
	QueryErrors     prometheus.Counter
	QueryDuration   prometheus.Histogram
	QueryResultRows prometheus.Histogram

	// Query cache metrics
	QueryCacheHitsTotal         prometheus.Counter
	QueryCacheMissesTotal       prometheus.Counter
	QueryCacheEvictionsTotal    prometheus.Counter
	QueryCacheWritesTotal       prometheus.Counter
	QueryCacheWriteRejectsTotal prometheus.Counter
	QueryCacheSizeBytes         prometheus.Gauge
	QueryCacheEntriesTotal      prometheus.Gauge
}

// NewMetrics creates and registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QueriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castor",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of executed queries",
		}),
		QueryErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castor",
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Total number of failed queries",
		}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "castor",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Histogram of query execution durations",
			Buckets:   prometheus.DefBuckets,
		}),
		QueryResultRows: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "castor",
			Subsystem: "query",
			Name:      "result_rows",
			Help:      "Histogram of result row counts",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),

		QueryCacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castor",
			Subsystem: "query_cache",
			Name:      "hits_total",
			Help:      "Total number of query cache hits",
		}),
		QueryCacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castor",
			Subsystem: "query_cache",
			Name:      "misses_total",
			Help:      "Total number of query cache misses",
		}),
		QueryCacheEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castor",
			Subsystem: "query_cache",
			Name:      "evictions_total",
			Help:      "Total number of query cache evictions",
		}),
		QueryCacheWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castor",
			Subsystem: "query_cache",
			Name:      "writes_total",
			Help:      "Total number of published query cache entries",
		}),
		QueryCacheWriteRejectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castor",
			Subsystem: "query_cache",
			Name:      "write_rejects_total",
			Help:      "Total number of cache writes rejected by the per-entry size ceiling",
		}),
		QueryCacheSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "castor",
			Subsystem: "query_cache",
			Name:      "size_bytes",
			Help:      "Current query cache size in bytes",
		}),
		QueryCacheEntriesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "castor",
			Subsystem: "query_cache",
			Name:      "entries_total",
			Help:      "Current number of entries in the query cache",
		}),
	}
}

// RecordQuery records a completed query.
func (m *Metrics) RecordQuery(duration float64, rows int) {
	if m == nil {
		return
	}
	m.QueriesTotal.Inc()
	m.QueryDuration.Observe(duration)
	m.QueryResultRows.Observe(float64(rows))
}

// RecordQueryError records a failed query.
func (m *Metrics) RecordQueryError() {
	if m == nil {
		return
	}
	m.QueryErrors.Inc()
}

// RecordQueryCacheHit records a query cache hit.
func (m *Metrics) RecordQueryCacheHit() {
	if m == nil {
		return
	}
	m.QueryCacheHitsTotal.Inc()
}

// RecordQueryCacheMiss records a query cache miss.
func (m *Metrics) RecordQueryCacheMiss() {
	if m == nil {
		return
	}
	m.QueryCacheMissesTotal.Inc()
}

// RecordQueryCacheEviction records a query cache eviction.
func (m *Metrics) RecordQueryCacheEviction() {
	if m == nil {
		return
	}
	m.QueryCacheEvictionsTotal.Inc()
}

// RecordQueryCacheWrite records a published cache entry.
func (m *Metrics) RecordQueryCacheWrite() {
	if m == nil {
		return
	}
	m.QueryCacheWritesTotal.Inc()
}

// RecordQueryCacheWriteReject records a cache write rejected by the per-entry
// ceiling.
func (m *Metrics) RecordQueryCacheWriteReject() {
	if m == nil {
		return
	}
	m.QueryCacheWriteRejectsTotal.Inc()
}

// UpdateQueryCacheSize updates the cache size gauges.
func (m *Metrics) UpdateQueryCacheSize(bytes int64, entries int) {
	if m == nil {
		return
	}
	m.QueryCacheSizeBytes.Set(float64(bytes))
	m.QueryCacheEntriesTotal.Set(float64(entries))
}
