// Package prometheus implements pkg/metrics's CacheMetrics with real
// Prometheus collectors, registering its constructor with pkg/metrics at
// init time so the facade never imports client_golang directly.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/shmcache/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
}

type cacheMetrics struct {
	opsTotal      *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	getTotal      *prometheus.CounterVec
	getValueBytes prometheus.Histogram
	evictions     prometheus.Counter
	itemsGauge    prometheus.Gauge
	usedBytes     prometheus.Gauge
}

// NewCacheMetrics creates a Prometheus-backed metrics.CacheMetrics. Returns
// nil if metrics.InitRegistry has not been called, so callers can wire its
// result straight into the cache facade unconditionally.
func NewCacheMetrics() metrics.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &cacheMetrics{
		opsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shmcache_operations_total",
				Help: "Total number of cache operations by kind and outcome.",
			},
			[]string{"op", "outcome"},
		),
		opDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shmcache_operation_duration_seconds",
				Help:    "Duration of cache operations in seconds, by kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		getTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shmcache_get_total",
				Help: "Total number of Get calls by hit/miss outcome.",
			},
			[]string{"outcome"},
		),
		getValueBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shmcache_get_value_bytes",
				Help:    "Distribution of value sizes returned by Get hits.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 10),
			},
		),
		evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "shmcache_evictions_total",
				Help: "Total number of chunks evicted to make room for a new value.",
			},
		),
		itemsGauge: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "shmcache_items",
				Help: "Number of live entries as of the last stats snapshot.",
			},
		),
		usedBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "shmcache_value_bytes_used",
				Help: "Value-area bytes in use as of the last stats snapshot.",
			},
		),
	}
}

func (m *cacheMetrics) ObserveOp(op string, duration time.Duration, outcome string) {
	m.opsTotal.WithLabelValues(op, outcome).Inc()
	m.opDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *cacheMetrics) ObserveGet(hit bool, duration time.Duration, valueBytes int) {
	outcome := "miss"
	if hit {
		outcome = "hit"
		m.getValueBytes.Observe(float64(valueBytes))
	}
	m.getTotal.WithLabelValues(outcome).Inc()
	m.opDuration.WithLabelValues("get").Observe(duration.Seconds())
}

func (m *cacheMetrics) RecordEviction() {
	m.evictions.Inc()
}

func (m *cacheMetrics) RecordOccupancy(items int, usedValueBytes int64) {
	m.itemsGauge.Set(float64(items))
	m.usedBytes.Set(float64(usedValueBytes))
}
