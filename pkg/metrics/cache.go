package metrics

import "time"

// CacheMetrics observes shmcache facade operations. Implementations are
// optional: pass nil to any function below for zero overhead.
type CacheMetrics interface {
	// ObserveOp records one completed facade operation (get/set/delete/
	// add/replace/increment/decrement/exists) with its outcome.
	ObserveOp(op string, duration time.Duration, outcome string)

	// ObserveGet additionally records a hit/miss and the payload size on
	// a hit.
	ObserveGet(hit bool, duration time.Duration, valueBytes int)

	// RecordEviction records one chunk-store eviction triggered while
	// allocating room for a new value.
	RecordEviction()

	// RecordOccupancy records a stats() snapshot's item count and used
	// value-area bytes, for a periodic gauge refresh.
	RecordOccupancy(items int, usedValueBytes int64)
}

// NewCacheMetrics returns the registered Prometheus implementation, or nil
// if metrics are not enabled. Callers pass the nil result straight into
// shmcache.Cache, which treats a nil CacheMetrics as "don't observe".
func NewCacheMetrics() CacheMetrics {
	if !IsEnabled() || newPrometheusCacheMetrics == nil {
		return nil
	}
	return newPrometheusCacheMetrics()
}

// newPrometheusCacheMetrics is populated by pkg/metrics/prometheus's init,
// via RegisterCacheMetricsConstructor. The indirection keeps this package
// free of a client_golang import.
var newPrometheusCacheMetrics func() CacheMetrics

// RegisterCacheMetricsConstructor is called by pkg/metrics/prometheus's
// package init to install its constructor here.
func RegisterCacheMetricsConstructor(constructor func() CacheMetrics) {
	newPrometheusCacheMetrics = constructor
}

// ObserveOp is a nil-safe helper so call sites never need a nil check.
func ObserveOp(m CacheMetrics, op string, duration time.Duration, outcome string) {
	if m != nil {
		m.ObserveOp(op, duration, outcome)
	}
}

// ObserveGet is a nil-safe helper so call sites never need a nil check.
func ObserveGet(m CacheMetrics, hit bool, duration time.Duration, valueBytes int) {
	if m != nil {
		m.ObserveGet(hit, duration, valueBytes)
	}
}

// RecordEviction is a nil-safe helper so call sites never need a nil check.
func RecordEviction(m CacheMetrics) {
	if m != nil {
		m.RecordEviction()
	}
}

// RecordOccupancy is a nil-safe helper so call sites never need a nil check.
func RecordOccupancy(m CacheMetrics, items int, usedValueBytes int64) {
	if m != nil {
		m.RecordOccupancy(items, usedValueBytes)
	}
}
