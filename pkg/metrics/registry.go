// Package metrics defines cache-observability interfaces and an
// enable/disable switch, independent of any concrete metrics backend.
// pkg/metrics/prometheus supplies the only current implementation and
// registers its constructor here at init time, the same
// indirection-via-constructor-registration the teacher uses to let
// pkg/shmcache depend on pkg/metrics without ever importing
// client_golang directly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and creates the Prometheus
// registry metrics are registered against. Must be called before any
// NewCacheMetrics call that should produce a non-nil instance.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
	registry = prometheus.NewRegistry()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
