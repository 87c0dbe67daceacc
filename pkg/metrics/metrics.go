// Package metrics defines the instrumentation surface for the VM
// orchestrator and governance core, and wires it to Prometheus.
//
// Components depend only on the interfaces in this package (VMMetrics,
// GovernanceMetrics), never on prometheus/client_golang directly. The
// concrete implementations live in pkg/metrics/prometheus and register
// themselves with this package via the RegisterXConstructor functions,
// mirroring the teacher's cache-metrics indirection: it lets a caller
// request metrics without importing prometheus, and lets metrics stay a
// true no-op (nil interface) when collection is disabled.
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
// registry used by every constructor in this package. Call once at
// startup before any NewVMMetrics/NewGovernanceMetrics call.
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
