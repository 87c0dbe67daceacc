package metrics

import "time"

// VMMetrics instruments the orchestrator's run loop: steps executed,
// heap/environment occupancy, and GC reclaim counts. A disabled VMMetrics
// is a nil interface; the package-level Record* helpers below accept it,
// so callers pass it without branching.
type VMMetrics interface {
	RecordSteps(count int64)
	RecordRunCompleted(duration time.Duration, halted bool)
	RecordHeapSize(cells int)
	RecordEnvSize(bindings int)
	RecordGCReclaim(cellsFreed int)
}

// newPrometheusVMMetrics is supplied by pkg/metrics/prometheus during its
// package init, avoiding an import cycle between metrics and its own
// prometheus-backed implementation.
var newPrometheusVMMetrics func() VMMetrics

// RegisterVMMetricsConstructor registers the Prometheus VM metrics
// constructor. Called by pkg/metrics/prometheus/vm.go's init.
func RegisterVMMetricsConstructor(constructor func() VMMetrics) {
	newPrometheusVMMetrics = constructor
}

// NewVMMetrics returns a VMMetrics backed by the active registry, or nil
// if metrics are disabled (zero overhead for the orchestrator's hot loop).
func NewVMMetrics() VMMetrics {
	if !IsEnabled() || newPrometheusVMMetrics == nil {
		return nil
	}
	return newPrometheusVMMetrics()
}

// RecordSteps records the number of VM Step transitions executed by a run.
func RecordSteps(m VMMetrics, count int64) {
	if m != nil {
		m.RecordSteps(count)
	}
}

// RecordRunCompleted records the wall-clock duration of an orchestrated
// run and whether the VM halted (as opposed to exhausting its step budget).
func RecordRunCompleted(m VMMetrics, duration time.Duration, halted bool) {
	if m != nil {
		m.RecordRunCompleted(duration, halted)
	}
}

// RecordHeapSize records the number of live heap cells after a run.
func RecordHeapSize(m VMMetrics, cells int) {
	if m != nil {
		m.RecordHeapSize(cells)
	}
}

// RecordEnvSize records the number of bindings across the environment chain.
func RecordEnvSize(m VMMetrics, bindings int) {
	if m != nil {
		m.RecordEnvSize(bindings)
	}
}

// RecordGCReclaim records the number of heap cells freed by a mark-sweep pass.
func RecordGCReclaim(m VMMetrics, cellsFreed int) {
	if m != nil {
		m.RecordGCReclaim(cellsFreed)
	}
}
