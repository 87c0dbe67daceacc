package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chronolab/chronovm/pkg/metrics"
)

func init() {
	metrics.RegisterVMMetricsConstructor(newVMMetrics)
}

type vmMetrics struct {
	steps          prometheus.Counter
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	heapSize       prometheus.Gauge
	envSize        prometheus.Gauge
	gcReclaimed    prometheus.Counter
}

func newVMMetrics() metrics.VMMetrics {
	reg := metrics.GetRegistry()

	return &vmMetrics{
		steps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "chronovm_vm_steps_total",
			Help: "Total number of VM Step transitions executed.",
		}),
		runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chronovm_vm_runs_total",
			Help: "Total number of orchestrated runs, labeled by whether the VM halted.",
		}, []string{"halted"}),
		runDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "chronovm_vm_run_duration_seconds",
			Help:    "Wall-clock duration of an orchestrated run.",
			Buckets: prometheus.DefBuckets,
		}),
		heapSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "chronovm_vm_heap_cells",
			Help: "Number of live heap cells after the most recent run.",
		}),
		envSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "chronovm_vm_env_bindings",
			Help: "Number of bindings across the environment chain after the most recent run.",
		}),
		gcReclaimed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "chronovm_vm_gc_reclaimed_cells_total",
			Help: "Total number of heap cells freed by mark-sweep GC passes.",
		}),
	}
}

func (m *vmMetrics) RecordSteps(count int64) {
	m.steps.Add(float64(count))
}

func (m *vmMetrics) RecordRunCompleted(duration time.Duration, halted bool) {
	label := "false"
	if halted {
		label = "true"
	}
	m.runs.WithLabelValues(label).Inc()
	m.runDuration.Observe(duration.Seconds())
}

func (m *vmMetrics) RecordHeapSize(cells int) {
	m.heapSize.Set(float64(cells))
}

func (m *vmMetrics) RecordEnvSize(bindings int) {
	m.envSize.Set(float64(bindings))
}

func (m *vmMetrics) RecordGCReclaim(cellsFreed int) {
	m.gcReclaimed.Add(float64(cellsFreed))
}
