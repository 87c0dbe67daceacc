package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/roles"
	"github.com/chronolab/chronovm/pkg/metrics"
)

func init() {
	metrics.RegisterGovernanceMetricsConstructor(newGovernanceMetrics)
}

type governanceMetrics struct {
	operations         *prometheus.CounterVec
	capabilityDenials  *prometheus.CounterVec
}

func newGovernanceMetrics() metrics.GovernanceMetrics {
	reg := metrics.GetRegistry()

	return &governanceMetrics{
		operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chronovm_governance_operations_total",
			Help: "Total number of successful governance mutations, labeled by audit action.",
		}, []string{"action"}),
		capabilityDenials: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chronovm_governance_capability_denials_total",
			Help: "Total number of capability checks that denied the caller, labeled by capability.",
		}, []string{"capability"}),
	}
}

func (m *governanceMetrics) RecordOperation(action audit.Action) {
	m.operations.WithLabelValues(string(action)).Inc()
}

func (m *governanceMetrics) RecordCapabilityDenial(cap roles.Capability) {
	m.capabilityDenials.WithLabelValues(string(cap)).Inc()
}
