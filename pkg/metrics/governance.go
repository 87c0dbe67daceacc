package metrics

import (
	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/roles"
)

// GovernanceMetrics instruments template/override/rollback mutations and
// capability checks. A disabled GovernanceMetrics is a nil interface, which
// the package-level Record* helpers accept.
type GovernanceMetrics interface {
	RecordOperation(action audit.Action)
	RecordCapabilityDenial(cap roles.Capability)
}

var newPrometheusGovernanceMetrics func() GovernanceMetrics

// RegisterGovernanceMetricsConstructor registers the Prometheus governance
// metrics constructor. Called by pkg/metrics/prometheus/governance.go's init.
func RegisterGovernanceMetricsConstructor(constructor func() GovernanceMetrics) {
	newPrometheusGovernanceMetrics = constructor
}

// NewGovernanceMetrics returns a GovernanceMetrics backed by the active
// registry, or nil if metrics are disabled.
func NewGovernanceMetrics() GovernanceMetrics {
	if !IsEnabled() || newPrometheusGovernanceMetrics == nil {
		return nil
	}
	return newPrometheusGovernanceMetrics()
}

// RecordOperation records a successful governance mutation.
func RecordOperation(m GovernanceMetrics, action audit.Action) {
	if m != nil {
		m.RecordOperation(action)
	}
}

// RecordCapabilityDenial records a capability check that denied a caller.
func RecordCapabilityDenial(m GovernanceMetrics, cap roles.Capability) {
	if m != nil {
		m.RecordCapabilityDenial(cap)
	}
}
