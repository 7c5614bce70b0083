package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Usage check outcome labels.
const (
	CheckOutcomeAllowed  = "allowed"
	CheckOutcomeDenied   = "denied"
	CheckOutcomeNotFound = "not_found"
)

// EntitlementMetrics records entitlement engine activity.
type EntitlementMetrics struct {
	usageChecks     *prometheus.CounterVec
	trialDowngrades prometheus.Counter
	frozenLookups   *prometheus.CounterVec
}

// NewEntitlementMetrics registers the entitlement metrics on the provided registerer.
func NewEntitlementMetrics(reg prometheus.Registerer) *EntitlementMetrics {
	if reg == nil {
		return &EntitlementMetrics{}
	}
	usageChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_usage_checks",
		Help: "Usage limit checks by feature and outcome.",
	}, []string{"feature", "outcome"})
	trialDowngrades := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_trial_downgrades",
		Help: "Expired trials downgraded to the free plan.",
	})
	frozenLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_freeze_lookups",
		Help: "Freeze status computations by kind.",
	}, []string{"kind"})
	reg.MustRegister(usageChecks, trialDowngrades, frozenLookups)
	return &EntitlementMetrics{
		usageChecks:     usageChecks,
		trialDowngrades: trialDowngrades,
		frozenLookups:   frozenLookups,
	}
}

// IncUsageCheck increments the usage check counter for the feature/outcome pair.
func (m *EntitlementMetrics) IncUsageCheck(feature, outcome string) {
	if m == nil || m.usageChecks == nil {
		return
	}
	m.usageChecks.WithLabelValues(normalizeLabel(feature), normalizeLabel(outcome)).Inc()
}

// IncTrialDowngrade increments the trial downgrade counter.
func (m *EntitlementMetrics) IncTrialDowngrade() {
	if m == nil || m.trialDowngrades == nil {
		return
	}
	m.trialDowngrades.Inc()
}

// IncFreezeLookup increments the freeze lookup counter for the given kind
// (single, check, batch).
func (m *EntitlementMetrics) IncFreezeLookup(kind string) {
	if m == nil || m.frozenLookups == nil {
		return
	}
	m.frozenLookups.WithLabelValues(normalizeLabel(kind)).Inc()
}
