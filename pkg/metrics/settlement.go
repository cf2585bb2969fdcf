package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks escrow movements and webhook intake.
type SettlementMetrics struct {
	releases       *prometheus.CounterVec
	releasedAmount *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	reconcileFails prometheus.Counter
	webhooks       *prometheus.CounterVec
	sweepItems     *prometheus.CounterVec
}

// NewSettlementMetrics registers settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	releases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escrow_releases_total",
		Help:      "Escrow stage advances applied.",
	}, []string{"stage"})
	releasedAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escrow_released_amount_total",
		Help:      "Gross amount released from escrow.",
	}, []string{"stage"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_conflicts_total",
		Help:      "Benign conflicts observed under concurrency.",
	}, []string{"kind"})
	reconcileFails := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escrow_reconciliation_failures_total",
		Help:      "Escrow rows whose stored balance disagrees with their stage history.",
	})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_webhooks_total",
		Help:      "Payment webhooks by outcome.",
	}, []string{"outcome"})
	sweepItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_approval_items_total",
		Help:      "Milestones handled by the auto-approval sweep by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(releases, releasedAmount, conflicts, reconcileFails, webhooks, sweepItems)
	return &SettlementMetrics{
		releases:       releases,
		releasedAmount: releasedAmount,
		conflicts:      conflicts,
		reconcileFails: reconcileFails,
		webhooks:       webhooks,
		sweepItems:     sweepItems,
	}
}

// ObserveRelease records an applied escrow advance out of stage.
func (m *SettlementMetrics) ObserveRelease(stage string, amount float64) {
	if m == nil || m.releases == nil {
		return
	}
	m.releases.WithLabelValues(normalizeLabel(stage)).Inc()
	m.releasedAmount.WithLabelValues(normalizeLabel(stage)).Add(amount)
}

// IncConflict counts a benign race (stage mismatch, already resolved).
func (m *SettlementMetrics) IncConflict(kind string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncReconciliationFailure feeds the alerting path for integrity mismatches.
func (m *SettlementMetrics) IncReconciliationFailure() {
	if m == nil || m.reconcileFails == nil {
		return
	}
	m.reconcileFails.Inc()
}

// IncWebhook counts a webhook by outcome (processed, duplicate, stale, rejected, failed).
func (m *SettlementMetrics) IncWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncSweepItem counts a sweep item by outcome.
func (m *SettlementMetrics) IncSweepItem(outcome string) {
	if m == nil || m.sweepItems == nil {
		return
	}
	m.sweepItems.WithLabelValues(normalizeLabel(outcome)).Inc()
}
