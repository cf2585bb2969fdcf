package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSettlementMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)

	m.ObserveRelease("FITTING", 125)
	m.ObserveRelease("FITTING", 10)
	m.IncConflict("stage_mismatch")
	m.IncWebhook("duplicate")
	m.IncSweepItem("auto_approved")
	m.IncReconciliationFailure()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "stitchpay_escrow_releases_total", map[string]string{"stage": "FITTING"}); err != nil || got != 2 {
		t.Fatalf("expected 2 releases, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stitchpay_escrow_released_amount_total", map[string]string{"stage": "FITTING"}); err != nil || got != 135 {
		t.Fatalf("expected released amount 135, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stitchpay_settlement_conflicts_total", map[string]string{"kind": "stage_mismatch"}); err != nil || got != 1 {
		t.Fatalf("expected 1 conflict, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stitchpay_payment_webhooks_total", map[string]string{"outcome": "duplicate"}); err != nil || got != 1 {
		t.Fatalf("expected 1 duplicate webhook, got %f err=%v", got, err)
	}
	if mf := findMetricFamily(mfs, "stitchpay_escrow_reconciliation_failures_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected reconciliation failure counter")
	}
}

func TestSettlementMetricsNilSafe(t *testing.T) {
	var m *SettlementMetrics
	m.ObserveRelease("DEPOSIT", 1)
	m.IncConflict("x")
	m.IncReconciliationFailure()
	m.IncWebhook("processed")
	m.IncSweepItem("failed")

	unregistered := NewSettlementMetrics(nil)
	unregistered.IncWebhook("processed")
}
