package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLeadMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLeadMetrics(reg)
	m.ObserveSubmission("partial", "ok", 0.2)
	m.ObserveSubmission("partial", "ok", 0.1)
	m.ObserveRateLimited("leads")
	m.ObserveConversion("full")

	if got := testutil.ToFloat64(m.submissions.WithLabelValues("partial", "ok")); got != 2 {
		t.Fatalf("expected 2 submissions, got %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimited.WithLabelValues("leads")); got != 1 {
		t.Fatalf("expected 1 rate limited, got %v", got)
	}
}

func TestSyncMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)
	m.ObserveTarget("crm", "transport", 3, 1.5)
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("crm", "transport")); got != 1 {
		t.Fatalf("expected 1 outcome, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var lm *LeadMetrics
	lm.ObserveSubmission("complete", "failed", 0.1)
	lm.ObserveRateLimited("conversions")
	lm.ObserveConversion("partial")

	var sm *SyncMetrics
	sm.ObserveTarget("ledger", "ok", 1, 0.1)
}
