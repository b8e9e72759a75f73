package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNew_RegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	if m.DecisionsTotal == nil {
		t.Error("DecisionsTotal not initialized")
	}
	if m.CodecErrorsTotal == nil {
		t.Error("CodecErrorsTotal not initialized")
	}
	if m.ActiveSessions == nil {
		t.Error("ActiveSessions not initialized")
	}
	if m.AuditAppendFailures == nil {
		t.Error("AuditAppendFailures not initialized")
	}
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DecisionsTotal.WithLabelValues(VerdictDeny).Inc()
	m.DecisionsTotal.WithLabelValues(VerdictDeny).Inc()
	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues(VerdictDeny)); got != 2 {
		t.Errorf("DecisionsTotal[deny] = %v, want 2", got)
	}

	m.ActiveSessions.Set(3)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 3 {
		t.Errorf("ActiveSessions = %v, want 3", got)
	}

	m.AuditAppendFailures.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "mcpgate_audit_append_failures_total" {
			found = mf
		}
	}
	if found == nil {
		t.Fatal("mcpgate_audit_append_failures_total not found in gathered metrics")
	}
	if got := found.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("audit_append_failures_total = %v, want 1", got)
	}
}
