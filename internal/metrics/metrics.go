// Package metrics holds the process-local Prometheus registry mcpgate
// exposes on an optional scrape endpoint. Nothing here ships telemetry
// off-box; it only backs the /metrics handler cmd/mcpgate starts when
// --metrics-addr is set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge the middleware loop and supervisor
// record. Pass to components that need to record metrics.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec
	CodecErrorsTotal    prometheus.Counter
	ActiveSessions      prometheus.Gauge
	AuditAppendFailures prometheus.Counter
}

// New creates and registers every metric with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "decisions_total",
				Help:      "Total policy decisions, by verdict",
			},
			[]string{"verdict"}, // allow / allow_with_transforms / deny
		),
		CodecErrorsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "codec_errors_total",
				Help:      "Total frame decode errors observed on either pipe",
			},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpgate",
				Name:      "active_sessions",
				Help:      "Number of sessions currently held in the store",
			},
		),
		AuditAppendFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "audit_append_failures_total",
				Help:      "Total audit log append failures (fail-closed writes)",
			},
		),
	}
}

// Verdict names the DecisionsTotal label values.
const (
	VerdictAllow               = "allow"
	VerdictAllowWithTransforms = "allow_with_transforms"
	VerdictDeny                = "deny"
)
