package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for ops audit tracking. A nil *Metrics is a no-op.
type Metrics struct {
	tracked     prometheus.Counter
	sampled     prometheus.Counter
	dropped     prometheus.Counter
	failures    prometheus.Counter
	breakerOpen prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tracked: f.NewCounter(prometheus.CounterOpts{
			Name: "custodian_audit_ops_tracked_total",
			Help: "Operational audit events persisted",
		}),
		sampled: f.NewCounter(prometheus.CounterOpts{
			Name: "custodian_audit_ops_sampled_total",
			Help: "Operational audit events dropped by sampling",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "custodian_audit_ops_circuit_breaker_dropped_total",
			Help: "Operational audit events dropped while the breaker was open",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Name: "custodian_audit_ops_persist_failures_total",
			Help: "Operational audit persistence failures",
		}),
		breakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "custodian_audit_ops_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) incTracked() {
	if m != nil {
		m.tracked.Inc()
	}
}

func (m *Metrics) incSampled() {
	if m != nil {
		m.sampled.Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) incFailures() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}
