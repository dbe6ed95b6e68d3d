package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the change-request ledger.
type Metrics struct {
	RequestsSubmitted *prometheus.CounterVec
	RequestsResolved  *prometheus.CounterVec
	Conflicts         *prometheus.CounterVec
	ReviewLatency     prometheus.Histogram
	VersionCacheHits  *prometheus.CounterVec
}

// New registers the ledger collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_change_requests_submitted_total",
			Help: "Change requests submitted, by operation kind",
		}, []string{"kind"}),
		RequestsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_change_requests_resolved_total",
			Help: "Change requests resolved, by operation kind and decision",
		}, []string{"kind", "decision"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_change_request_conflicts_total",
			Help: "Resolutions rejected because of a state or stale-value conflict",
		}, []string{"reason"}),
		ReviewLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodian_change_request_review_seconds",
			Help:    "Time from submission to resolution",
			Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 7 * 24 * 3600},
		}),
		VersionCacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_version_cache_lookups_total",
			Help: "Version cache lookups, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncSubmitted(kind string) {
	m.RequestsSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveResolved(kind, decision string, pending time.Duration) {
	m.RequestsResolved.WithLabelValues(kind, decision).Inc()
	m.ReviewLatency.Observe(pending.Seconds())
}

func (m *Metrics) IncConflict(reason string) {
	m.Conflicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.VersionCacheHits.WithLabelValues(result).Inc()
}
