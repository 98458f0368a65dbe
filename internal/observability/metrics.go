package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the report
// pipeline. A nil *Metrics is a valid no-op receiver so components can run
// without a registry in tests.
type Metrics struct {
	SubmissionsTotal   *prometheus.CounterVec // labels: outcome={created,merged,rejected,failed}
	PromotionsTotal    prometheus.Counter
	PromotionLeftovers prometheus.Counter

	EnrichmentOutcomes *prometheus.CounterVec   // labels: stage, outcome={attached,skipped,failed}
	EnrichmentDuration *prometheus.HistogramVec // labels: stage

	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazardwatch",
			Name:      "submissions_total",
			Help:      "Report submissions by outcome.",
		}, []string{"outcome"}),
		PromotionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazardwatch",
			Name:      "promotions_total",
			Help:      "Pending clusters promoted to verified reports.",
		}),
		PromotionLeftovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazardwatch",
			Name:      "promotion_leftovers_total",
			Help:      "Promotions where the pending delete failed after the verified copy, leaving a reconcilable duplicate.",
		}),
		EnrichmentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazardwatch",
			Name:      "enrichment_stage_outcomes_total",
			Help:      "Enrichment stage results by stage and outcome.",
		}, []string{"stage", "outcome"}),
		EnrichmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hazardwatch",
			Name:      "enrichment_stage_duration_seconds",
			Help:      "Wall time per enrichment capability call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"stage"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazardwatch",
			Name:      "rate_limited_submissions_total",
			Help:      "Submissions rejected by the fixed-window rate limiter.",
		}),
	}

	prometheus.MustRegister(
		m.SubmissionsTotal,
		m.PromotionsTotal,
		m.PromotionLeftovers,
		m.EnrichmentOutcomes,
		m.EnrichmentDuration,
		m.RateLimitedTotal,
	)
	return m
}

func (m *Metrics) CountSubmission(outcome string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CountPromotion() {
	if m == nil {
		return
	}
	m.PromotionsTotal.Inc()
}

func (m *Metrics) CountPromotionLeftover() {
	if m == nil {
		return
	}
	m.PromotionLeftovers.Inc()
}

func (m *Metrics) CountEnrichment(stage, outcome string) {
	if m == nil {
		return
	}
	m.EnrichmentOutcomes.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveEnrichmentDuration(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.EnrichmentDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) CountRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}
