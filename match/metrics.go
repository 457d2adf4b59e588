package match

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports matching-engine counters in Prometheus format. All methods
// are nil-safe so the engine can run without a registry in tests.
type Metrics struct {
	passesTotal    *prometheus.CounterVec
	passLatency    prometheus.Histogram
	stageFailures  *prometheus.CounterVec
	candidates     prometheus.Gauge
	reunifications prometheus.Counter
}

// NewMetrics registers the matching metrics on the given registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		passesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "petpals_match_passes_total",
			Help: "Matching passes by outcome (completed, superseded, failed).",
		}, []string{"outcome"}),
		passLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "petpals_match_pass_duration_seconds",
			Help:    "Wall time of a full matching pass.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "petpals_match_report_failures_total",
			Help: "Per-report pipeline failures by stage (fetch, decode, embed).",
		}, []string{"stage"}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "petpals_match_candidates",
			Help: "Candidates emitted by the latest completed pass.",
		}),
		reunifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "petpals_reunifications_total",
			Help: "Confirmed match reunifications.",
		}),
	}
	registry.MustRegister(m.passesTotal, m.passLatency, m.stageFailures, m.candidates, m.reunifications)
	return m
}

func (m *Metrics) observePass(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues(outcome).Inc()
	m.passLatency.Observe(seconds)
}

func (m *Metrics) observeFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) setCandidates(n int) {
	if m == nil {
		return
	}
	m.candidates.Set(float64(n))
}

// ObserveReunification counts one confirmed reunification.
func (m *Metrics) ObserveReunification() {
	if m == nil {
		return
	}
	m.reunifications.Inc()
}
