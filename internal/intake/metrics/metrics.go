package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the intake pipeline. Methods are safe on
// a nil receiver.
type Metrics struct {
	// Terminal outcomes by tag (T, F, P) and failures by error code.
	Outcomes *prometheus.CounterVec

	SubmitLatency prometheus.Histogram

	// Classifier verdicts by result (inlier, outlier).
	Verdicts *prometheus.CounterVec

	// Open websocket connections.
	Connections prometheus.Gauge
}

// New registers the intake metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casegate_intake_outcomes_total",
			Help: "Total intake submissions by outcome",
		}, []string{"outcome"}),

		SubmitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "casegate_intake_submit_duration_seconds",
			Help:    "Duration of a submission from fingerprinting to terminal state",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casegate_classifier_verdicts_total",
			Help: "Total anomaly classifier verdicts by result",
		}, []string{"verdict"}),

		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casegate_websocket_connections",
			Help: "Currently open intake websocket connections",
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveSubmitLatency(d time.Duration) {
	if m != nil {
		m.SubmitLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementVerdict(verdict string) {
	if m != nil {
		m.Verdicts.WithLabelValues(verdict).Inc()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}
