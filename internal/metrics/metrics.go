// Package metrics exposes Prometheus collectors for the paste pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline collectors.
type Metrics struct {
	pastes       *prometheus.CounterVec
	acquisitions *prometheus.CounterVec
	attempts     prometheus.Histogram
	provocations prometheus.Counter
	injections   *prometheus.CounterVec
}

// MustNew registers the collectors on reg (the default registerer when
// nil) and panics on duplicate registration.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		pastes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pasteup",
			Name:      "pastes_total",
			Help:      "Paste signals seen on the editor surface, by kind.",
		}, []string{"kind"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pasteup",
			Name:      "acquisitions_total",
			Help:      "Acquisition loop outcomes, by discovering strategy.",
		}, []string{"outcome", "strategy"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pasteup",
			Name:      "acquire_attempts",
			Help:      "Locator invocations per acquisition.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 30},
		}),
		provocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pasteup",
			Name:      "provocations_total",
			Help:      "Synthetic clicks on candidate upload triggers.",
		}),
		injections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pasteup",
			Name:      "injections_total",
			Help:      "Injection engine outcomes.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.pastes, m.acquisitions, m.attempts, m.provocations, m.injections)
	return m
}

// Paste counts a paste signal; kind is "image" or "ignored".
func (m *Metrics) Paste(kind string) {
	if m == nil {
		return
	}
	m.pastes.WithLabelValues(kind).Inc()
}

// Acquisition records one loop outcome.
func (m *Metrics) Acquisition(outcome, strategy string, attempts int) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(outcome, strategy).Inc()
	m.attempts.Observe(float64(attempts))
}

// Provocation counts one synthetic trigger click.
func (m *Metrics) Provocation() {
	if m == nil {
		return
	}
	m.provocations.Inc()
}

// Injection records one injection outcome.
func (m *Metrics) Injection(outcome string) {
	if m == nil {
		return
	}
	m.injections.WithLabelValues(outcome).Inc()
}
