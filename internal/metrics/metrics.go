// Package metrics holds the prometheus collectors of a dpgraph process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/dpgraph/internal/privacy"
)

const namespace = "dpgraph"

// Outcomes recorded by the counters.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics owns an isolated registry so that several instances can live in
// one process.
type Metrics struct {
	registry     *prometheus.Registry
	validations  *prometheus.CounterVec
	releases     *prometheus.CounterVec
	epsilonSpent prometheus.Counter
	deltaSpent   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Analyses validated, by outcome.",
		}, []string{"outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Releases computed, by outcome.",
		}, []string{"outcome"}),
		epsilonSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epsilon_spent_total",
			Help:      "Epsilon consumed by successful releases.",
		}),
		deltaSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delta_spent_total",
			Help:      "Delta consumed by successful releases.",
		}),
	}
	m.registry.MustRegister(m.validations, m.releases, m.epsilonSpent, m.deltaSpent)
	return m
}

func (m *Metrics) ObserveValidation(outcome string) {
	m.validations.WithLabelValues(outcome).Inc()
}

// ObserveRelease counts a release and, when it succeeded, the usage it
// consumed.
func (m *Metrics) ObserveRelease(outcome string, u privacy.Usage) {
	m.releases.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.epsilonSpent.Add(u.Epsilon)
		m.deltaSpent.Add(u.Delta)
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
