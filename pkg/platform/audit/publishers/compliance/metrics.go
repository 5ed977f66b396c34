package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks compliance audit persistence.
type Metrics struct {
	EventsEmitted   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the compliance audit metrics with the default registry.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWithRegistry registers against reg. Tests pass a fresh registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		EventsEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "crvs_audit_compliance_events_total",
			Help: "Total compliance audit events persisted",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "crvs_audit_compliance_failures_total",
			Help: "Compliance audit writes that failed (operation aborted)",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crvs_audit_compliance_persist_duration_seconds",
			Help:    "Duration of synchronous compliance audit writes",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncEventsEmitted() {
	m.EventsEmitted.Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}
