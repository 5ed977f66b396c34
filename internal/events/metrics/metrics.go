package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the events module.
type Metrics struct {
	// Appended actions by action type and status
	ActionsAppended *prometheus.CounterVec

	// Replayed requests answered from the log
	IdempotentReplays prometheus.Counter

	// Rejected requests by domain error code
	ActionsRefused *prometheus.CounterVec

	// Country config webhook outcomes: sync-ok, pending, failed, short-circuit
	WebhookOutcome *prometheus.CounterVec

	WebhookLatency *prometheus.HistogramVec

	// Time spent inside the per-event transaction
	AppendLatency prometheus.Histogram

	DraftsSaved prometheus.Counter
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the events metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActionsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crvs_events_actions_appended_total",
			Help: "Actions appended to event logs by type and status",
		}, []string{"type", "status"}),

		IdempotentReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "crvs_events_idempotent_replays_total",
			Help: "Requests answered from an already recorded transaction",
		}),

		ActionsRefused: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crvs_events_actions_refused_total",
			Help: "Action requests refused by error code",
		}, []string{"type", "code"}),

		WebhookOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crvs_events_webhook_outcomes_total",
			Help: "Country config webhook outcomes by action type",
		}, []string{"type", "outcome"}),

		WebhookLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crvs_events_webhook_duration_seconds",
			Help:    "Duration of country config webhook calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"type"}),

		AppendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crvs_events_append_duration_seconds",
			Help:    "Duration of the per-event append transaction including webhook calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		DraftsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "crvs_events_drafts_saved_total",
			Help: "Drafts saved",
		}),
	}
}

func (m *Metrics) IncrementAppended(actionType, status string) {
	if m != nil {
		m.ActionsAppended.WithLabelValues(actionType, status).Inc()
	}
}

func (m *Metrics) IncrementReplay() {
	if m != nil {
		m.IdempotentReplays.Inc()
	}
}

func (m *Metrics) IncrementRefused(actionType, code string) {
	if m != nil {
		m.ActionsRefused.WithLabelValues(actionType, code).Inc()
	}
}

// ObserveWebhook records one webhook call and its outcome.
func (m *Metrics) ObserveWebhook(actionType, outcome string, d time.Duration) {
	if m != nil {
		m.WebhookOutcome.WithLabelValues(actionType, outcome).Inc()
		m.WebhookLatency.WithLabelValues(actionType).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveAppendLatency(d time.Duration) {
	if m != nil {
		m.AppendLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementDraftsSaved() {
	if m != nil {
		m.DraftsSaved.Inc()
	}
}
