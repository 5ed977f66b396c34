package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP level Prometheus metrics.
type Metrics struct {
	RequestLatency *prometheus.HistogramVec
	Requests       *prometheus.CounterVec
	Panics         prometheus.Counter
}

// New creates and registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crvs_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crvs_http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Name: "crvs_http_panics_total",
			Help: "Handler panics recovered by the middleware",
		}),
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.RequestLatency.WithLabelValues(route, method).Observe(d.Seconds())
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) IncrementPanics() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}
