package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "produits"

// Metrics groups the service's Prometheus instruments. A nil *Metrics records nothing.
type Metrics struct {
	StockMutations   *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
	EventsDropped    prometheus.Counter
	MessagesConsumed *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// NewMetrics registers every instrument on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StockMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_mutations_total",
			Help:      "Stock engine mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain event publications by topic and outcome.",
		}, []string{"topic", "outcome"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Domain events dropped because the publish queue was full or closed.",
		}),
		MessagesConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Inbound bus messages by topic and final dispatch state.",
		}, []string{"topic", "state"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Mutation(kind, outcome string) {
	if m == nil {
		return
	}
	m.StockMutations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Published(topic, outcome string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(topic, outcome).Inc()
}

func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func (m *Metrics) Consumed(topic, state string) {
	if m == nil {
		return
	}
	m.MessagesConsumed.WithLabelValues(topic, state).Inc()
}

func (m *Metrics) Request(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
