// Package metrics exposes operational counters over Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's counters. A nil *Metrics is valid and
// counts nothing, so tests can pass nil.
type Metrics struct {
	registry           *prometheus.Registry
	requestsCreated    prometheus.Counter
	messagesReceived   prometheus.Counter
	escalations        prometheus.Counter
	throttleRejections prometheus.Counter
	overdueRequests    prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		requestsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "foiportal_requests_created_total",
			Help: "Number of FOI requests created.",
		}),
		messagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "foiportal_messages_received_total",
			Help: "Number of inbound messages filed into threads.",
		}),
		escalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "foiportal_escalations_total",
			Help: "Number of requests escalated to a mediator.",
		}),
		throttleRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "foiportal_throttle_rejections_total",
			Help: "Number of request creations rejected by the throttle.",
		}),
		overdueRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "foiportal_overdue_requests",
			Help: "Requests currently past their legal response deadline.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncRequestsCreated() {
	if m != nil {
		m.requestsCreated.Inc()
	}
}

func (m *Metrics) IncMessagesReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *Metrics) IncEscalations() {
	if m != nil {
		m.escalations.Inc()
	}
}

func (m *Metrics) IncThrottleRejections() {
	if m != nil {
		m.throttleRejections.Inc()
	}
}

// SetOverdueRequests records the current overdue-request count.
func (m *Metrics) SetOverdueRequests(n int) {
	if m != nil {
		m.overdueRequests.Set(float64(n))
	}
}
