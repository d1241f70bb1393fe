// Package metrics counts account activity with Prometheus and serves the
// exposition endpoint.
package metrics

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accounts "github.com/versehub/go-accounts"
)

const namespace = "versehub"

// Metrics is an accounts.ActivitySink backed by a private registry.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	logins        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

var _ accounts.ActivitySink = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_events_total",
			Help:      "Count of account activity events by type",
		}, []string{"event"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Count of login attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_transitions_total",
			Help:      "Count of account status transitions",
		}, []string{"from", "to"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Count of notifications that could not be delivered",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.events,
		m.logins,
		m.transitions,
		m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Record(_ context.Context, event accounts.ActivityEvent) error {
	m.events.WithLabelValues(string(event.EventType)).Inc()

	switch event.EventType {
	case accounts.ActivityEventLoginSuccess:
		m.logins.WithLabelValues("success").Inc()
	case accounts.ActivityEventLoginFailure:
		m.logins.WithLabelValues("failure").Inc()
	case accounts.ActivityEventAccountStatusChanged:
		m.transitions.WithLabelValues(string(event.FromStatus), string(event.ToStatus)).Inc()
	case accounts.ActivityEventNotificationFailed:
		kind, _ := event.Metadata["kind"].(string)
		m.notifications.WithLabelValues(kind).Inc()
	}
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// RegisterRoutes mounts GET /metrics.
func RegisterRoutes(r fiber.Router, m *Metrics) {
	r.Get("/metrics", m.Handler()).Name("metrics")
}
