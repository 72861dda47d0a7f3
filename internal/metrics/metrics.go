// Package metrics exposes Prometheus instrumentation for the coordination
// engine and the event distribution layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service registers.
type Metrics struct {
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	MutationsTotal    *prometheus.CounterVec
	MutationDuration  *prometheus.HistogramVec
	EventsDelivered   *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	EventsQueued      prometheus.Counter
	EventsExpired     prometheus.Counter
	ConnectedClients  prometheus.Gauge
	MergeResolutions  *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass their own registry so
// parallel instances never collide; passing nil uses the default one.
func New(reg *prometheus.Registry, service string) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		gatherer = reg
	}

	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		registry: registerer,
		gatherer: gatherer,
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "order_mutations_total",
			Help:        "Order mutation attempts by operation and outcome.",
			ConstLabels: labels,
		}, []string{"operation", "outcome"}),
		MutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "order_mutation_duration_seconds",
			Help:        "Order mutation latency by operation.",
			ConstLabels: labels,
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "events_delivered_total",
			Help:        "Events delivered to connected clients by event name.",
			ConstLabels: labels,
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "events_dropped_total",
			Help:        "Events dropped by reason (rate_limited, buffer_full, no_recipient).",
			ConstLabels: labels,
		}, []string{"reason"}),
		EventsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "events_queued_total",
			Help:        "Events held for offline recipients.",
			ConstLabels: labels,
		}),
		EventsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "events_expired_total",
			Help:        "Queued events discarded after their retention window.",
			ConstLabels: labels,
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "connected_clients",
			Help:        "Currently registered event clients.",
			ConstLabels: labels,
		}),
		MergeResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "merge_resolutions_total",
			Help:        "Merge request resolutions by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}

	registerer.MustRegister(
		m.MutationsTotal,
		m.MutationDuration,
		m.EventsDelivered,
		m.EventsDropped,
		m.EventsQueued,
		m.EventsExpired,
		m.ConnectedClients,
		m.MergeResolutions,
	)
	return m
}

// Handler serves the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
