package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/axon-go/core/bus"
	"github.com/codewandler/axon-go/core/metrics"
)

// busMetrics implements bus.Metrics using Prometheus.
type busMetrics struct {
	published      prometheus.Counter
	handleDuration *prometheus.HistogramVec
	handled        *prometheus.CounterVec
	redelivered    *prometheus.CounterVec
	deadLettered   *prometheus.CounterVec
}

// NewBusMetrics creates a new Prometheus implementation of bus.Metrics.
func NewBusMetrics(reg prometheus.Registerer) bus.Metrics {
	m := &busMetrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Total number of events published to the bus",
		}),

		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_handle_duration_seconds",
			Help:      "Subscriber handling time per event in seconds",
			Buckets:   defaultBuckets,
		}, []string{"subscriber", "event_type"}),

		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_handled_total",
			Help:      "Total number of delivery attempts",
		}, []string{"subscriber", "event_type", "success"}),

		redelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_redeliveries_total",
			Help:      "Total number of redelivery attempts",
		}, []string{"subscriber"}),

		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_dead_letters_total",
			Help:      "Total number of events handed to the dead-letter sink",
		}, []string{"subscriber"}),
	}

	reg.MustRegister(
		m.published,
		m.handleDuration,
		m.handled,
		m.redelivered,
		m.deadLettered,
	)

	return m
}

func (m *busMetrics) Published(count int) { m.published.Add(float64(count)) }

func (m *busMetrics) HandleDuration(subscriber, eventType string) metrics.Timer {
	return metrics.NewTimer(m.handleDuration.WithLabelValues(subscriber, eventType))
}

func (m *busMetrics) Handled(subscriber, eventType string, success bool) {
	m.handled.WithLabelValues(subscriber, eventType, boolToStr(success)).Inc()
}

func (m *busMetrics) Redelivered(subscriber string) {
	m.redelivered.WithLabelValues(subscriber).Inc()
}

func (m *busMetrics) DeadLettered(subscriber string) {
	m.deadLettered.WithLabelValues(subscriber).Inc()
}

var _ bus.Metrics = (*busMetrics)(nil)
