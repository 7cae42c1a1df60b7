package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/axon-go/core/cqrs"
	"github.com/codewandler/axon-go/core/metrics"
)

// dispatcherMetrics implements cqrs.Metrics using Prometheus.
type dispatcherMetrics struct {
	commandDuration *prometheus.HistogramVec
	commands        *prometheus.CounterVec
	retries         *prometheus.CounterVec
}

// NewDispatcherMetrics creates a new Prometheus implementation of cqrs.Metrics.
func NewDispatcherMetrics(reg prometheus.Registerer) cqrs.Metrics {
	m := &dispatcherMetrics{
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cqrs_command_duration_seconds",
			Help:      "Command dispatch latency in seconds, including retries",
			Buckets:   defaultBuckets,
		}, []string{"command_type"}),

		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cqrs_commands_total",
			Help:      "Total number of dispatched commands by outcome",
		}, []string{"command_type", "outcome"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cqrs_command_retries_total",
			Help:      "Total number of retries after concurrency conflicts",
		}, []string{"command_type"}),
	}

	reg.MustRegister(m.commandDuration, m.commands, m.retries)
	return m
}

func (m *dispatcherMetrics) CommandDuration(commandType string) metrics.Timer {
	return metrics.NewTimer(m.commandDuration.WithLabelValues(commandType))
}

func (m *dispatcherMetrics) CommandOutcome(commandType string, outcome cqrs.Outcome) {
	m.commands.WithLabelValues(commandType, outcome.String()).Inc()
}

func (m *dispatcherMetrics) CommandRetried(commandType string) {
	m.retries.WithLabelValues(commandType).Inc()
}

var _ cqrs.Metrics = (*dispatcherMetrics)(nil)
