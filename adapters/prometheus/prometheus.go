// Package prometheus provides Prometheus implementations of the metrics
// interfaces of the event store, the bus and the dispatcher.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/axon-go/core/app"
)

const namespace = "axon"

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5,
}

// AllMetrics holds Prometheus implementations for all components.
type AllMetrics struct {
	ES         *esMetrics
	Bus        *busMetrics
	Dispatcher *dispatcherMetrics
}

// NewAllMetrics creates and registers the metrics of all components.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		ES:         NewESMetrics(reg).(*esMetrics),
		Bus:        NewBusMetrics(reg).(*busMetrics),
		Dispatcher: NewDispatcherMetrics(reg).(*dispatcherMetrics),
	}
}

// App returns the metrics in the form app.Config expects.
func (m *AllMetrics) App() app.Metrics {
	return app.Metrics{ES: m.ES, Bus: m.Bus, Dispatcher: m.Dispatcher}
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
