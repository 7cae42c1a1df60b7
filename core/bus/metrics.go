package bus

import "github.com/codewandler/axon-go/core/metrics"

// Metrics instruments event delivery.
type Metrics interface {
	Published(count int)
	HandleDuration(subscriber, eventType string) metrics.Timer
	Handled(subscriber, eventType string, success bool)
	Redelivered(subscriber string)
	DeadLettered(subscriber string)
}

type nopMetrics struct{}

func (nopMetrics) Published(int)                               {}
func (nopMetrics) HandleDuration(string, string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) Handled(string, string, bool)                {}
func (nopMetrics) Redelivered(string)                          {}
func (nopMetrics) DeadLettered(string)                         {}

func NopMetrics() Metrics { return nopMetrics{} }
