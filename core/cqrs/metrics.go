package cqrs

import "github.com/codewandler/axon-go/core/metrics"

type Metrics interface {
	CommandDuration(commandType string) metrics.Timer
	CommandOutcome(commandType string, outcome Outcome)
	CommandRetried(commandType string)
}

type nopMetrics struct{}

func (nopMetrics) CommandDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) CommandOutcome(string, Outcome)       {}
func (nopMetrics) CommandRetried(string)                {}

func NopMetrics() Metrics { return nopMetrics{} }
