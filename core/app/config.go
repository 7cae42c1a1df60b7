package app

import (
	"context"
	"log/slog"

	"github.com/codewandler/axon-go/core/bus"
	"github.com/codewandler/axon-go/core/cqrs"
	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/retry"
)

type Config struct {
	Context context.Context
	Log     *slog.Logger

	// Store defaults to an in-memory store.
	Store es.EventStore
	// Snapshotter enables snapshots every SnapshotEvery events.
	Snapshotter   es.Snapshotter
	SnapshotEvery int
	// SchemaVersion is stamped on snapshots; older ones are discarded.
	SchemaVersion int

	// Retry bounds conflict retries; nil means retry.Default().
	Retry *retry.Policy

	Bus     BusConfig
	Metrics Metrics
}

type BusConfig struct {
	// QueueSize > 0 switches the bus to queued delivery.
	QueueSize int
	// Redelivery defaults to three attempts.
	Redelivery  *retry.Policy
	DeadLetters bus.DeadLetterSink
}

// Metrics groups the instrumentation of all components. Nil fields are
// no-ops.
type Metrics struct {
	ES         es.ESMetrics
	Bus        bus.Metrics
	Dispatcher cqrs.Metrics
}

func (m Metrics) withDefaults() Metrics {
	if m.ES == nil {
		m.ES = es.NopESMetrics()
	}
	if m.Bus == nil {
		m.Bus = bus.NopMetrics()
	}
	if m.Dispatcher == nil {
		m.Dispatcher = cqrs.NopMetrics()
	}
	return m
}
