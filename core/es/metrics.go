package es

import "github.com/codewandler/axon-go/core/metrics"

// ESMetrics instruments the store, the repository and snapshots.
// Implementations must be safe for concurrent use.
type ESMetrics interface {
	// Store operations
	StoreReadDuration(aggType string) metrics.Timer
	StoreAppendDuration(aggType string) metrics.Timer
	EventsAppended(aggType string, count int)

	// Repository operations
	RepoLoadDuration(aggType string) metrics.Timer
	RepoSaveDuration(aggType string) metrics.Timer
	ConcurrencyConflict(aggType string)

	// Snapshots
	SnapshotLoadDuration(aggType string) metrics.Timer
	SnapshotSaveDuration(aggType string) metrics.Timer
	SnapshotDiscarded(aggType string, reason string)
}

type nopESMetrics struct{}

func (nopESMetrics) StoreReadDuration(string) metrics.Timer    { return metrics.NopTimer() }
func (nopESMetrics) StoreAppendDuration(string) metrics.Timer  { return metrics.NopTimer() }
func (nopESMetrics) EventsAppended(string, int)                {}
func (nopESMetrics) RepoLoadDuration(string) metrics.Timer     { return metrics.NopTimer() }
func (nopESMetrics) RepoSaveDuration(string) metrics.Timer     { return metrics.NopTimer() }
func (nopESMetrics) ConcurrencyConflict(string)                {}
func (nopESMetrics) SnapshotLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) SnapshotSaveDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) SnapshotDiscarded(string, string)          {}

// NopESMetrics returns a no-op ESMetrics implementation.
func NopESMetrics() ESMetrics { return nopESMetrics{} }
