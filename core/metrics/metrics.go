// Package metrics defines backend-agnostic instruments so that core packages
// can be instrumented without depending on a metrics library.
package metrics

import "time"

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	// Add increments the counter by delta. delta must be >= 0.
	Add(delta float64)
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
}

// Histogram samples observations into buckets.
type Histogram interface {
	Observe(value float64)
}

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes, typically via defer:
//
//	defer m.AppendDuration("account").ObserveDuration()
type Timer interface {
	ObserveDuration()
}

type histogramTimer struct {
	h     Histogram
	start time.Time
}

func (t histogramTimer) ObserveDuration() { t.h.Observe(time.Since(t.start).Seconds()) }

// NewTimer starts a Timer that observes the elapsed seconds into h.
func NewTimer(h Histogram) Timer { return histogramTimer{h: h, start: time.Now()} }
