package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/axon-go/core/app"
	"github.com/codewandler/axon-go/core/bus"
	"github.com/codewandler/axon-go/core/cqrs"
	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/es/estests/domain"
	"github.com/codewandler/axon-go/core/retry"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

// counterValue sums the counter samples matching all given label pairs.
func counterValue(mf *dto.MetricFamily, labels ...string) float64 {
	var sum float64
	for _, m := range mf.GetMetric() {
		if matchLabels(m, labels...) {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func matchLabels(m *dto.Metric, labels ...string) bool {
	have := map[string]string{}
	for _, lp := range m.GetLabel() {
		have[lp.GetName()] = lp.GetValue()
	}
	for i := 0; i+1 < len(labels); i += 2 {
		if have[labels[i]] != labels[i+1] {
			return false
		}
	}
	return true
}

func TestNewESMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewESMetrics(reg)
	require.NotNil(t, m)

	m.StoreReadDuration("user").ObserveDuration()
	m.StoreAppendDuration("user").ObserveDuration()
	m.EventsAppended("user", 5)
	m.RepoLoadDuration("user").ObserveDuration()
	m.RepoSaveDuration("user").ObserveDuration()
	m.ConcurrencyConflict("user")
	m.SnapshotLoadDuration("user").ObserveDuration()
	m.SnapshotSaveDuration("user").ObserveDuration()
	m.SnapshotDiscarded("user", "checksum")

	mfs := gather(t, reg)
	assert.Contains(t, mfs, "axon_es_store_read_duration_seconds")
	assert.Contains(t, mfs, "axon_es_repo_load_duration_seconds")
	assert.Contains(t, mfs, "axon_es_snapshot_save_duration_seconds")
	assert.Equal(t, 5.0, counterValue(mfs["axon_es_events_appended_total"], "aggregate_type", "user"))
	assert.Equal(t, 1.0, counterValue(mfs["axon_es_concurrency_conflicts_total"]))
	assert.Equal(t, 1.0, counterValue(mfs["axon_es_snapshots_discarded_total"], "reason", "checksum"))
}

func TestNewBusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBusMetrics(reg)

	m.Published(3)
	m.HandleDuration("proj", "user.created").ObserveDuration()
	m.Handled("proj", "user.created", true)
	m.Handled("proj", "user.created", false)
	m.Redelivered("proj")
	m.DeadLettered("proj")

	mfs := gather(t, reg)
	assert.Equal(t, 3.0, mfs["axon_bus_events_published_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, counterValue(mfs["axon_bus_events_handled_total"], "success", "false"))
	assert.Equal(t, 1.0, counterValue(mfs["axon_bus_redeliveries_total"], "subscriber", "proj"))
	assert.Equal(t, 1.0, counterValue(mfs["axon_bus_dead_letters_total"], "subscriber", "proj"))
	assert.Contains(t, mfs, "axon_bus_handle_duration_seconds")
}

func TestNewDispatcherMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatcherMetrics(reg)

	m.CommandDuration("user.create").ObserveDuration()
	m.CommandOutcome("user.create", cqrs.Committed)
	m.CommandOutcome("user.create", cqrs.Rejected)
	m.CommandRetried("user.create")

	mfs := gather(t, reg)
	assert.Equal(t, 1.0, counterValue(mfs["axon_cqrs_commands_total"], "outcome", "committed"))
	assert.Equal(t, 1.0, counterValue(mfs["axon_cqrs_commands_total"], "outcome", "rejected"))
	assert.Equal(t, 1.0, counterValue(mfs["axon_cqrs_command_retries_total"]))
	assert.Contains(t, mfs, "axon_cqrs_command_duration_seconds")
}

func TestAllMetrics_App(t *testing.T) {
	reg := prometheus.NewRegistry()
	all := NewAllMetrics(reg)
	require.NotNil(t, all.ES)
	require.NotNil(t, all.Bus)
	require.NotNil(t, all.Dispatcher)

	noRetry := retry.NoRetry()
	a := app.StartTest(t, app.Config{Metrics: all.App(), Bus: app.BusConfig{Redelivery: &noRetry}},
		app.Aggregate[domain.Counter](domain.CounterAgg{}, domain.Increment{}, domain.Reset{}),
		app.Subscriber("broken", bus.HandleFunc(func(*bus.Msg) error { panic("boom") })),
	)

	a.Assert().Committed(domain.Increment{ID: "c1", By: 2})
	a.Assert().Committed(domain.Increment{ID: "c1", By: 3})
	a.Assert().Rejected(domain.Increment{ID: "c1", By: 100}, "max_value")
	a.Assert().Version(es.NewStreamID(domain.AggType, "c1"), 2)

	mfs := gather(t, reg)
	assert.Equal(t, 2.0, counterValue(mfs["axon_es_events_appended_total"], "aggregate_type", domain.AggType))
	assert.Equal(t, 2.0, counterValue(mfs["axon_cqrs_commands_total"], "command_type", "counter.increment", "outcome", "committed"))
	assert.Equal(t, 1.0, counterValue(mfs["axon_cqrs_commands_total"], "outcome", "rejected"))
	assert.Equal(t, 2.0, counterValue(mfs["axon_bus_events_published_total"]))
	assert.Equal(t, 2.0, counterValue(mfs["axon_bus_dead_letters_total"], "subscriber", "broken"))
	assert.Equal(t, 2.0, counterValue(mfs["axon_bus_events_handled_total"], "subscriber", "broken", "success", "false"))
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}
