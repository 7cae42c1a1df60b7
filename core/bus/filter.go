package bus

import (
	"github.com/codewandler/axon-go/core/ds"
	"github.com/codewandler/axon-go/core/es"
)

// Filter selects the events a subscriber receives.
type Filter func(env es.Envelope) bool

// ForEventTypes matches the given event type tags.
func ForEventTypes(types ...string) Filter {
	set := ds.NewStringSet(types...)
	return func(env es.Envelope) bool { return set.Contains(env.Type) }
}

// ForEvents matches the event types of defs, e.g. an aggregate's Events().
func ForEvents(defs ...es.EventDef) Filter {
	types := make([]string, len(defs))
	for i, d := range defs {
		types[i] = d.Type
	}
	return ForEventTypes(types...)
}

func ForAggregateType(aggTypes ...string) Filter {
	set := ds.NewStringSet(aggTypes...)
	return func(env es.Envelope) bool { return set.Contains(env.AggregateType) }
}

func ForStream(stream es.StreamID) Filter {
	return func(env es.Envelope) bool { return env.Stream() == stream }
}

func matchAll(env es.Envelope, filters []Filter) bool {
	for _, f := range filters {
		if !f(env) {
			return false
		}
	}
	return true
}
