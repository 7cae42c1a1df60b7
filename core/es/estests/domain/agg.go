// Package domain is a small counter aggregate used by the es, bus and cqrs tests.
package domain

import (
	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/es/assert"
)

const (
	AggType  = "counter"
	MaxValue = 24
)

type (
	Counter struct {
		Value      int `json:"value"`
		Increments int `json:"increments"`
		Resets     int `json:"resets"`
	}

	Incremented struct {
		By int `json:"by"`
	}
	WasReset struct{}
)

func (Incremented) EventType() string { return "counter.incremented" }
func (WasReset) EventType() string    { return "counter.reset" }

type (
	Increment struct {
		ID string
		By int
	}
	Reset struct {
		ID string
	}
)

func (c Increment) AggregateID() string { return c.ID }
func (c Increment) CommandType() string { return "counter.increment" }
func (c Reset) AggregateID() string     { return c.ID }
func (c Reset) CommandType() string     { return "counter.reset" }

// CounterAgg counts up to MaxValue.
type CounterAgg struct{}

func (CounterAgg) Type() string     { return AggType }
func (CounterAgg) Initial() Counter { return Counter{} }
func (CounterAgg) Events() []es.EventDef {
	return []es.EventDef{es.Event[Incremented](), es.Event[WasReset]()}
}

func (CounterAgg) Apply(s Counter, event any) (Counter, error) {
	switch e := event.(type) {
	case Incremented:
		s.Value += e.By
		s.Increments++
	case WasReset:
		s.Value = 0
		s.Resets++
	default:
		return s, es.UnknownEvent(event)
	}
	return s, nil
}

func (CounterAgg) Decide(s Counter, cmd es.Command) ([]any, error) {
	switch c := cmd.(type) {
	case Increment:
		if err := es.Require(
			assert.GT(c.By, 0, "positive_increment"),
			assert.LTE(s.Value+c.By, MaxValue, "max_value"),
		); err != nil {
			return nil, err
		}
		return []any{Incremented{By: c.By}}, nil
	case Reset:
		if s.Value == 0 {
			return nil, nil
		}
		return []any{WasReset{}}, nil
	}
	return nil, es.UnknownCommand(cmd)
}

var _ es.Aggregate[Counter] = CounterAgg{}
