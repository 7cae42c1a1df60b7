package cqrs

import (
	"log/slog"

	"github.com/codewandler/axon-go/core/es"
)

type Outcome int

const (
	Failed Outcome = iota
	Committed
	Rejected
	Conflicted
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Rejected:
		return "rejected"
	case Conflicted:
		return "conflicted"
	default:
		return "failed"
	}
}

// Stage is the last stage a dispatch reached.
type Stage int

const (
	StageReceived Stage = iota
	StageLoaded
	StageDecided
	StageCommitted
)

func (s Stage) String() string {
	switch s {
	case StageLoaded:
		return "loaded"
	case StageDecided:
		return "decided"
	case StageCommitted:
		return "committed"
	default:
		return "received"
	}
}

// Result describes one dispatched command.
type Result struct {
	Outcome     Outcome
	Stage       Stage
	CommandType string
	Stream      es.StreamID
	// Version is the aggregate version after the command; for anything but
	// Committed it is the version the last attempt was decided on.
	Version es.Version
	// Events are the committed events in decoded form. Empty if the command
	// was accepted without producing events.
	Events    []any
	Envelopes []es.Envelope
	// State is the aggregate state matching Version.
	State any
	// Attempts counts decide/commit cycles, including conflicted ones.
	Attempts      int
	CorrelationID string
}

func (r *Result) LogAttrs() []any {
	return []any{
		slog.String("outcome", r.Outcome.String()),
		slog.String("stage", r.Stage.String()),
		r.Stream.SlogAttr(),
		r.Version.SlogAttr(),
		slog.Int("events", len(r.Events)),
		slog.Int("attempts", r.Attempts),
	}
}
