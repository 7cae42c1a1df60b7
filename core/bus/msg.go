package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/codewandler/axon-go/core/es"
)

// Msg is one event as seen by one subscriber.
type Msg struct {
	ctx        context.Context
	log        *slog.Logger
	env        es.Envelope
	event      any
	subscriber string
	replay     bool
	attempt    int
}

func (m *Msg) Context() context.Context { return m.ctx }
func (m *Msg) Log() *slog.Logger        { return m.log }
func (m *Msg) Subscriber() string       { return m.subscriber }

// Event is the decoded event, or nil if the bus has no decoder.
func (m *Msg) Event() any { return m.event }

// Replay reports whether the event is redelivered from history by Replay
// rather than published live.
func (m *Msg) Replay() bool { return m.replay }

// Attempt is the one-based delivery attempt.
func (m *Msg) Attempt() int { return m.attempt }

func (m *Msg) Envelope() es.Envelope { return m.env }
func (m *Msg) Seq() uint64           { return m.env.Seq }
func (m *Msg) Version() es.Version   { return m.env.Version }
func (m *Msg) Type() string          { return m.env.Type }
func (m *Msg) Stream() es.StreamID   { return m.env.Stream() }
func (m *Msg) AggregateID() string   { return m.env.AggregateID }
func (m *Msg) AggregateType() string { return m.env.AggregateType }
func (m *Msg) Metadata() es.Metadata { return m.env.Metadata }
func (m *Msg) OccurredAt() time.Time { return m.env.OccurredAt }
func (m *Msg) Data() json.RawMessage { return m.env.Data }

func newMsg(ctx context.Context, log *slog.Logger, subscriber string, env es.Envelope, event any) *Msg {
	return &Msg{
		ctx:        ctx,
		log:        log.With(slog.String("subscriber", subscriber), env.SlogAttr()),
		env:        env,
		event:      event,
		subscriber: subscriber,
	}
}
