package es

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/axon-go/core/reflector"
)

// EventDef binds an event type tag to a decoder producing the event value.
type EventDef struct {
	Type   string
	decode func(data []byte) (any, error)
}

// Event returns the definition of event type T. Events are decoded as
// values of T. The type tag is T's EventType() if it has one, otherwise
// "pkg.TypeName".
func Event[T any]() EventDef {
	var zero T
	return EventDef{
		Type: EventTypeOf(zero),
		decode: func(data []byte) (any, error) {
			var v T
			if len(data) > 0 {
				if err := json.Unmarshal(data, &v); err != nil {
					return nil, err
				}
			}
			return v, nil
		},
	}
}

// EventTypeOf returns the type tag of ev.
func EventTypeOf(ev any) string {
	if t, ok := ev.(interface{ EventType() string }); ok {
		return t.EventType()
	}
	return reflector.TypeInfoOf(ev).ShortName
}

type Registrar interface {
	Register(def EventDef) error
}

// RegisterEvents registers every definition, stopping at the first error.
func RegisterEvents(r Registrar, defs ...EventDef) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// EventRegistry maps type tags to decoders. It is filled once while the
// application is wired and only read afterwards.
type EventRegistry struct {
	mu   sync.RWMutex
	defs map[string]EventDef
}

func NewRegistry() *EventRegistry {
	return &EventRegistry{defs: map[string]EventDef{}}
}

func (r *EventRegistry) Register(def EventDef) error {
	if def.Type == "" || def.decode == nil {
		return fmt.Errorf("invalid event definition %q", def.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Type]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEventType, def.Type)
	}
	r.defs[def.Type] = def
	return nil
}

func (r *EventRegistry) Has(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[eventType]
	return ok
}

// Types returns the registered type tags, sorted.
func (r *EventRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (r *EventRegistry) Decode(env Envelope) (any, error) {
	r.mu.RLock()
	def, ok := r.defs[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}
	ev, err := def.decode(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return ev, nil
}

// Encode returns the type tag and JSON payload of ev. Unregistered event
// types are refused so that nothing undecodable reaches the store.
func (r *EventRegistry) Encode(ev any) (string, []byte, error) {
	eventType := EventTypeOf(ev)
	if !r.Has(eventType) {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return eventType, data, nil
}

var _ Decoder = (*EventRegistry)(nil)

// NewEnvelopes encodes events into uncommitted envelopes for stream.
// Versions are provisional (expected+1...); the store assigns the final
// sequence. Either every event encodes or an error is returned.
func NewEnvelopes(reg *EventRegistry, stream StreamID, expected Version, md Metadata, events ...any) ([]Envelope, error) {
	return newEnvelopes(reg, stream, expected, md, func() string { return gonanoid.Must() }, time.Now, events)
}

func newEnvelopes(
	reg *EventRegistry,
	stream StreamID,
	expected Version,
	md Metadata,
	newID func() string,
	now func() time.Time,
	events []any,
) ([]Envelope, error) {
	out := make([]Envelope, 0, len(events))
	ts := now()
	for i, ev := range events {
		eventType, data, err := reg.Encode(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, Envelope{
			ID:            newID(),
			Version:       expected + Version(i+1),
			AggregateType: stream.Type,
			AggregateID:   stream.ID,
			Type:          eventType,
			OccurredAt:    ts,
			Metadata:      md.Clone(),
			Data:          data,
		})
	}
	return out, nil
}
