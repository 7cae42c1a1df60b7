// Package cloudevents converts committed events to and from CloudEvents and
// forwards bus deliveries to any CloudEvents protocol sender.
package cloudevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/codewandler/axon-go/core/es"
)

// Extension attribute names. CloudEvents restricts them to lower-case
// alphanumerics.
const (
	ExtAggregateType = "aggregatetype"
	ExtAggregateID   = "aggregateid"
	ExtVersion       = "aggregateversion"
	ExtSeq           = "sequence"
	ExtCorrelationID = "correlationid"
	ExtCausationID   = "causationid"
	ExtCommandType   = "commandtype"
	ExtTraceID       = "traceid"
)

// DefaultSource is the source attribute used when none is configured.
const DefaultSource = "axon"

var ErrInvalidEvent = errors.New("invalid cloudevent")

// metadata keys carried as dedicated extensions
var metaExtensions = map[string]string{
	es.MetaCorrelationID: ExtCorrelationID,
	es.MetaCausationID:   ExtCausationID,
	es.MetaCommandType:   ExtCommandType,
	es.MetaTraceID:       ExtTraceID,
}

// ToCloudEvent maps env to a CloudEvent. The subject is the stream id, the
// data is the JSON payload.
func ToCloudEvent(env es.Envelope, source string) (*cloudevents.Event, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if source == "" {
		source = DefaultSource
	}

	e := cloudevents.NewEvent()
	e.SetID(env.ID)
	e.SetType(env.Type)
	e.SetSource(source)
	e.SetSubject(env.Stream().String())
	e.SetTime(env.OccurredAt)
	e.SetExtension(ExtAggregateType, env.AggregateType)
	e.SetExtension(ExtAggregateID, env.AggregateID)
	e.SetExtension(ExtVersion, strconv.FormatUint(env.Version.Uint64(), 10))
	e.SetExtension(ExtSeq, strconv.FormatUint(env.Seq, 10))
	for key, ext := range metaExtensions {
		if v := env.Metadata[key]; v != "" {
			e.SetExtension(ext, v)
		}
	}
	if err := e.SetData(cloudevents.ApplicationJSON, json.RawMessage(env.Data)); err != nil {
		return nil, fmt.Errorf("set data: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return &e, nil
}

// FromCloudEvent is the inverse of ToCloudEvent. Metadata keys other than
// the well-known ones are not carried.
func FromCloudEvent(e *cloudevents.Event) (es.Envelope, error) {
	if e == nil {
		return es.Envelope{}, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if err := e.Validate(); err != nil {
		return es.Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	ext := func(name string) string {
		v, ok := e.Extensions()[name]
		if !ok {
			return ""
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Sprint(v)
		}
		return s
	}
	version, err := strconv.ParseUint(ext(ExtVersion), 10, 64)
	if err != nil {
		return es.Envelope{}, fmt.Errorf("%w: %s: %w", ErrInvalidEvent, ExtVersion, err)
	}
	seq, err := strconv.ParseUint(ext(ExtSeq), 10, 64)
	if err != nil {
		return es.Envelope{}, fmt.Errorf("%w: %s: %w", ErrInvalidEvent, ExtSeq, err)
	}

	var md es.Metadata
	for key, name := range metaExtensions {
		if v := ext(name); v != "" {
			md = md.With(key, v)
		}
	}

	env := es.Envelope{
		ID:            e.ID(),
		Seq:           seq,
		Version:       es.Version(version),
		AggregateType: ext(ExtAggregateType),
		AggregateID:   ext(ExtAggregateID),
		Type:          e.Type(),
		OccurredAt:    e.Time(),
		Metadata:      md,
		Data:          json.RawMessage(e.Data()),
	}
	if err := env.Validate(); err != nil {
		return es.Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return env, nil
}
