package es

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Envelope is a committed (or about to be committed) event as stored.
// Envelopes returned by a store are copies; history cannot be altered
// through them.
type Envelope struct {
	ID string `json:"id"`
	// Seq is the global store sequence, unique across all streams.
	Seq uint64 `json:"seq"`
	// Version is the stream version this event brings the stream to.
	Version       Version         `json:"version"`
	AggregateType string          `json:"aggregate"`
	AggregateID   string          `json:"aggregate_id"`
	Type          string          `json:"type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Metadata      Metadata        `json:"metadata,omitempty"`
	Data          json.RawMessage `json:"data"`
}

func (e Envelope) Stream() StreamID { return StreamID{Type: e.AggregateType, ID: e.AggregateID} }

// SequenceNumber is the 0-based, gap-free position of the event in its stream.
func (e Envelope) SequenceNumber() uint64 {
	if e.Version == 0 {
		return 0
	}
	return uint64(e.Version) - 1
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope id is empty")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("envelope occurred at is zero")
	}
	if err := e.Stream().Validate(); err != nil {
		return err
	}
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	if e.Version == 0 {
		return fmt.Errorf("envelope version is zero")
	}
	if len(e.Data) > 0 && !json.Valid(e.Data) {
		return fmt.Errorf("envelope data of %s is not valid json", e.Type)
	}
	return nil
}

func (e Envelope) Clone() Envelope {
	e.Metadata = e.Metadata.Clone()
	if e.Data != nil {
		e.Data = bytes.Clone(e.Data)
	}
	return e
}

func (e Envelope) SlogAttr() slog.Attr {
	return slog.Group(
		"event",
		slog.String("id", e.ID),
		slog.String("type", e.Type),
		slog.Uint64("seq", e.Seq),
		e.Version.SlogAttr(),
		slog.String("stream", e.Stream().String()),
	)
}

// Decoder turns an envelope back into its event value.
type Decoder interface {
	Decode(e Envelope) (any, error)
}
