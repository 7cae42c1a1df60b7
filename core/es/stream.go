package es

import (
	"fmt"
	"log/slog"
	"strings"
)

// StreamID identifies the event stream of one aggregate instance.
type StreamID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func NewStreamID(aggType, aggID string) StreamID { return StreamID{Type: aggType, ID: aggID} }

// String renders the stream as "type:id".
func (s StreamID) String() string { return s.Type + ":" + s.ID }

// ARN renders the stream as "arn:type/id".
func (s StreamID) ARN() string { return "arn:" + s.Type + "/" + s.ID }

func (s StreamID) IsZero() bool { return s.Type == "" && s.ID == "" }

func (s StreamID) Validate() error {
	switch {
	case s.Type == "":
		return fmt.Errorf("%w: aggregate type is empty", ErrInvalidStream)
	case s.ID == "":
		return fmt.Errorf("%w: aggregate id is empty", ErrInvalidStream)
	case strings.Contains(s.Type, ":"):
		return fmt.Errorf("%w: aggregate type %q contains ':'", ErrInvalidStream, s.Type)
	}
	return nil
}

func (s StreamID) SlogAttr() slog.Attr {
	return slog.Group("agg", slog.String("type", s.Type), slog.String("id", s.ID))
}

// ParseStreamID parses the "type:id" form produced by String.
func ParseStreamID(s string) (StreamID, error) {
	aggType, aggID, ok := strings.Cut(s, ":")
	id := StreamID{Type: aggType, ID: aggID}
	if !ok {
		return StreamID{}, fmt.Errorf("%w: %q", ErrInvalidStream, s)
	}
	return id, id.Validate()
}
