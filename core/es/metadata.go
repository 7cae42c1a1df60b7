package es

import "maps"

// Well-known metadata keys.
const (
	MetaCorrelationID = "correlation_id"
	MetaCausationID   = "causation_id"
	MetaCommandType   = "command_type"
	MetaTraceID       = "trace_id"
)

// Metadata is free-form context stored alongside an event, e.g. the id of
// the request that caused it. It is never interpreted by aggregates.
type Metadata map[string]string

func (m Metadata) CorrelationID() string { return m[MetaCorrelationID] }
func (m Metadata) CausationID() string   { return m[MetaCausationID] }
func (m Metadata) TraceID() string       { return m[MetaTraceID] }

// With returns a copy of m with key set to value.
func (m Metadata) With(key, value string) Metadata {
	out := make(Metadata, len(m)+1)
	maps.Copy(out, m)
	out[key] = value
	return out
}

// Merge returns a copy of m overlaid with other.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	maps.Copy(out, m)
	maps.Copy(out, other)
	return out
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// MetadataCarrier is implemented by commands that carry metadata to the
// events they produce.
type MetadataCarrier interface {
	Metadata() Metadata
}
