// Package codec encodes derived state (snapshots) under a named encoding,
// so the encoding can be recorded next to the bytes and checked on decode.
package codec

import (
	"encoding/json"
	"fmt"
)

type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type JSON struct{}

func (JSON) Name() string                       { return "json" }
func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Lookup returns the codec registered for name.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}
