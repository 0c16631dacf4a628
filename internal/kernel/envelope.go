// Package kernel bridges the three message streams of a computation kernel to
// a single-threaded consumer. Each stream is received on its own goroutine,
// classified into typed events, and posted to a Sink in arrival order.
package kernel

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a frame that could not be decoded into an Envelope.
// Receive loops drop such frames and keep going.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is one message unit from the kernel transport. It is immutable:
// accessors hand out deep copies of nested maps and slices.
type Envelope struct {
	msgType string
	fields  map[string]any
}

// NewEnvelope creates an Envelope, copying fields.
func NewEnvelope(msgType string, fields map[string]any) Envelope {
	return Envelope{msgType: msgType, fields: cloneMap(fields)}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	}
	return v
}

// Type returns the envelope's type tag, e.g. "execute_reply".
func (e Envelope) Type() string { return e.msgType }

// Fields returns a copy of the payload.
func (e Envelope) Fields() map[string]any { return cloneMap(e.fields) }

// Field returns a copy of a single payload value.
func (e Envelope) Field(name string) (any, bool) {
	v, ok := e.fields[name]
	return cloneValue(v), ok
}

// String returns a string field, or "" when absent or not a string.
func (e Envelope) String(name string) string {
	s, _ := e.fields[name].(string)
	return s
}

// Int returns a numeric field as int. JSON decodes numbers as float64 and CBOR
// as uint64/int64, so all three are accepted.
func (e Envelope) Int(name string) (int, bool) {
	switch v := e.fields[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Validate reports whether the envelope carries the fields every stream needs.
func (e Envelope) Validate() error {
	if e.msgType == "" {
		return fmt.Errorf("%w: missing type tag", ErrMalformed)
	}
	return nil
}

// Wire is the serialized form of an Envelope. The json tags are honoured by
// both the JSON and CBOR codecs.
type Wire struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ToWire converts the envelope for encoding.
func (e Envelope) ToWire() Wire {
	return Wire{Type: e.msgType, Fields: e.Fields()}
}

// FromWire converts a decoded frame back into an Envelope.
func FromWire(w Wire) Envelope {
	return Envelope{msgType: w.Type, fields: w.Fields}
}
