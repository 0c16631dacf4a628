package transport

import (
	"encoding/json"
	"fmt"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

// Codec marshals envelopes for the wire.
type Codec interface {
	Name() string
	ContentType() string
	// FrameType is the websocket message type frames are sent as.
	FrameType() int
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

// JSON returns the JSON codec, sent as text frames.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) ContentType() string                { return "application/json" }
func (jsonCodec) FrameType() int                     { return websocket.TextMessage }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a canonical CBOR codec, sent as binary frames. Nested maps
// decode as map[string]any so payloads look the same as with JSON.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (cborCodec) Name() string                         { return "cbor" }
func (cborCodec) ContentType() string                  { return "application/cbor" }
func (cborCodec) FrameType() int                       { return websocket.BinaryMessage }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// ByName returns the codec called name ("json" or "cbor").
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR()
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// Encode serialises an envelope.
func Encode(c Codec, env kernel.Envelope) ([]byte, error) {
	return c.Marshal(env.ToWire())
}

// Decode parses a frame. Undecodable frames wrap kernel.ErrMalformed.
func Decode(c Codec, data []byte) (kernel.Envelope, error) {
	var w kernel.Wire
	if err := c.Unmarshal(data, &w); err != nil {
		return kernel.Envelope{}, fmt.Errorf("%w: %s: %v", kernel.ErrMalformed, c.Name(), err)
	}
	return kernel.FromWire(w), nil
}
