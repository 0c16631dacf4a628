package transport

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

func mustCBOR(t *testing.T) Codec {
	t.Helper()
	c, err := CBOR()
	if err != nil {
		t.Fatalf("CBOR(): %v", err)
	}
	return c
}

func TestCodecsPreserveNestedFields(t *testing.T) {
	codecs := []Codec{JSON(), mustCBOR(t)}
	for _, c := range codecs {
		t.Run(c.Name(), func(t *testing.T) {
			env := kernel.NewEnvelope("display_data", map[string]any{
				"data":   map[string]any{"text/markdown": "# hi"},
				"cursor": 4,
			})
			data, err := Encode(c, env)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(c, data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Type() != "display_data" {
				t.Errorf("Type() = %q", got.Type())
			}
			raw, _ := got.Field("data")
			inner, ok := raw.(map[string]any)
			if !ok {
				t.Fatalf("data decoded as %T, want map[string]any", raw)
			}
			if inner["text/markdown"] != "# hi" {
				t.Errorf("data = %v", inner)
			}
			if n, ok := got.Int("cursor"); !ok || n != 4 {
				t.Errorf("Int(cursor) = %d, %v", n, ok)
			}
		})
	}
}

func TestDecodeGarbageIsMalformed(t *testing.T) {
	for _, c := range []Codec{JSON(), mustCBOR(t)} {
		_, err := Decode(c, []byte{0xff, 0x00, '{'})
		if !errors.Is(err, kernel.ErrMalformed) {
			t.Errorf("%s: Decode(garbage) = %v, want ErrMalformed", c.Name(), err)
		}
	}
}

func TestDecodeMissingTypeYieldsInvalidEnvelope(t *testing.T) {
	got, err := Decode(JSON(), []byte(`{"fields":{"a":1}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := got.Validate(); !errors.Is(err, kernel.ErrMalformed) {
		t.Errorf("Validate() = %v, want ErrMalformed", err)
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name      string
		wantFrame int
		wantErr   bool
	}{
		{"", websocket.TextMessage, false},
		{"json", websocket.TextMessage, false},
		{"cbor", websocket.BinaryMessage, false},
		{"msgpack", 0, true},
	}
	for _, tt := range tests {
		c, err := ByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ByName(%q) should fail", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ByName(%q): %v", tt.name, err)
		}
		if c.FrameType() != tt.wantFrame {
			t.Errorf("ByName(%q).FrameType() = %d, want %d", tt.name, c.FrameType(), tt.wantFrame)
		}
	}
}
