package protocol

import (
	"bytes"
	"testing"
)

// TestFrameRoundTripAllKinds checks decode(encode(F)) == F for one frame
// of every kind, independent of the state machine (encodeBody/decodeBody
// are the pure halves Encode/DecodeBody wrap with legality checks).
func TestFrameRoundTripAllKinds(t *testing.T) {
	frames := []Frame{
		NewStreamFrame(RoleReplier, "rpc/echo"),
		MessageFrame([]byte("payload")),
		BatchFrame([]byte("b1b2b3")),
		RequestFrame(7, []byte("ask")),
		ReplyFrame(7, []byte("answer")),
		ServerRequestFrame(3, 7, []byte("ask")),
		ServerReplyFrame(3, 7, []byte("answer")),
		SignalFrame(SignalShutdownInProgress),
	}
	for _, f := range frames {
		got, err := decodeBody(f.Kind, encodeBody(f))
		if err != nil {
			t.Fatalf("%s: decode: %v", f.Kind, err)
		}
		if got.Kind != f.Kind || got.Role != f.Role || got.Path != f.Path ||
			!bytes.Equal(got.Bytes, f.Bytes) || got.RequestID != f.RequestID ||
			got.ClientID != f.ClientID || got.Signal != f.Signal {
			t.Fatalf("%s: round trip mismatch: got %v, want %v", f.Kind, got, f)
		}
	}
}

func TestFrameBodySize(t *testing.T) {
	cases := []struct {
		name string
		f    Frame
		want int
	}{
		{"NewStream", NewStreamFrame(RolePublisher, "ns/topic"), 1 + 4 + len("ns/topic")},
		{"Message", MessageFrame([]byte("abc")), 4 + 3},
		{"Request", RequestFrame(1, []byte("ab")), 4 + 4 + 2},
		{"ServerRequest", ServerRequestFrame(1, 2, []byte("ab")), 8 + 4 + 4 + 2},
		{"Signal", SignalFrame(SignalShutdown), 1},
	}
	for _, c := range cases {
		if got := c.f.bodySize(); got != c.want {
			t.Errorf("%s: bodySize() = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestKindStringUnknown(t *testing.T) {
	var k Kind = 255
	if k.String() == "" {
		t.Fatal("String() must not return empty for unknown kind")
	}
}
