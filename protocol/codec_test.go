package protocol

import (
	"bytes"
	"testing"
)

func TestCodecNewStreamMustComeFirst(t *testing.T) {
	c := NewCodec()
	if _, err := c.Encode(MessageFrame([]byte("x"))); err == nil {
		t.Fatal("expected error sending Message before NewStream")
	}
}

func TestCodecPublisherSendsMessages(t *testing.T) {
	c := NewCodec()
	if _, err := c.Encode(NewStreamFrame(RolePublisher, "ns/topic")); err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if _, err := c.Encode(MessageFrame([]byte("hello"))); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if _, err := c.Encode(BatchFrame([]byte("hello,world"))); err != nil {
		t.Fatalf("Batch: %v", err)
	}
}

func TestCodecPublisherCannotReceiveMessages(t *testing.T) {
	c := NewCodec()
	c.streamType = RolePublisher
	c.haveType = true
	c.lastFrame = KindNewStream

	record := append([]byte{byte(KindMessage)}, putBytes(nil, []byte("x"))...)
	if _, err := c.DecodeBody(record); err == nil {
		t.Fatal("expected error: publisher stream must not receive Message")
	}
}

func TestCodecSubscriberReceivesMessages(t *testing.T) {
	c := NewCodec()
	c.streamType = RoleSubscriber
	c.haveType = true
	c.lastFrame = KindNewStream

	record := append([]byte{byte(KindMessage)}, putBytes(nil, []byte("x"))...)
	f, err := c.DecodeBody(record)
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if f.Kind != KindMessage || string(f.Bytes) != "x" {
		t.Fatalf("got %v", f)
	}
}

func TestCodecRequestorAlternatesRequestReply(t *testing.T) {
	send := NewCodec()
	if _, err := send.Encode(NewStreamFrame(RoleRequestor, "ns/topic")); err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if _, err := send.Encode(RequestFrame(1, []byte("ping"))); err != nil {
		t.Fatalf("Request: %v", err)
	}

	recv := NewCodec()
	recv.streamType = RoleRequestor
	recv.haveType = true
	recv.lastFrame = KindRequest
	body := append(putU32(nil, 1), putBytes(nil, []byte("pong"))...)
	record := append([]byte{byte(KindReply)}, body...)
	if _, err := recv.DecodeBody(record); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	// A replier may stream multiple Reply frames for one Request.
	record2 := append([]byte{byte(KindReply)}, body...)
	if _, err := recv.DecodeBody(record2); err != nil {
		t.Fatalf("Reply after Reply: %v", err)
	}
}

func TestCodecReplierRespondsToServerRequest(t *testing.T) {
	recv := NewCodec()
	recv.streamType = RoleReplier
	recv.haveType = true
	recv.lastFrame = KindNewStream

	body := append(putU64(nil, 7), putU32(nil, 1)...)
	body = putBytes(body, []byte("ask"))
	record := append([]byte{byte(KindServerRequest)}, body...)
	f, err := recv.DecodeBody(record)
	if err != nil {
		t.Fatalf("ServerRequest: %v", err)
	}
	if f.ClientID != 7 || f.RequestID != 1 {
		t.Fatalf("got %v", f)
	}

	send := NewCodec()
	send.streamType = RoleReplier
	send.haveType = true
	send.lastFrame = KindServerRequest
	if _, err := send.Encode(ServerReplyFrame(7, 1, []byte("answer"))); err != nil {
		t.Fatalf("ServerReply: %v", err)
	}
}

func TestCodecSignalAlwaysLegalToReceive(t *testing.T) {
	c := NewCodec()
	record := []byte{byte(KindSignal), byte(SignalShutdown)}
	if _, err := c.DecodeBody(record); err != nil {
		t.Fatalf("Signal from Init: %v", err)
	}
}

func TestCodecSignalNeverLegalToSend(t *testing.T) {
	c := NewCodec()
	if _, err := c.Encode(SignalFrame(SignalShutdown)); err == nil {
		t.Fatal("expected error: clients must not send Signal frames")
	}
}

func TestCodecRejectsOversizeFrame(t *testing.T) {
	c := NewCodec()
	if _, err := c.Encode(NewStreamFrame(RolePublisher, "ns/topic")); err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	big := make([]byte, MaxFrameSize+1)
	if _, err := c.Encode(MessageFrame(big)); err == nil {
		t.Fatal("expected FrameTooLargeError")
	} else if _, ok := err.(*FrameTooLargeError); !ok {
		t.Fatalf("expected *FrameTooLargeError, got %T", err)
	}
}

func TestCodecPeerMirrorsReplierTraffic(t *testing.T) {
	peer := NewPeerCodec()
	peer.Bind(RoleReplier, "rpc/echo")

	if _, err := peer.Encode(ServerRequestFrame(9, 4, []byte("ask"))); err != nil {
		t.Fatalf("peer sending ServerRequest on replier stream: %v", err)
	}

	body := append(putU64(nil, 9), putU32(nil, 4)...)
	body = putBytes(body, []byte("answer"))
	record := append([]byte{byte(KindServerReply)}, body...)
	if _, err := peer.DecodeBody(record); err != nil {
		t.Fatalf("peer receiving ServerReply from replier stream: %v", err)
	}
}

func TestCodecPeerRejectsWrongDirection(t *testing.T) {
	peer := NewPeerCodec()
	peer.Bind(RolePublisher, "orders/created")

	if _, err := peer.Encode(MessageFrame([]byte("x"))); err == nil {
		t.Fatal("peer of a publisher stream must not send Message, only receive it")
	}
}

func TestCodecEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	if err := w.WriteFrame(NewStreamFrame(RoleSubscriber, "ns/topic")); err != nil {
		t.Fatalf("WriteFrame NewStream: %v", err)
	}
	if err := w.WriteFrame(SignalFrame(SignalShutdown)); err == nil {
		t.Fatal("expected error: clients must not write Signal frames")
	}

	r := NewFrameReader(&buf)
	f, err := r.ReadNewStream()
	if err != nil {
		t.Fatalf("ReadNewStream: %v", err)
	}
	if f.Kind != KindNewStream || f.Role != RoleSubscriber || f.Path != "ns/topic" {
		t.Fatalf("got %v", f)
	}
}
