// Package protocol implements the Selium wire format: the frame union, the
// binary codec that translates frames to and from bytes, and the
// per-direction state machine that enforces the legal frame sequence for
// each stream role.
package protocol

import "fmt"

// Kind is the one-byte discriminant written on the wire ahead of a frame's
// body. Values are stable across releases; never renumber.
type Kind uint8

const (
	KindInit Kind = iota // pseudo-kind: codec state before any frame is sent/received
	KindNewStream
	KindMessage
	KindBatch
	KindRequest
	KindReply
	KindServerRequest
	KindServerReply
	KindSignal
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "Init"
	case KindNewStream:
		return "NewStream"
	case KindMessage:
		return "Message"
	case KindBatch:
		return "Batch"
	case KindRequest:
		return "Request"
	case KindReply:
		return "Reply"
	case KindServerRequest:
		return "ServerRequest"
	case KindServerReply:
		return "ServerReply"
	case KindSignal:
		return "Signal"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Role identifies which of the four stream roles a channel has declared
// itself to be, via its NewStream frame.
type Role uint8

const (
	RolePublisher Role = iota
	RoleSubscriber
	RoleRequestor
	RoleReplier
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "Publisher"
	case RoleSubscriber:
		return "Subscriber"
	case RoleRequestor:
		return "Requestor"
	case RoleReplier:
		return "Replier"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// SignalKind enumerates the broker-to-client-only Signal payloads. The
// legacy Error/Ok frame set from an earlier protocol draft is deliberately
// not represented here.
type SignalKind uint8

const (
	SignalCloudAuthFailed SignalKind = iota
	SignalInvalidTopicName
	SignalReplierAlreadyBound
	SignalShutdown
	SignalShutdownInProgress
	SignalStreamClosedPrematurely
	SignalUnknownError
)

func (s SignalKind) String() string {
	switch s {
	case SignalCloudAuthFailed:
		return "CloudAuthFailed"
	case SignalInvalidTopicName:
		return "InvalidTopicName"
	case SignalReplierAlreadyBound:
		return "ReplierAlreadyBound"
	case SignalShutdown:
		return "Shutdown"
	case SignalShutdownInProgress:
		return "ShutdownInProgress"
	case SignalStreamClosedPrematurely:
		return "StreamClosedPrematurely"
	case SignalUnknownError:
		return "UnknownError"
	default:
		return fmt.Sprintf("SignalKind(%d)", uint8(s))
	}
}

// MaxFrameSize bounds the size of any one framed record (kind byte plus
// body) that may appear on the wire.
const MaxFrameSize = 1 << 20 // 1 MiB

// Frame is the tagged-union wire message. Exactly one payload field is
// meaningful for a given Kind; the rest are zero values. A struct (rather
// than an interface per variant) keeps encode/decode allocation-free for
// the hot Message/Batch path.
type Frame struct {
	Kind Kind

	// NewStream
	Role Role
	Path string

	// Message, Batch
	Bytes []byte

	// Request, Reply
	RequestID uint32

	// ServerRequest, ServerReply
	ClientID uint64

	// Signal
	Signal SignalKind
}

func NewStreamFrame(role Role, path string) Frame {
	return Frame{Kind: KindNewStream, Role: role, Path: path}
}

func MessageFrame(b []byte) Frame { return Frame{Kind: KindMessage, Bytes: b} }

func BatchFrame(b []byte) Frame { return Frame{Kind: KindBatch, Bytes: b} }

func RequestFrame(id uint32, b []byte) Frame {
	return Frame{Kind: KindRequest, RequestID: id, Bytes: b}
}

func ReplyFrame(id uint32, b []byte) Frame {
	return Frame{Kind: KindReply, RequestID: id, Bytes: b}
}

func ServerRequestFrame(clientID uint64, reqID uint32, b []byte) Frame {
	return Frame{Kind: KindServerRequest, ClientID: clientID, RequestID: reqID, Bytes: b}
}

func ServerReplyFrame(clientID uint64, reqID uint32, b []byte) Frame {
	return Frame{Kind: KindServerReply, ClientID: clientID, RequestID: reqID, Bytes: b}
}

func SignalFrame(kind SignalKind) Frame { return Frame{Kind: KindSignal, Signal: kind} }

// bodySize estimates the on-wire size of the frame's body (excluding the
// leading size/kind prefix), used to reject oversize frames before the
// encoder touches the output buffer.
func (f Frame) bodySize() int {
	switch f.Kind {
	case KindNewStream:
		return 1 + 4 + len(f.Path)
	case KindMessage, KindBatch:
		return 4 + len(f.Bytes)
	case KindRequest, KindReply:
		return 4 + 4 + len(f.Bytes)
	case KindServerRequest, KindServerReply:
		return 8 + 4 + 4 + len(f.Bytes)
	case KindSignal:
		return 1
	default:
		return 0
	}
}

func (f Frame) String() string {
	switch f.Kind {
	case KindNewStream:
		return fmt.Sprintf("NewStream(%s, %q)", f.Role, f.Path)
	case KindMessage:
		return fmt.Sprintf("Message(%d bytes)", len(f.Bytes))
	case KindBatch:
		return fmt.Sprintf("Batch(%d bytes)", len(f.Bytes))
	case KindRequest:
		return fmt.Sprintf("Request(%d, %d bytes)", f.RequestID, len(f.Bytes))
	case KindReply:
		return fmt.Sprintf("Reply(%d, %d bytes)", f.RequestID, len(f.Bytes))
	case KindServerRequest:
		return fmt.Sprintf("ServerRequest(%d, %d, %d bytes)", f.ClientID, f.RequestID, len(f.Bytes))
	case KindServerReply:
		return fmt.Sprintf("ServerReply(%d, %d, %d bytes)", f.ClientID, f.RequestID, len(f.Bytes))
	case KindSignal:
		return fmt.Sprintf("Signal(%s)", f.Signal)
	default:
		return "Init"
	}
}
