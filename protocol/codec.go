package protocol

import "sync"

// Codec is a stateful, direction-aware translator between Frame values and
// their wire encoding. One Codec serves both directions of a logical
// stream — the send and receive halves share its last-frame state, which
// is what lets a requestor's receive half accept the first Reply only
// after its send half actually wrote a Request (and symmetrically for
// repliers). Stream.Split hands both halves the same instance; the
// internal mutex makes the shared state transitions safe when the halves
// run on different goroutines.
//
// The legality table enforced by state() is written from the stream
// originator's point of view; the peer field lets the same table validate
// the other endpoint (see NewPeerCodec).
type Codec struct {
	mu         sync.Mutex
	lastFrame  Kind
	streamType Role
	haveType   bool
	path       string
	peer       bool
}

// NewCodec returns a Codec in its initial state, for use by the endpoint
// that originates the stream (the one that will send NewStream).
func NewCodec() *Codec {
	return &Codec{lastFrame: KindInit}
}

// NewPeerCodec returns a Codec for the other endpoint of a stream someone
// else originated — the broker's side of every client-opened channel. The
// legality table is written from the originator's point of view; a peer
// codec validates the same table with the sense of "sending"
// inverted, since whatever the originator sends, the peer receives, and
// vice versa. Bind the peer codec's stream_type/path from the NewStream
// frame the originator sent (see Codec.Bind), not by calling state().
func NewPeerCodec() *Codec {
	return &Codec{lastFrame: KindInit, peer: true}
}

// Path returns the topic path learned from the stream's NewStream frame,
// or "" if none has been processed yet.
func (c *Codec) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Bind seeds the codec as though it had already processed a NewStream
// frame for role/path, without running it through the state machine.
// A codec from NewCodec never accepts NewStream on receive (see
// validNewStream); the broker's accept path parses a connecting client's
// first frame directly off the wire and calls Bind instead of DecodeBody
// for it.
func (c *Codec) Bind(role Role, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamType = role
	c.haveType = true
	c.path = path
	c.lastFrame = KindNewStream
}

// StreamType returns the role learned from the stream's NewStream frame and
// whether one has been learned yet.
func (c *Codec) StreamType() (Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamType, c.haveType
}

func (c *Codec) isPublisher() bool  { return c.haveType && c.streamType == RolePublisher }
func (c *Codec) isSubscriber() bool { return c.haveType && c.streamType == RoleSubscriber }
func (c *Codec) isRequestor() bool  { return c.haveType && c.streamType == RoleRequestor }
func (c *Codec) isReplier() bool    { return c.haveType && c.streamType == RoleReplier }

func oneOf(k Kind, set ...Kind) bool {
	for _, s := range set {
		if k == s {
			return true
		}
	}
	return false
}

func (c *Codec) validNewStream(sending bool) bool {
	return sending && c.lastFrame == KindInit
}

func (c *Codec) validPubSub(sending bool) bool {
	return ((c.isPublisher() && sending) || (c.isSubscriber() && !sending)) &&
		oneOf(c.lastFrame, KindNewStream, KindMessage, KindBatch, KindSignal)
}

func (c *Codec) validReply(sending bool) bool {
	return c.isRequestor() && !sending &&
		oneOf(c.lastFrame, KindRequest, KindReply, KindSignal)
}

func (c *Codec) validRequest(sending bool) bool {
	return c.isRequestor() && sending &&
		oneOf(c.lastFrame, KindNewStream, KindRequest, KindReply, KindSignal)
}

func (c *Codec) validServerReply(sending bool) bool {
	return c.isReplier() && sending &&
		oneOf(c.lastFrame, KindServerRequest, KindServerReply, KindSignal)
}

func (c *Codec) validServerRequest(sending bool) bool {
	return c.isReplier() && !sending &&
		oneOf(c.lastFrame, KindNewStream, KindServerRequest, KindServerReply, KindSignal)
}

// state validates frame against the codec's current direction and stream
// role, then (on success) advances lastFrame / learns the stream type.
// sending==true means the frame is about to be written to the peer;
// sending==false means it was just read from the peer.
func (c *Codec) state(f Frame, sending bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer {
		sending = !sending
	}

	switch {
	case (f.Kind == KindMessage || f.Kind == KindBatch) && c.validPubSub(sending):
	case f.Kind == KindNewStream && c.validNewStream(sending):
		c.streamType = f.Role
		c.haveType = true
		c.path = f.Path
	case f.Kind == KindReply && c.validReply(sending):
	case f.Kind == KindRequest && c.validRequest(sending):
	case f.Kind == KindServerReply && c.validServerReply(sending):
	case f.Kind == KindServerRequest && c.validServerRequest(sending):
	case f.Kind == KindSignal && !sending:
	default:
		return &FrameOutOfOrderError{Got: f.Kind, After: c.lastFrame}
	}

	c.lastFrame = f.Kind
	return nil
}

// Encode validates f against the send-direction state machine and returns
// its wire encoding: a little-endian u32 body length, a one-byte kind
// discriminant, and the kind-specific body.
func (c *Codec) Encode(f Frame) ([]byte, error) {
	if err := c.state(f, true); err != nil {
		return nil, err
	}

	size := f.bodySize()
	if size > MaxFrameSize {
		return nil, &FrameTooLargeError{Size: size, Max: MaxFrameSize}
	}

	body := encodeBody(f)
	out := make([]byte, 0, 5+len(body))
	out = putU32(out, uint32(1+len(body)))
	out = append(out, byte(f.Kind))
	out = append(out, body...)
	return out, nil
}

// DecodeBody parses the kind byte plus body (i.e. the record that follows
// the 4-byte length prefix already consumed by the transport layer — see
// ReadFrame in stream.go), validates it against the receive-direction
// state machine, and returns the decoded Frame.
func (c *Codec) DecodeBody(record []byte) (Frame, error) {
	if len(record) < 1 {
		return Frame{}, errShortBuffer
	}
	kind := Kind(record[0])
	f, err := decodeBody(kind, record[1:])
	if err != nil {
		return Frame{}, err
	}
	if err := c.state(f, false); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func encodeBody(f Frame) []byte {
	var out []byte
	switch f.Kind {
	case KindNewStream:
		out = append(out, byte(f.Role))
		out = putString(out, f.Path)
	case KindMessage, KindBatch:
		out = putBytes(out, f.Bytes)
	case KindRequest, KindReply:
		out = putU32(out, f.RequestID)
		out = putBytes(out, f.Bytes)
	case KindServerRequest, KindServerReply:
		out = putU64(out, f.ClientID)
		out = putU32(out, f.RequestID)
		out = putBytes(out, f.Bytes)
	case KindSignal:
		out = append(out, byte(f.Signal))
	}
	return out
}

func decodeBody(kind Kind, body []byte) (Frame, error) {
	switch kind {
	case KindNewStream:
		if len(body) < 1 {
			return Frame{}, errShortBuffer
		}
		role := Role(body[0])
		path, _, err := getString(body[1:])
		if err != nil {
			return Frame{}, err
		}
		return NewStreamFrame(role, path), nil
	case KindMessage:
		b, _, err := getBytes(body)
		if err != nil {
			return Frame{}, err
		}
		return MessageFrame(b), nil
	case KindBatch:
		b, _, err := getBytes(body)
		if err != nil {
			return Frame{}, err
		}
		return BatchFrame(b), nil
	case KindRequest:
		id, rest, err := getU32(body)
		if err != nil {
			return Frame{}, err
		}
		b, _, err := getBytes(rest)
		if err != nil {
			return Frame{}, err
		}
		return RequestFrame(id, b), nil
	case KindReply:
		id, rest, err := getU32(body)
		if err != nil {
			return Frame{}, err
		}
		b, _, err := getBytes(rest)
		if err != nil {
			return Frame{}, err
		}
		return ReplyFrame(id, b), nil
	case KindServerRequest:
		cid, rest, err := getU64(body)
		if err != nil {
			return Frame{}, err
		}
		id, rest, err := getU32(rest)
		if err != nil {
			return Frame{}, err
		}
		b, _, err := getBytes(rest)
		if err != nil {
			return Frame{}, err
		}
		return ServerRequestFrame(cid, id, b), nil
	case KindServerReply:
		cid, rest, err := getU64(body)
		if err != nil {
			return Frame{}, err
		}
		id, rest, err := getU32(rest)
		if err != nil {
			return Frame{}, err
		}
		b, _, err := getBytes(rest)
		if err != nil {
			return Frame{}, err
		}
		return ServerReplyFrame(cid, id, b), nil
	case KindSignal:
		if len(body) < 1 {
			return Frame{}, errShortBuffer
		}
		return SignalFrame(SignalKind(body[0])), nil
	default:
		return Frame{}, &UnknownKindError{Kind: uint8(kind)}
	}
}
