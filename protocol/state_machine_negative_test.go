package protocol

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// rawRecord builds the kind-byte-plus-body record DecodeBody expects, i.e.
// the bytes that follow the 4-byte length prefix a FrameReader already
// stripped off the wire.
func rawRecord(f Frame) []byte {
	return append([]byte{byte(f.Kind)}, encodeBody(f)...)
}

// The eleven illegal frame sequences, one It per scenario, each expected
// to raise FrameOutOfOrderError.
var _ = Describe("Codec state machine", func() {
	It("rejects a frame sent before NewStream", func() {
		c := NewCodec()
		_, err := c.Encode(MessageFrame([]byte("x")))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a publisher stream receiving Message", func() {
		c := NewCodec()
		c.streamType, c.haveType, c.lastFrame = RolePublisher, true, KindNewStream
		_, err := c.DecodeBody(rawRecord(MessageFrame([]byte("x"))))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a subscriber stream sending Message", func() {
		c := NewCodec()
		c.streamType, c.haveType, c.lastFrame = RoleSubscriber, true, KindNewStream
		_, err := c.Encode(MessageFrame([]byte("x")))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects NewStream on receive, regardless of stream type", func() {
		c := NewCodec()
		_, err := c.DecodeBody(rawRecord(NewStreamFrame(RolePublisher, "ns/topic")))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a replier sending Reply", func() {
		c := NewCodec()
		c.streamType, c.haveType, c.lastFrame = RoleReplier, true, KindServerRequest
		_, err := c.Encode(ReplyFrame(1, []byte("x")))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a requestor receiving Request", func() {
		c := NewCodec()
		c.streamType, c.haveType, c.lastFrame = RoleRequestor, true, KindNewStream
		_, err := c.DecodeBody(rawRecord(RequestFrame(1, []byte("x"))))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a requestor receiving ServerReply", func() {
		c := NewCodec()
		c.streamType, c.haveType, c.lastFrame = RoleRequestor, true, KindRequest
		_, err := c.DecodeBody(rawRecord(ServerReplyFrame(1, 1, []byte("x"))))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a replier receiving ServerReply", func() {
		c := NewCodec()
		c.streamType, c.haveType, c.lastFrame = RoleReplier, true, KindNewStream
		_, err := c.DecodeBody(rawRecord(ServerReplyFrame(1, 1, []byte("x"))))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a replier sending ServerReply before any request arrived", func() {
		c := NewCodec()
		c.streamType, c.haveType, c.lastFrame = RoleReplier, true, KindNewStream
		_, err := c.Encode(ServerReplyFrame(1, 1, []byte("x")))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a client sending Signal", func() {
		c := NewCodec()
		_, err := c.Encode(SignalFrame(SignalShutdown))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})

	It("rejects a repeated NewStream on the same stream", func() {
		c := NewCodec()
		_, err := c.Encode(NewStreamFrame(RolePublisher, "ns/topic"))
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Encode(NewStreamFrame(RolePublisher, "ns/topic"))
		Expect(err).To(BeAssignableToTypeOf(&FrameOutOfOrderError{}))
	})
})
