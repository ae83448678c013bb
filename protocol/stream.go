package protocol

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

func readSizedRecord(r *bufio.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if size == 0 || int(size) > MaxFrameSize+1 {
		return nil, &FrameTooLargeError{Size: int(size), Max: MaxFrameSize}
	}
	record := make([]byte, size)
	if _, err := io.ReadFull(r, record); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return record, nil
}

// FrameReader decodes a sequence of Frame values from an underlying byte
// stream, enforcing MaxFrameSize and the receive-direction state machine
// via a Codec shared with the stream's FrameWriter. One FrameReader per
// logical stream half, not shared across goroutines.
type FrameReader struct {
	r     *bufio.Reader
	codec *Codec
}

// NewFrameReader wraps r with framing and state-machine enforcement using
// a private, freshly initialized Codec.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r), codec: NewCodec()}
}

// ReadFrame blocks until a complete frame is available, returning it once
// decoded and validated. io.EOF is returned unwrapped when the peer closed
// the stream between frames.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	record, err := readSizedRecord(fr.r)
	if err != nil {
		return Frame{}, err
	}
	return fr.codec.DecodeBody(record)
}

// ReadNewStream performs the one read that is exempt from the normal
// receive-direction state machine: the broker's accept path calls this for
// the very first frame of a freshly opened channel, and seeds the codec
// from it via Codec.Bind instead of running it through the state machine.
// It returns an error if the first frame is some other kind.
func (fr *FrameReader) ReadNewStream() (Frame, error) {
	record, err := readSizedRecord(fr.r)
	if err != nil {
		return Frame{}, err
	}
	if len(record) < 1 {
		return Frame{}, errShortBuffer
	}
	if Kind(record[0]) != KindNewStream {
		return Frame{}, errors.Errorf("protocol: expected NewStream as first frame, got %s", Kind(record[0]))
	}
	f, err := decodeBody(KindNewStream, record[1:])
	if err != nil {
		return Frame{}, err
	}
	fr.codec.Bind(f.Role, f.Path)
	return f, nil
}

// FrameWriter encodes Frame values onto an underlying byte stream,
// enforcing the send-direction state machine via a Codec shared with the
// stream's FrameReader.
type FrameWriter struct {
	w     io.Writer
	codec *Codec
}

// NewFrameWriter wraps w with framing and state-machine enforcement using
// a private, freshly initialized Codec.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, codec: NewCodec()}
}

// WriteFrame validates and writes f, returning any encode or I/O error.
func (fw *FrameWriter) WriteFrame(f Frame) error {
	wire, err := fw.codec.Encode(f)
	if err != nil {
		return err
	}
	_, err = fw.w.Write(wire)
	return errors.Wrap(err, "protocol: write frame")
}

// Stream pairs a FrameReader and FrameWriter over the two halves of a
// single bidirectional logical channel (one QUIC stream, in the broker's
// transportquic adapter). Both halves validate against the same Codec —
// one stream_type/path/last_frame timeline — which Split preserves: the
// detached halves keep sharing it, so a reply sent on the write half is
// judged against the request the read half actually saw.
type Stream struct {
	reader *FrameReader
	writer *FrameWriter
	closer io.Closer
}

// NewStream builds a Stream from a combined read/write/close handle, such
// as a quic.Stream, for the endpoint that will originate the channel (send
// its NewStream frame). Both directions share one Codec.
func NewStream(rwc io.ReadWriteCloser) *Stream {
	codec := NewCodec()
	return &Stream{
		reader: &FrameReader{r: bufio.NewReader(rwc), codec: codec},
		writer: &FrameWriter{w: rwc, codec: codec},
		closer: rwc,
	}
}

// AcceptStream builds a Stream for the broker's side of a channel a client
// just opened. Call ReadNewStream first to learn the client's declared
// role and topic path before exchanging any other frames.
func AcceptStream(rwc io.ReadWriteCloser) *Stream {
	codec := NewPeerCodec()
	return &Stream{
		reader: &FrameReader{r: bufio.NewReader(rwc), codec: codec},
		writer: &FrameWriter{w: rwc, codec: codec},
		closer: rwc,
	}
}

// Path returns the topic path learned from this stream's NewStream frame.
func (s *Stream) Path() string { return s.reader.codec.Path() }

// Send writes f on the stream's send half.
func (s *Stream) Send(f Frame) error { return s.writer.WriteFrame(f) }

// PollNext blocks for the next frame on the stream's receive half.
func (s *Stream) PollNext() (Frame, error) { return s.reader.ReadFrame() }

// ReadNewStream delegates to the receive half; see FrameReader.ReadNewStream.
func (s *Stream) ReadNewStream() (Frame, error) { return s.reader.ReadNewStream() }

// Split detaches independent FrameReader/FrameWriter halves that may be
// driven from separate goroutines: at most one goroutine reading, at
// most one writing at a time. Both halves keep sharing the stream's
// Codec (its internal mutex covers the concurrent state transitions), so
// the legal-sequence checks still see one interleaved frame timeline.
func (s *Stream) Split() (*FrameReader, *FrameWriter) {
	return &FrameReader{r: s.reader.r, codec: s.reader.codec}, &FrameWriter{w: s.writer.w, codec: s.writer.codec}
}

// Finish half-closes the stream's send direction, if the underlying
// transport supports it, signaling the peer that no more frames will be
// written. Transports that only expose io.Closer treat Finish as Close.
func (s *Stream) Finish() error {
	type halfCloser interface {
		CloseWrite() error
	}
	if hc, ok := s.closer.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return s.Close()
}

// Close closes the underlying transport stream.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
