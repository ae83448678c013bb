package protocol

import "fmt"

// FrameTooLargeError is returned by Encode when a frame's body would exceed
// MaxFrameSize.
type FrameTooLargeError struct {
	Size, Max int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame size (%d bytes) is greater than maximum allowed size (%d bytes)", e.Size, e.Max)
}

// FrameOutOfOrderError is returned by the state machine when a frame is
// illegal for the codec's current direction, role, and last-frame state.
type FrameOutOfOrderError struct {
	Got, After Kind
}

func (e *FrameOutOfOrderError) Error() string {
	return fmt.Sprintf("unexpected frame %s received after %s", e.Got, e.After)
}

// UnknownKindError is returned by Decode when the wire byte does not map to
// a known frame kind.
type UnknownKindError struct {
	Kind uint8
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown frame kind %d on the wire", e.Kind)
}
