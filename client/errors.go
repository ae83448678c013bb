// Package client implements the client side of the Selium protocol: the
// four stream roles (publisher, subscriber, requestor, replier), each
// wrapped in a keep-alive supervisor that transparently re-establishes a
// lost stream with backoff, replaying its original registration and
// surfacing only unrecoverable errors to the caller.
package client

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/selium-io/selium/protocol"
)

// TooManyRetriesError is returned by a stream's keep-alive supervisor
// once a recoverable transport error's retry count exceeds the
// configured BackoffStrategy's MaxAttempts.
type TooManyRetriesError struct {
	Path     string
	Attempts int
}

func (e *TooManyRetriesError) Error() string {
	return fmt.Sprintf("client: %s: exceeded %d reconnect attempts", e.Path, e.Attempts)
}

// RequestTimeoutError is returned locally by Requestor.Request when a
// per-request timeout elapses before a Reply arrives. No cancel frame is
// sent to the broker; a late reply, if it ever arrives, is discarded by
// the correlation table.
type RequestTimeoutError struct {
	RequestID uint32
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("client: request %d timed out", e.RequestID)
}

// isRecoverable classifies a transport-layer error as recoverable by
// keep-alive (connection lost, write/read failure, idle timeout) versus
// unrecoverable (protocol mismatch, or a Signal the broker sent on
// purpose to refuse this stream). Protocol and auth errors are surfaced
// immediately without retry.
func isRecoverable(err error) bool {
	if err == nil {
		return false
	}
	switch errors.Cause(err).(type) {
	case *protocol.FrameOutOfOrderError, *protocol.FrameTooLargeError, *protocol.UnknownKindError:
		return false
	}
	var sig *SignalError
	if errors.As(err, &sig) {
		return false
	}
	return true
}

// SignalError wraps a Signal frame the broker sent in place of the
// reply a stream was expecting (e.g. ReplierAlreadyBound,
// InvalidTopicName, CloudAuthFailed). These are always unrecoverable:
// retrying without changing registration would only repeat the same
// rejection.
type SignalError struct {
	Kind protocol.SignalKind
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("client: broker signaled %s", e.Kind)
}

// errShortBatch is returned by decodeBatch when a Batch frame's body is
// truncated relative to its own length prefixes — a corrupted or
// non-Selium payload reached the subscriber.
var errShortBatch = errors.New("client: truncated batch frame")
