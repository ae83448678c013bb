package broker

import (
	"github.com/selium-io/selium/msglog"
	"github.com/selium-io/selium/protocol"
)

// resolveOffset translates a subscriber's requested protocol.Offset into a
// concrete absolute log offset, clamping FromEnd against the log's current
// entry count.
func resolveOffset(off protocol.Offset, log *msglog.Log) uint64 {
	if off.Kind == protocol.OffsetFromEnd {
		return log.ClampFromEnd(off.N)
	}
	return off.N
}
