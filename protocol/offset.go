package protocol

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// OffsetKind distinguishes the two ways a subscriber expresses its
// starting position: an absolute offset, or a count back from the log's
// current end.
type OffsetKind uint8

const (
	OffsetFromBeginning OffsetKind = iota
	OffsetFromEnd
)

// Offset is a subscriber's requested starting position. The frame set has
// no dedicated offset field on NewStream — and a subscriber never sends
// anything after NewStream, per the legality table — so the offset rides
// along in NewStream's existing Path string as a trailing "#b:<n>"
// (FromBeginning) or "#e:<n>" (FromEnd) suffix.
// EncodeSubscriberPath/DecodeSubscriberPath are the only things that need
// to know this encoding exists; everywhere else sees a plain topic path.
type Offset struct {
	Kind OffsetKind
	N    uint64
}

func FromBeginning(n uint64) Offset { return Offset{Kind: OffsetFromBeginning, N: n} }

func FromEnd(n uint64) Offset { return Offset{Kind: OffsetFromEnd, N: n} }

// EncodeSubscriberPath appends off's wire suffix to path, for use by a
// subscriber's NewStream frame.
func EncodeSubscriberPath(path string, off Offset) string {
	tag := "b"
	if off.Kind == OffsetFromEnd {
		tag = "e"
	}
	return path + "#" + tag + ":" + strconv.FormatUint(off.N, 10)
}

// DecodeSubscriberPath splits a subscriber's NewStream path into the
// plain topic path (suitable for ValidateTopicName and topic lookup) and
// the requested Offset. A path with no "#..." suffix decodes as
// FromBeginning(0).
func DecodeSubscriberPath(path string) (string, Offset, error) {
	hash := strings.LastIndexByte(path, '#')
	if hash < 0 {
		return path, FromBeginning(0), nil
	}
	clean, suffix := path[:hash], path[hash+1:]
	tag, numStr, ok := strings.Cut(suffix, ":")
	if !ok {
		return "", Offset{}, errors.Errorf("protocol: malformed subscriber offset suffix %q", suffix)
	}
	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return "", Offset{}, errors.Wrapf(err, "protocol: malformed subscriber offset count %q", numStr)
	}
	switch tag {
	case "b":
		return clean, FromBeginning(n), nil
	case "e":
		return clean, FromEnd(n), nil
	default:
		return "", Offset{}, errors.Errorf("protocol: unknown subscriber offset tag %q", tag)
	}
}
