// Package compressor implements the pluggable compress/decompress
// capability contract used by the stream builders:
// message bytes are compressed by the publishing client and decompressed
// by each subscriber, as one opaque step in the stream builder pipeline
// (see client/builder.go). The broker never inspects or
// compresses payloads itself; it stores and forwards whatever bytes the
// publisher already encoded.
package compressor

import "github.com/pkg/errors"

// Compressor is the pluggable capability contract: Compress transforms
// plaintext bytes before they are written to a Message or Batch frame;
// Decompress reverses it on the subscriber side. Implementations must be
// safe for concurrent use by independent streams, but not concurrently by
// one stream (a stream's builder owns exactly one Compressor instance).
type Compressor interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// ErrUnknownCompressor is returned by Lookup for a name with no registered
// implementation.
var ErrUnknownCompressor = errors.New("compressor: unknown compressor name")

// Lookup resolves a Compressor by its on-the-wire name, for builders that
// select compression from client configuration rather than code.
func Lookup(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return None{}, nil
	case "lz4":
		return NewLZ4(), nil
	case "zstd":
		return NewZstd()
	default:
		return nil, errors.Wrapf(ErrUnknownCompressor, "%q", name)
	}
}
