package compressor

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
)

// LZ4 is an opt-in compressor for Message/Batch payloads: fast enough
// to run inline on the publish path with negligible overhead.
type LZ4 struct{}

// NewLZ4 returns the lz4 Compressor.
func NewLZ4() LZ4 { return LZ4{} }

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "compressor: lz4 compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compressor: lz4 finalize")
	}
	return buf.Bytes(), nil
}

func (LZ4) Decompress(src []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "compressor: lz4 decompress")
	}
	return out, nil
}
