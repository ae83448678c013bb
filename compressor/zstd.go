package compressor

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Zstd is an opt-in compressor for publishers that prefer a higher
// compression ratio over lz4's speed, e.g. archival-heavy topics also
// picked up by the segment archiver (see msglog/archive.go).
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd constructs reusable zstd encoder/decoder instances.
func NewZstd() (Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return Zstd{}, errors.Wrap(err, "compressor: init zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Zstd{}, errors.Wrap(err, "compressor: init zstd decoder")
	}
	return Zstd{enc: enc, dec: dec}, nil
}

func (Zstd) Name() string { return "zstd" }

func (z Zstd) Compress(src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, nil), nil
}

func (z Zstd) Decompress(src []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(src, nil)
	return out, errors.Wrap(err, "compressor: zstd decompress")
}
