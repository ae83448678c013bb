package compressor

// None is the zero-value Compressor: messages pass through unmodified.
// It is the default a stream builder falls back to when the caller never
// selects a codec.
type None struct{}

func (None) Name() string { return "none" }

func (None) Compress(src []byte) ([]byte, error) { return src, nil }

func (None) Decompress(src []byte) ([]byte, error) { return src, nil }
