package compressor

import (
	"bytes"
	"testing"
)

func TestCompressorsRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("selium-orders-created-payload "), 64)

	for _, name := range []string{"none", "lz4", "zstd"} {
		t.Run(name, func(t *testing.T) {
			c, err := Lookup(name)
			if err != nil {
				t.Fatalf("Lookup(%q): %v", name, err)
			}
			compressed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			decompressed, err := c.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(decompressed, payload) {
				t.Fatalf("round trip mismatch for %q", name)
			}
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("brotli"); err == nil {
		t.Fatal("expected error for unregistered compressor name")
	}
}
