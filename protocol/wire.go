package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// errShortBuffer is returned by the decode helpers when a buffer holds
// fewer bytes than the field being read; DecodeBody and ReadFrame return
// it to their caller unchanged.
var errShortBuffer = errors.New("protocol: short buffer")

func putU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func putU64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func putBytes(dst []byte, b []byte) []byte {
	dst = putU32(dst, uint32(len(b)))
	return append(dst, b...)
}

func putString(dst []byte, s string) []byte {
	return putBytes(dst, []byte(s))
}

func getU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, errShortBuffer
	}
	return binary.LittleEndian.Uint32(buf), buf[4:], nil
}

func getU64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errShortBuffer
	}
	return binary.LittleEndian.Uint64(buf), buf[8:], nil
}

func getBytes(buf []byte) ([]byte, []byte, error) {
	n, rest, err := getU32(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, errShortBuffer
	}
	out := make([]byte, n)
	copy(out, rest[:n])
	return out, rest[n:], nil
}

func getString(buf []byte) (string, []byte, error) {
	b, rest, err := getBytes(buf)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}
