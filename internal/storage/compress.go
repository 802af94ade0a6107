package storage

import (
	"bytes"
	"os"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic starts every zstd frame. Uncompressed database files begin with
// a mode id or a signature count, neither of which can match it.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var fileEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))

// CompressBytes wraps an encoded database file in a single zstd frame.
func CompressBytes(src []byte) []byte {
	return fileEncoder.EncodeAll(src, make([]byte, 0, len(src)/2))
}

// The decoder caches its decompressors; DecodeAll is safe for concurrent use.
var fileDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// DecompressBytes undoes CompressBytes.
func DecompressBytes(src []byte) ([]byte, error) {
	return fileDecoder.DecodeAll(src, nil)
}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// readFile returns the content of path, decompressed when it holds a zstd
// frame, together with the raw bytes as stored.
func readFile(path string) (content, raw []byte, err error) {
	raw, err = os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if !IsCompressed(raw) {
		return raw, raw, nil
	}
	content, err = DecompressBytes(raw)
	if err != nil {
		return nil, nil, err
	}
	return content, raw, nil
}
