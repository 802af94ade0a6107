package storage

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// modeHeader is the start of an uncompressed local database file.
func modeHeader(mode uint32, count int32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, mode)
	binary.Write(&buf, binary.LittleEndian, count)
	return buf.Bytes()
}

func TestCompressedFileDetection(t *testing.T) {
	for mode := uint32(0); mode < 7; mode++ {
		plain := modeHeader(mode, 1000)
		if IsCompressed(plain) {
			t.Errorf("mode %d header taken for a zstd frame", mode)
		}
		packed := CompressBytes(plain)
		if !IsCompressed(packed) {
			t.Errorf("compressed mode %d header not detected", mode)
		}
		back, err := DecompressBytes(packed)
		if err != nil {
			t.Fatalf("DecompressBytes returned error: %v", err)
		}
		if !bytes.Equal(back, plain) {
			t.Errorf("mode %d header changed: %v", mode, back)
		}
	}
	if IsCompressed(nil) || IsCompressed(zstdMagic[:3]) {
		t.Error("short input taken for a zstd frame")
	}
}

func TestReadFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storage_compress")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	content := bytes.Repeat(modeHeader(3, 12), 64)
	plainPath := filepath.Join(tmpDir, "plain")
	packedPath := filepath.Join(tmpDir, "packed")
	if err := os.WriteFile(plainPath, content, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(packedPath, CompressBytes(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, raw, err := readFile(plainPath)
	if err != nil || !bytes.Equal(got, content) || !bytes.Equal(raw, content) {
		t.Errorf("plain file read as %d/%d bytes, err %v", len(got), len(raw), err)
	}
	got, raw, err = readFile(packedPath)
	if err != nil || !bytes.Equal(got, content) {
		t.Fatalf("compressed file read as %d bytes, err %v", len(got), err)
	}
	if len(raw) >= len(content) || !IsCompressed(raw) {
		t.Errorf("raw bytes of the compressed file are not the stored frame")
	}

	corrupt := append(append([]byte{}, zstdMagic...), "not a valid frame"...)
	if err := os.WriteFile(packedPath, corrupt, 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readFile(packedPath); err == nil {
		t.Error("corrupt frame read without error")
	}
	if _, _, err := readFile(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("missing file read without error")
	}
}
