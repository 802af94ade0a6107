package local

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/steakknife/hamming"

	"cdvs/internal/bitstream"
	"cdvs/internal/types"
)

const (
	MaxFeatures  = 16000
	maxNameBytes = 255
)

var ErrSetSize = errors.New("compressed set size out of range")

// CompressedSet is the compact record stored for each database image:
// rounded coordinates plus codes packed four values per byte (2 is stored
// as 3 so the Hamming distance grows with the ternary distance).
type CompressedSet struct {
	Name           string
	X              []uint16
	Y              []uint16
	Codes          []byte // Len() * DescLen bytes
	DescLen        int    // bytes per keypoint
	OriginalWidth  int
	OriginalHeight int
	Width          int
	Height         int
}

// NewCompressedSet allocates a set of n keypoints with descLen bytes each.
// An empty set stands for an image without local features.
func NewCompressedSet(n, descLen int) (*CompressedSet, error) {
	if n < 0 || n > MaxFeatures {
		return nil, fmt.Errorf("%w: %d keypoints", ErrSetSize, n)
	}
	if descLen <= 0 || descLen > MaxGroups {
		return nil, fmt.Errorf("%w: %d bytes per keypoint", ErrSetSize, descLen)
	}
	return &CompressedSet{
		X:       make([]uint16, n),
		Y:       make([]uint16, n),
		Codes:   make([]byte, n*descLen),
		DescLen: descLen,
	}, nil
}

// Compress packs the ternarized keypoints of fs, optionally only the ones
// flagged relevant.
func Compress(fs *types.FeatureSet, relevantOnly bool) (*CompressedSet, error) {
	n := fs.Len()
	if relevantOnly {
		n = fs.RelevantCount()
	}
	nElems := ElementsPerGroup
	if fs.Len() > 0 {
		nElems = len(fs.Features[0].Code)
	}
	cs, err := NewCompressedSet(n, nElems/ElementsPerGroup)
	if err != nil {
		return nil, err
	}
	cs.OriginalWidth, cs.OriginalHeight = fs.OriginalWidth, fs.OriginalHeight
	cs.Width, cs.Height = fs.Width, fs.Height

	k := 0
	for i := range fs.Features {
		kp := &fs.Features[i]
		if relevantOnly && !kp.Relevant {
			continue
		}
		if len(kp.Code) != nElems {
			return nil, fmt.Errorf("keypoint %d has %d ternary values, expected %d", i, len(kp.Code), nElems)
		}
		cs.X[k] = uint16(kp.X + 0.5)
		cs.Y[k] = uint16(kp.Y + 0.5)
		packCode(cs.Code(k), kp.Code)
		k++
	}
	return cs, nil
}

func packCode(dst []byte, code []uint8) {
	for i, v := range code {
		if v == 2 {
			v = 3
		}
		dst[i>>2] |= (v & 3) << ((i & 3) << 1)
	}
}

// Len returns the number of keypoints.
func (cs *CompressedSet) Len() int { return len(cs.X) }

// Code returns the packed code of keypoint k.
func (cs *CompressedSet) Code(k int) []byte {
	return cs.Codes[k*cs.DescLen : (k+1)*cs.DescLen]
}

// Distance is the Hamming distance between the first n bytes of two codes.
func Distance(a, b []byte, n int) int {
	return hamming.Bytes(a[:n], b[:n])
}

// Write stores the set in the little-endian database layout.
func (cs *CompressedSet) Write(w io.Writer) error {
	le := binary.LittleEndian
	fields := []interface{}{
		int32(len(cs.Name)), []byte(cs.Name),
		int32(cs.Len()), int32(cs.DescLen),
		cs.X, cs.Y, cs.Codes,
		int32(cs.OriginalWidth), int32(cs.OriginalHeight), int32(cs.Height), int32(cs.Width),
	}
	for _, f := range fields {
		if err := binary.Write(w, le, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadCompressedSet reads a set written by Write. Truncated or malformed
// records give a bitstream.DecodeError.
func ReadCompressedSet(r io.Reader) (*CompressedSet, error) {
	const op = "compressed set"
	le := binary.LittleEndian
	var nameLen int32
	if err := binary.Read(r, le, &nameLen); err != nil {
		return nil, &bitstream.DecodeError{Op: op, Err: err}
	}
	if nameLen <= 0 || nameLen > maxNameBytes {
		return nil, bitstream.Decodef(op, "invalid file name length %d", nameLen)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, &bitstream.DecodeError{Op: op, Err: err}
	}
	var hdr [2]int32
	if err := binary.Read(r, le, &hdr); err != nil {
		return nil, &bitstream.DecodeError{Op: op, Err: err}
	}
	cs, err := NewCompressedSet(int(hdr[0]), int(hdr[1]))
	if err != nil {
		return nil, &bitstream.DecodeError{Op: op, Err: err}
	}
	cs.Name = string(name)
	for _, f := range []interface{}{cs.X, cs.Y, cs.Codes} {
		if err := binary.Read(r, le, f); err != nil {
			return nil, &bitstream.DecodeError{Op: op, Err: err}
		}
	}
	var res [4]int32
	if err := binary.Read(r, le, &res); err != nil {
		return nil, &bitstream.DecodeError{Op: op, Err: err}
	}
	cs.OriginalWidth, cs.OriginalHeight = int(res[0]), int(res[1])
	cs.Height, cs.Width = int(res[2]), int(res[3])
	return cs, nil
}
