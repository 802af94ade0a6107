package scfv

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"cdvs/internal/bitstream"
)

// normExponent shapes the signature norm from the visited count.
const normExponent = 0.3

// Signature is a binary global descriptor. Words are always kept in their
// full 32-bit layout; in bit selection mode the unselected bits are zero.
// The visited count and the norm are derived from the visited set by
// SetNorm and never assigned on their own.
type Signature struct {
	Words    [Components]uint32
	VarWords [Components]uint32

	HasVar          bool
	HasBitSelection bool

	visited    Visited
	numVisited int
	norm       float64
}

// NewSignature returns an empty signature with the given layout flags.
func NewSignature(hasVar, hasBitSelection bool) *Signature {
	return &Signature{HasVar: hasVar, HasBitSelection: hasBitSelection}
}

// Visit marks component k and stores its words. Call SetNorm when done.
func (s *Signature) Visit(k int, word, varWord uint32) {
	s.visited.Set(k)
	s.Words[k] = word
	s.VarWords[k] = varWord
}

// SetNorm recomputes the visited count and the norm.
func (s *Signature) SetNorm() {
	s.numVisited = s.visited.Count()
	s.norm = math.Pow(float64(s.numVisited), normExponent)
}

// NumVisited returns the number of visited components.
func (s *Signature) NumVisited() int { return s.numVisited }

// Norm returns visited^0.3.
func (s *Signature) Norm() float64 { return s.norm }

// IsVisited reports whether component k carries a word.
func (s *Signature) IsVisited(k int) bool { return s.visited.Contains(k) }

// VisitedSet returns a copy of the visited components.
func (s *Signature) VisitedSet() Visited { return s.visited }

// carriesVar reports whether variance words are serialized. Bit selected
// signatures never transmit them.
func (s *Signature) carriesVar() bool {
	return s.HasVar && !s.HasBitSelection
}

func (s *Signature) wordBits() int {
	if s.HasBitSelection {
		return SelectedBits
	}
	return WordBits
}

// CompressedNumBits returns the size of the serialized signature.
func (s *Signature) CompressedNumBits() int {
	perWord := s.wordBits()
	if s.carriesVar() {
		perWord *= 2
	}
	return Components + s.numVisited*perWord
}

// Equal reports whether two signatures hold the same data.
func (s *Signature) Equal(o *Signature) bool {
	return s.HasVar == o.HasVar && s.HasBitSelection == o.HasBitSelection &&
		s.visited == o.visited && s.Words == o.Words && s.VarWords == o.VarWords &&
		s.numVisited == o.numVisited && s.norm == o.norm
}

// Write serializes the signature: the visited bitmap, the mean word of each
// visited component, then the variance words. In bit selection mode each
// word is compacted to its selected bits using the masks of m.
func (s *Signature) Write(w *bitstream.Writer, m *Model) {
	for k := 0; k < Components; k++ {
		if s.visited.Contains(k) {
			w.WriteBit(1)
		} else {
			w.WriteBit(0)
		}
	}
	for k := 0; k < Components; k++ {
		if !s.visited.Contains(k) {
			continue
		}
		if s.HasBitSelection {
			w.WriteBits(uint64(compact(s.Words[k], m.selectionMask(k))), SelectedBits)
		} else {
			w.WriteBits(uint64(s.Words[k]), WordBits)
		}
	}
	if s.carriesVar() {
		for k := 0; k < Components; k++ {
			if s.visited.Contains(k) {
				w.WriteBits(uint64(s.VarWords[k]), WordBits)
			}
		}
	}
}

// Read replaces the content of s with a serialized signature. The layout
// flags of s select the format and are kept.
func (s *Signature) Read(r *bitstream.Reader, m *Model) error {
	*s = Signature{HasVar: s.HasVar, HasBitSelection: s.HasBitSelection}
	for k := 0; k < Components; k++ {
		if r.ReadBit() == 1 {
			s.visited.Set(k)
		}
	}
	for k := 0; k < Components; k++ {
		if !s.visited.Contains(k) {
			continue
		}
		if s.HasBitSelection {
			s.Words[k] = expand(uint32(r.ReadBits(SelectedBits)), m.selectionMask(k))
		} else {
			s.Words[k] = uint32(r.ReadBits(WordBits))
		}
	}
	if s.carriesVar() {
		for k := 0; k < Components; k++ {
			if s.visited.Contains(k) {
				s.VarWords[k] = uint32(r.ReadBits(WordBits))
			}
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	s.SetNorm()
	return nil
}

// compact gathers the bits of word selected by mask, highest first.
func compact(word, mask uint32) uint32 {
	var out uint32
	for i := WordBits - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			out = out<<1 | (word>>uint(i))&1
		}
	}
	return out
}

// expand scatters the low bits of v onto the positions selected by mask.
func expand(v, mask uint32) uint32 {
	var out uint32
	for i := 0; i < WordBits; i++ {
		if mask&(1<<uint(i)) != 0 {
			out |= (v & 1) << uint(i)
			v >>= 1
		}
	}
	return out
}

// record is the fixed-size little-endian layout of a signature in an
// index file.
type record struct {
	HasVar          uint8
	HasBitSelection uint8
	Norm            float32
	NumVisited      uint32
	Visited         Visited
	Words           [Components]uint32
	VarWords        [Components]uint32
}

// RecordSize is the number of bytes WriteRecord produces.
var RecordSize = binary.Size(record{})

// WriteRecord stores s in its fixed-size index file layout.
func (s *Signature) WriteRecord(w io.Writer) error {
	rec := record{
		HasVar:          boolByte(s.HasVar),
		HasBitSelection: boolByte(s.HasBitSelection),
		Norm:            float32(s.norm),
		NumVisited:      uint32(s.numVisited),
		Visited:         s.visited,
		Words:           s.Words,
		VarWords:        s.VarWords,
	}
	return binary.Write(w, binary.LittleEndian, &rec)
}

// ReadRecord loads a signature stored by WriteRecord. The stored visited
// count must agree with the bitmap.
func ReadRecord(r io.Reader) (*Signature, error) {
	var rec record
	if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
		return nil, &bitstream.DecodeError{Op: "signature record", Err: err}
	}
	s := &Signature{
		HasVar:          rec.HasVar != 0,
		HasBitSelection: rec.HasBitSelection != 0,
		visited:         rec.Visited,
		Words:           rec.Words,
		VarWords:        rec.VarWords,
	}
	s.SetNorm()
	if s.numVisited != int(rec.NumVisited) {
		return nil, bitstream.Decodef("signature record", "visited count %d, bitmap has %d", rec.NumVisited, s.numVisited)
	}
	return s, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
