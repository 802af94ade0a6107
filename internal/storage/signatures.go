package storage

import (
	"encoding/binary"
	"fmt"
	"io"

	"cdvs/internal/bitstream"
	"cdvs/internal/scfv"
)

// WriteSignatures stores every row of idx: a u32 count then one
// fixed-size record per signature.
func WriteSignatures(w io.Writer, idx *scfv.Index) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(idx.Len())); err != nil {
		return err
	}
	for i := 0; i < idx.Len(); i++ {
		s, _ := idx.At(i)
		if err := s.WriteRecord(w); err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
	}
	return nil
}

// ReadSignatures reads the signatures stored by WriteSignatures. Failures
// are bitstream.DecodeErrors.
func ReadSignatures(r io.Reader) ([]*scfv.Signature, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, &bitstream.DecodeError{Op: "signature count", Err: err}
	}
	out := make([]*scfv.Signature, 0, min(int(n), 1<<16))
	for i := 0; i < int(n); i++ {
		s, err := scfv.ReadRecord(r)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}
