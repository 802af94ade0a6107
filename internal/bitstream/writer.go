package bitstream

import (
	"bytes"

	"github.com/icza/bitio"
)

// Writer accumulates an MSB-first bitstream in memory.
type Writer struct {
	buf    bytes.Buffer
	bw     *bitio.CountWriter
	closed bool
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	w := &Writer{}
	w.bw = bitio.NewCountWriter(&w.buf)
	return w
}

// WriteBit appends a single bit (any non-zero value writes 1).
func (w *Writer) WriteBit(bit int) {
	var v uint64
	if bit != 0 {
		v = 1
	}
	w.WriteBits(v, 1)
}

// WriteBits appends the n low-order bits of v, most significant first.
func (w *Writer) WriteBits(v uint64, n int) {
	if w.closed {
		if w.bw.TryError == nil {
			w.bw.TryError = ErrClosed
		}
		return
	}
	for n > 64 {
		w.bw.TryWriteBits(0, 64)
		n -= 64
	}
	if n > 0 {
		w.bw.TryWriteBits(v, uint8(n))
	}
}

// AlignOnes pads the stream to the next byte boundary with 1 bits and
// returns the number of padding bits.
func (w *Writer) AlignOnes() int {
	pad := int((8 - w.bw.BitsCount%8) % 8)
	if pad > 0 {
		w.WriteBits(1<<uint(pad)-1, pad)
	}
	return pad
}

// Len returns the number of bits written so far.
func (w *Writer) Len() int {
	return int(w.bw.BitsCount)
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	return w.bw.TryError
}

// Bytes flushes the pending bits (zero padded) and returns the stream.
// The Writer cannot be used for writing afterwards.
func (w *Writer) Bytes() ([]byte, error) {
	if !w.closed {
		w.closed = true
		if err := w.bw.Close(); err != nil && w.bw.TryError == nil {
			w.bw.TryError = err
		}
	}
	if w.bw.TryError != nil {
		return nil, w.bw.TryError
	}
	return w.buf.Bytes(), nil
}
