package bitstream

// Reader reads an MSB-first bitstream from a byte slice. It is a small value
// type: copying it gives an independent cursor, which the arithmetic decoder
// uses for look-ahead before committing the bits it really consumed.
//
// Reads past the end return zero bits and mark the reader as overrun.
type Reader struct {
	data    []byte
	pos     int
	overrun bool
}

// NewReader attaches a Reader to data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Clone returns an independent copy of the cursor.
func (r *Reader) Clone() *Reader {
	c := *r
	return &c
}

// ReadBit returns the next bit.
func (r *Reader) ReadBit() int {
	if r.pos >= len(r.data)*8 {
		r.overrun = true
		r.pos++
		return 0
	}
	b := r.data[r.pos>>3] >> (7 - uint(r.pos&7)) & 1
	r.pos++
	return int(b)
}

// ReadBits returns the next n bits (n <= 64) as an unsigned value.
func (r *Reader) ReadBits(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<1 | uint64(r.ReadBit())
	}
	return v
}

// Skip advances the cursor by n bits.
func (r *Reader) Skip(n int) {
	r.pos += n
	if r.pos > len(r.data)*8 {
		r.overrun = true
	}
}

// Align moves the cursor to the next byte boundary and returns the number
// of skipped bits.
func (r *Reader) Align() int {
	pad := (8 - r.pos%8) % 8
	r.Skip(pad)
	return pad
}

// EOF reports whether every bit of the input has been consumed.
func (r *Reader) EOF() bool {
	return r.pos >= len(r.data)*8
}

// Consumed returns the number of bits read so far.
func (r *Reader) Consumed() int {
	return r.pos
}

// Available returns the number of unread bits.
func (r *Reader) Available() int {
	if n := len(r.data)*8 - r.pos; n > 0 {
		return n
	}
	return 0
}

// Err reports whether the reader was driven past the end of its input.
func (r *Reader) Err() error {
	if r.overrun {
		return &DecodeError{Op: "bitstream", Err: ErrShortStream}
	}
	return nil
}
