package entropy

import (
	"cdvs/internal/bitstream"
)

// Encoder writes arithmetic-coded symbols to a bitstream.
type Encoder struct {
	w       *bitstream.Writer
	low     int
	high    int
	pending int
	bits    int
}

// NewEncoder starts a new code on w.
func NewEncoder(w *bitstream.Writer) *Encoder {
	return &Encoder{w: w, high: MaxCode}
}

func (e *Encoder) emit(bit int) {
	e.w.WriteBit(bit)
	e.bits++
	for ; e.pending > 0; e.pending-- {
		e.w.WriteBit(bit ^ 1)
		e.bits++
	}
}

// Encode codes sym with model m and adapts m.
func (e *Encoder) Encode(m *Model, sym int) error {
	if err := m.check(sym); err != nil {
		return err
	}
	rng := e.high - e.low + 1
	count := m.Count()
	e.high = e.low + rng*m.high(sym)/count - 1
	e.low = e.low + rng*m.low(sym)/count
	for {
		switch {
		case e.high < OneHalf:
			e.emit(0)
		case e.low >= OneHalf:
			e.emit(1)
		case e.low >= OneFourth && e.high < ThreeFourths:
			e.pending++
			e.low -= OneFourth
			e.high -= OneFourth
		default:
			m.Update(sym)
			return nil
		}
		e.high = (e.high<<1 | 1) & MaxCode
		e.low = (e.low << 1) & MaxCode
	}
}

// Done terminates the code with two disambiguating bits.
func (e *Encoder) Done() {
	e.pending++
	if e.low < OneFourth {
		e.emit(0)
	} else {
		e.emit(1)
	}
}

// Bits returns the number of bits produced by this encoder.
func (e *Encoder) Bits() int { return e.bits }

// Decoder reads arithmetic-coded symbols. It looks ahead on a private copy
// of the reader; Done advances the caller's reader by exactly the number of
// bits the matching Encoder produced.
type Decoder struct {
	r       *bitstream.Reader
	look    *bitstream.Reader
	value   int
	low     int
	high    int
	garbage int
	bits    int
}

// NewDecoder starts decoding at the current position of r.
func NewDecoder(r *bitstream.Reader) *Decoder {
	d := &Decoder{r: r, look: r.Clone(), high: MaxCode, bits: 2}
	d.value = int(d.look.ReadBits(CodeValueBits))
	return d
}

// Decode returns the next symbol coded with model m and adapts m.
func (d *Decoder) Decode(m *Model) (int, error) {
	rng := d.high - d.low + 1
	count := m.Count()
	cum := ((d.value-d.low+1)*count - 1) / rng
	sym := m.symbol(cum)
	if err := m.check(sym); err != nil {
		return 0, &bitstream.DecodeError{Op: "arithmetic", Err: err}
	}
	d.high = d.low + rng*m.high(sym)/count - 1
	d.low = d.low + rng*m.low(sym)/count
	for {
		switch {
		case d.high < OneHalf:
		case d.low >= OneHalf:
			d.value -= OneHalf
			d.low -= OneHalf
			d.high -= OneHalf
		case d.low >= OneFourth && d.high < ThreeFourths:
			d.value -= OneFourth
			d.low -= OneFourth
			d.high -= OneFourth
		default:
			m.Update(sym)
			return sym, nil
		}
		d.high = (d.high<<1 | 1) & MaxCode
		d.low = (d.low << 1) & MaxCode
		if d.look.EOF() {
			d.value <<= 1
			d.garbage++
			if d.garbage > maxGarbageBits {
				return 0, &bitstream.DecodeError{Op: "arithmetic", Err: ErrGarbageBits}
			}
		} else {
			d.value = d.value<<1 | d.look.ReadBit()
			d.bits++
		}
	}
}

// Done commits the consumed bits to the caller's reader.
func (d *Decoder) Done() {
	d.r.Skip(d.bits)
}

// Bits returns the number of bits attributed to this code so far.
func (d *Decoder) Bits() int { return d.bits }
