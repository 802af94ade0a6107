package entropy

import (
	"errors"
	"math/rand"
	"testing"

	"cdvs/internal/bitstream"
)

func TestModelHalvesLargeFrequencies(t *testing.T) {
	freq := []int{100000, 100000, 1}
	m, err := NewModel(3, freq, false)
	if err != nil {
		t.Fatalf("NewModel returned error: %v", err)
	}
	if m.Count() > MaxFreq {
		t.Errorf("count %d exceeds MaxFreq", m.Count())
	}
	if m.Count() != 50001 {
		t.Errorf("expected count 50001 after two halvings, got %d", m.Count())
	}
	if freq[0] != 100000 {
		t.Error("input frequencies were modified")
	}
}

func TestModelFromCumulative(t *testing.T) {
	m, err := NewModelFromCumulative(2, []int{60000, 65535})
	if err != nil {
		t.Fatal(err)
	}
	if m.low(1) != 60000 || m.Count() != 65535 {
		t.Errorf("unexpected table %v", m.cfreq)
	}
	if _, err := NewModelFromCumulative(2, []int{10, 5}); err == nil {
		t.Error("expected error for decreasing cumulative table")
	}
}

func TestAdaptiveModelFreezes(t *testing.T) {
	m := MustModel(2, []int{MaxFreq - 2, 1}, true)
	m.Update(0)
	m.Update(0)
	before := m.Count()
	m.Update(1)
	if m.Count() != before {
		t.Errorf("model kept adapting past MaxFreq: %d -> %d", before, m.Count())
	}
}

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	skewed := []int{900, 60, 30, 9, 1}

	syms := make([]int, 2000)
	for i := range syms {
		p := rnd.Intn(1000)
		switch {
		case p < 900:
			syms[i] = 0
		case p < 960:
			syms[i] = 1
		case p < 990:
			syms[i] = 2
		case p < 999:
			syms[i] = 3
		default:
			syms[i] = 4
		}
	}

	for _, adaptive := range []bool{false, true} {
		w := bitstream.NewWriter()
		enc := NewEncoder(w)
		em := MustModel(5, skewed, adaptive)
		for _, s := range syms {
			if err := enc.Encode(em, s); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
		}
		enc.Done()
		// trailing marker must survive the code
		w.WriteBits(0x2A, 6)
		if enc.Bits() >= len(syms) {
			t.Errorf("adaptive=%v: %d bits for %d skewed symbols, expected compression", adaptive, enc.Bits(), len(syms))
		}
		data, err := w.Bytes()
		if err != nil {
			t.Fatal(err)
		}

		r := bitstream.NewReader(data)
		dec := NewDecoder(r)
		dm := MustModel(5, skewed, adaptive)
		for i, want := range syms {
			got, err := dec.Decode(dm)
			if err != nil {
				t.Fatalf("Decode %d failed: %v", i, err)
			}
			if got != want {
				t.Fatalf("adaptive=%v symbol %d: got %d want %d", adaptive, i, got, want)
			}
		}
		dec.Done()
		if dec.Bits() != enc.Bits() {
			t.Errorf("decoder consumed %d bits, encoder produced %d", dec.Bits(), enc.Bits())
		}
		if marker := r.ReadBits(6); marker != 0x2A {
			t.Errorf("trailing marker corrupted: %x", marker)
		}
	}
}

func TestEncodeSymbolOutOfRange(t *testing.T) {
	enc := NewEncoder(bitstream.NewWriter())
	m := MustModel(2, nil, false)
	if err := enc.Encode(m, 2); !errors.Is(err, ErrSymbolRange) {
		t.Errorf("expected ErrSymbolRange, got %v", err)
	}
}

func TestDecodeTooManyGarbageBits(t *testing.T) {
	dec := NewDecoder(bitstream.NewReader(nil))
	m := MustModel(2, nil, false)
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		_, err = dec.Decode(m)
	}
	var de *bitstream.DecodeError
	if !errors.As(err, &de) || !errors.Is(err, ErrGarbageBits) {
		t.Errorf("expected garbage bits DecodeError, got %v", err)
	}
}
