// Package entropy implements the binary arithmetic coder shared by the
// coordinate and descriptor codecs: 18-bit code values, 16-bit frequencies.
package entropy

import (
	"errors"
	"fmt"
	"sort"
)

const (
	CodeValueBits = 18
	FrequencyBits = 16

	MaxCode      = 1<<CodeValueBits - 1
	MaxFreq      = 1<<FrequencyBits - 1
	OneFourth    = 1 << (CodeValueBits - 2)
	OneHalf      = 2 * OneFourth
	ThreeFourths = 3 * OneFourth

	// maxGarbageBits bounds how far past the end of the input the decoder may shift.
	maxGarbageBits = CodeValueBits - 2
)

var (
	ErrFrequencyOverflow = errors.New("model max frequency exceeded")
	ErrSymbolRange       = errors.New("symbol out of range")
	ErrGarbageBits       = errors.New("too many bits after eof")
	ErrEmptyModel        = errors.New("model needs at least one symbol")
)

// Model is a cumulative frequency table over nSymbols symbols.
type Model struct {
	cfreq    []int // cfreq[i] = sum of freq[0..i-1], len nSymbols+1
	adaptive bool
}

// NewModel builds a model from per-symbol frequencies. A nil freq gives a
// uniform model. Frequencies are halved (never below 1) until their total
// fits in MaxFreq. freq is not modified.
func NewModel(nSymbols int, freq []int, adaptive bool) (*Model, error) {
	if nSymbols <= 0 {
		return nil, ErrEmptyModel
	}
	m := &Model{cfreq: make([]int, nSymbols+1), adaptive: adaptive}
	if freq == nil {
		for i := range m.cfreq {
			m.cfreq[i] = i
		}
	} else {
		if len(freq) < nSymbols {
			return nil, fmt.Errorf("model: %d frequencies for %d symbols", len(freq), nSymbols)
		}
		f := append([]int(nil), freq[:nSymbols]...)
		for {
			for i := 0; i < nSymbols; i++ {
				m.cfreq[i+1] = m.cfreq[i] + f[i]
			}
			if m.Count() <= MaxFreq || m.Count() <= nSymbols {
				break
			}
			for i := range f {
				if f[i] > 1 {
					f[i] >>= 1
				} else {
					f[i] = 1
				}
			}
		}
	}
	if m.Count() > MaxFreq {
		return nil, ErrFrequencyOverflow
	}
	return m, nil
}

// NewModelFromCumulative builds a static model from a cumulative table where
// cum[i] is the total frequency of symbols 0..i.
func NewModelFromCumulative(nSymbols int, cum []int) (*Model, error) {
	if nSymbols <= 0 {
		return nil, ErrEmptyModel
	}
	if len(cum) < nSymbols {
		return nil, fmt.Errorf("model: %d cumulative entries for %d symbols", len(cum), nSymbols)
	}
	freq := make([]int, nSymbols)
	freq[0] = cum[0]
	for i := 1; i < nSymbols; i++ {
		freq[i] = cum[i] - cum[i-1]
		if freq[i] < 0 {
			return nil, fmt.Errorf("model: cumulative table decreases at %d", i)
		}
	}
	return NewModel(nSymbols, freq, false)
}

// MustModel is NewModel for the package-level tables that are known to fit.
func MustModel(nSymbols int, freq []int, adaptive bool) *Model {
	m, err := NewModel(nSymbols, freq, adaptive)
	if err != nil {
		panic(err)
	}
	return m
}

// Symbols returns the alphabet size.
func (m *Model) Symbols() int { return len(m.cfreq) - 1 }

// Count returns the total frequency.
func (m *Model) Count() int { return m.cfreq[len(m.cfreq)-1] }

func (m *Model) low(sym int) int  { return m.cfreq[sym] }
func (m *Model) high(sym int) int { return m.cfreq[sym+1] }

func (m *Model) check(sym int) error {
	if sym < 0 || sym >= m.Symbols() {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrSymbolRange, sym, m.Symbols())
	}
	return nil
}

// Update adapts the model after coding sym. Once the total reaches MaxFreq
// the model stops adapting.
func (m *Model) Update(sym int) {
	if !m.adaptive {
		return
	}
	for i := sym + 1; i < len(m.cfreq); i++ {
		m.cfreq[i]++
	}
	if m.Count() >= MaxFreq {
		m.adaptive = false
	}
}

// symbol finds the symbol whose cumulative interval contains value.
func (m *Model) symbol(value int) int {
	n := m.Symbols()
	// first index i in [0,n) with cfreq[i+1] > value
	return sort.Search(n, func(i int) bool { return m.cfreq[i+1] > value })
}
