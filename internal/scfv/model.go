// Package scfv builds, serializes and compares the scalable compressed
// Fisher vector: a binary global signature with one 32-bit word per
// Gaussian mixture component.
package scfv

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/klauspost/compress/zstd"

	"cdvs/internal/params"
	"cdvs/internal/types"
)

const (
	// Components is the number of Gaussian mixture components.
	Components = 512
	// WordBits is the number of PCA dimensions, one bit each per word.
	WordBits = 32
	// SelectedBits is the word width in bit selection mode.
	SelectedBits = 24

	descDims = types.DescriptorLength
)

var (
	ErrModelShape    = errors.New("model table has the wrong size")
	ErrModelVariance = errors.New("model variance must be positive")
	ErrModelWeight   = errors.New("model weight must be positive")
	ErrSelectionBits = errors.New("bit selection mask must select 24 bits")
)

// Model is the fixed numeric model consumed by the signature factory: a
// diagonal Gaussian mixture in a PCA-reduced descriptor space, plus the
// optional retrieval tables. It is read-only once loaded.
type Model struct {
	Weights   [Components]float64
	Means     [Components][WordBits]float64
	Variances [Components][WordBits]float64

	PCAMean  [descDims]float64
	PCABasis [WordBits][descDims]float64 // one principal direction per row

	DescriptorPower float64 // applied to L1 normalized descriptors
	FisherPower     float64 // signed power applied to the Fisher vector

	// Optional; nil selects the built-in curves.
	CorrelationWeights            []float64 // WordBits+1 entries
	VarCorrelationWeights         []float64 // WordBits+1 entries
	SelectedCorrelationWeights    []float64 // SelectedBits+1 entries
	SelectedVarCorrelationWeights []float64 // SelectedBits+1 entries
	BitSelection                  []uint32  // Components masks of SelectedBits bits
}

// Validate checks the shapes and ranges the factory relies on.
func (m *Model) Validate() error {
	for k := range m.Weights {
		if !(m.Weights[k] > 0) {
			return &params.ConfigError{Field: "model.weights", Err: fmt.Errorf("%w: component %d", ErrModelWeight, k)}
		}
		for d := range m.Variances[k] {
			if !(m.Variances[k][d] > 0) {
				return &params.ConfigError{Field: "model.variances", Err: fmt.Errorf("%w: component %d", ErrModelVariance, k)}
			}
		}
	}
	if !(m.FisherPower > 0 && m.FisherPower <= 1) {
		return params.Errorf("model.fisherPower", "out of range: %g", m.FisherPower)
	}
	if !(m.DescriptorPower > 0) {
		return params.Errorf("model.descriptorPower", "out of range: %g", m.DescriptorPower)
	}
	checks := []struct {
		name string
		n    int
		want int
	}{
		{"model.correlationWeights", len(m.CorrelationWeights), WordBits + 1},
		{"model.varCorrelationWeights", len(m.VarCorrelationWeights), WordBits + 1},
		{"model.selectedCorrelationWeights", len(m.SelectedCorrelationWeights), SelectedBits + 1},
		{"model.selectedVarCorrelationWeights", len(m.SelectedVarCorrelationWeights), SelectedBits + 1},
		{"model.bitSelection", len(m.BitSelection), Components},
	}
	for _, c := range checks {
		if c.n != 0 && c.n != c.want {
			return &params.ConfigError{Field: c.name, Err: fmt.Errorf("%w: %d entries, want %d", ErrModelShape, c.n, c.want)}
		}
	}
	for k, mask := range m.BitSelection {
		if onesCount(mask) != SelectedBits {
			return &params.ConfigError{Field: "model.bitSelection", Err: fmt.Errorf("%w: component %d", ErrSelectionBits, k)}
		}
	}
	return nil
}

// selectionMask returns the bit selection mask of component k.
func (m *Model) selectionMask(k int) uint32 {
	if len(m.BitSelection) == Components {
		return m.BitSelection[k]
	}
	return defaultMask(k)
}

// defaultMask drops every fourth bit, with the dropped phase rotating by
// component so that all PCA dimensions are kept somewhere.
func defaultMask(k int) uint32 {
	var mask uint32
	for i := 0; i < WordBits; i++ {
		if (i+k)%4 != 3 {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// Save writes m as a zstd compressed gob stream.
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(zw).Encode(m); err != nil {
		zw.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// LoadModel reads and validates a model written by Save. A missing or
// unreadable file is a configuration error.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &params.ConfigError{Field: "model", Err: err}
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, &params.ConfigError{Field: "model", Err: err}
	}
	defer zr.Close()

	m := &Model{}
	if err := gob.NewDecoder(zr).Decode(m); err != nil {
		return nil, &params.ConfigError{Field: "model", Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// RandomModel builds a deterministic stand-in model from seed. Signatures
// made with it are only comparable with each other; it exists for tests
// and for running the pipeline without trained data.
func RandomModel(seed int64) *Model {
	rng := rand.New(rand.NewSource(seed))
	m := &Model{DescriptorPower: 0.5, FisherPower: 0.5}
	total := 0.0
	for k := range m.Weights {
		m.Weights[k] = 0.5 + rng.Float64()
		total += m.Weights[k]
		for d := 0; d < WordBits; d++ {
			m.Means[k][d] = rng.NormFloat64() * 0.05
			m.Variances[k][d] = 0.0015 + 0.002*rng.Float64()
		}
	}
	for k := range m.Weights {
		m.Weights[k] /= total
	}
	for i := range m.PCAMean {
		m.PCAMean[i] = 0.08
	}
	scale := 1 / math.Sqrt(descDims)
	for j := range m.PCABasis {
		for i := range m.PCABasis[j] {
			m.PCABasis[j][i] = rng.NormFloat64() * scale
		}
	}
	return m
}
