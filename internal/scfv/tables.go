package scfv

import "math"

// correlationExponent is applied to the full-width correlation weights.
const correlationExponent = 1.2

// Tables holds the distance-indexed correlation contributions of one model.
// Every table is non-increasing in Hamming distance.
type Tables struct {
	Mean    [WordBits + 1]float64
	Var     [WordBits + 1]float64
	SelMean [SelectedBits + 1]float64
	SelVar  [SelectedBits + 1]float64

	masks [Components]uint32
}

// NewTables derives the correlation tables from m, falling back to the
// built-in weight curves where m has none.
func NewTables(m *Model) *Tables {
	t := &Tables{}
	fill(t.Mean[:], weightsOr(m.CorrelationWeights, WordBits), WordBits, correlationExponent)
	fill(t.Var[:], weightsOr(m.VarCorrelationWeights, WordBits), WordBits, correlationExponent)
	fill(t.SelMean[:], weightsOr(m.SelectedCorrelationWeights, SelectedBits), SelectedBits, 1)
	fill(t.SelVar[:], weightsOr(m.SelectedVarCorrelationWeights, SelectedBits), SelectedBits, 1)
	for k := range t.masks {
		t.masks[k] = m.selectionMask(k)
	}
	return t
}

// fill computes table[h] = (bits - 2h) * w[h]^exp, then clamps it so that
// a larger distance never scores higher than a smaller one.
func fill(table, w []float64, bits int, exp float64) {
	for h := range table {
		table[h] = float64(bits-2*h) * math.Pow(w[h], exp)
		if h > 0 && table[h] > table[h-1] {
			table[h] = table[h-1]
		}
	}
}

// weightsOr returns w, or a Gaussian fall-off over the Hamming distance
// when w is empty.
func weightsOr(w []float64, bits int) []float64 {
	if len(w) == bits+1 {
		return w
	}
	sigma := float64(bits) / 4
	out := make([]float64, bits+1)
	for h := range out {
		x := float64(h) / sigma
		out[h] = math.Exp(-x * x / 2)
	}
	return out
}
