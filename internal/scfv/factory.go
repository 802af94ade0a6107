package scfv

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cdvs/internal/params"
	"cdvs/internal/types"
)

const (
	// MaxFeatures caps the keypoints aggregated into one signature.
	MaxFeatures = 300
	minGamma    = 1e-4
)

// Factory turns keypoint descriptors into signatures for one mode.
type Factory struct {
	model           *Model
	hasVar          bool
	hasBitSelection bool
	threshold       float64

	logWeights []float64
	logNorm    []float64 // log of the Gaussian normalizer per component
	istd       [][]float64
}

// NewFactory binds m to the signature layout of p.
func NewFactory(m *Model, p *params.Parameters) *Factory {
	f := &Factory{
		model:           m,
		hasVar:          p.HasVar,
		hasBitSelection: p.HasBitSelection,
		threshold:       p.ScfvThreshold,
		logWeights:      make([]float64, Components),
		logNorm:         make([]float64, Components),
		istd:            make([][]float64, Components),
	}
	dimLog2Pi := WordBits * math.Log(2*math.Pi)
	for k := 0; k < Components; k++ {
		f.logWeights[k] = math.Log(m.Weights[k])
		logVarSum := 0.0
		f.istd[k] = make([]float64, WordBits)
		for d := 0; d < WordBits; d++ {
			logVarSum += math.Log(m.Variances[k][d])
			f.istd[k][d] = 1 / math.Sqrt(m.Variances[k][d])
		}
		f.logNorm[k] = -0.5 * (dimLog2Pi + logVarSum)
	}
	return f
}

// Generate aggregates the first n keypoints of fs (at most MaxFeatures
// are useful to callers, but any n is honoured) into a signature. An empty
// feature set gives an empty signature.
func (f *Factory) Generate(fs *types.FeatureSet, n int) *Signature {
	sig := NewSignature(f.hasVar, f.hasBitSelection)
	n = min(n, fs.Len())
	if n <= 0 {
		sig.SetNorm()
		return sig
	}

	means, vars := f.fisher(fs, n)
	deviations := make([]float64, Components)
	for k := range deviations {
		deviations[k] = stat.PopStdDev(means[k*WordBits:(k+1)*WordBits], nil)
	}

	for _, k := range f.visitedComponents(deviations) {
		word := binarize(means[k*WordBits : (k+1)*WordBits])
		var varWord uint32
		if f.hasBitSelection {
			word &= f.model.selectionMask(k)
		} else if f.hasVar {
			varWord = binarize(vars[k*WordBits : (k+1)*WordBits])
		}
		sig.Visit(k, word, varWord)
	}
	sig.SetNorm()
	return sig
}

// visitedComponents selects components either by a fixed deviation
// threshold or, when the threshold is above 1, as the top-K deviations.
func (f *Factory) visitedComponents(dev []float64) []int {
	var out []int
	if int(f.threshold) > 1 {
		order := make([]int, Components)
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(i, j int) bool {
			return math.Abs(dev[order[i]]) > math.Abs(dev[order[j]])
		})
		out = order[:min(int(f.threshold), Components)]
		sort.Ints(out)
		return out
	}
	for k, d := range dev {
		if d >= f.threshold {
			out = append(out, k)
		}
	}
	return out
}

// binarize packs the signs of a block, first dimension in the top bit.
func binarize(block []float64) uint32 {
	var word uint32
	for _, v := range block {
		word <<= 1
		if v > 0 {
			word |= 1
		}
	}
	return word
}

// project L1-normalizes, power-law compresses, centres and PCA-projects one
// descriptor.
func (f *Factory) project(d *[descDims]float32, out []float64) {
	x := make([]float64, descDims)
	l1 := 0.0
	for i, v := range d {
		x[i] = float64(v)
		l1 += math.Abs(x[i])
	}
	if l1 == 0 {
		l1 = 1
	}
	for i := range x {
		x[i] = math.Pow(x[i]/l1, f.model.DescriptorPower) - f.model.PCAMean[i]
	}
	for j := range out {
		out[j] = floats.Dot(f.model.PCABasis[j][:], x)
	}
}

// posterior fills p with the component responsibilities of x.
func (f *Factory) posterior(x, p []float64) {
	for k := 0; k < Components; k++ {
		mahal := 0.0
		for d, v := range x {
			z := (v - f.model.Means[k][d]) * f.istd[k][d]
			mahal += z * z
		}
		p[k] = f.logWeights[k] + f.logNorm[k] - 0.5*mahal
	}
	lse := floats.LogSumExp(p)
	for k := range p {
		p[k] = math.Exp(p[k] - lse)
	}
}

// fisher returns the normalized mean and variance gradients of the first n
// keypoints, Components*WordBits values each.
func (f *Factory) fisher(fs *types.FeatureSet, n int) (means, vars []float64) {
	s0 := make([]float64, Components)
	s1 := make([]float64, Components*WordBits)
	s2 := make([]float64, Components*WordBits)
	x := make([]float64, WordBits)
	p := make([]float64, Components)
	for i := 0; i < n; i++ {
		f.project(&fs.Features[i].Descriptor, x)
		f.posterior(x, p)
		floats.Add(s0, p)
		for k, g := range p {
			if g < minGamma {
				continue
			}
			off := k * WordBits
			for d, v := range x {
				s1[off+d] += g * v
				s2[off+d] += g * v * v
			}
		}
	}

	total := float64(n)
	means = make([]float64, Components*WordBits)
	for k := 0; k < Components; k++ {
		mc := math.Sqrt(1/f.model.Weights[k]) / total
		off := k * WordBits
		for d := 0; d < WordBits; d++ {
			means[off+d] = mc * (s1[off+d] - f.model.Means[k][d]*s0[k]) * f.istd[k][d]
		}
	}
	normalize(means, f.model.FisherPower)
	if !f.hasVar {
		return means, nil
	}

	vars = make([]float64, Components*WordBits)
	for k := 0; k < Components; k++ {
		vc := math.Sqrt(0.5/f.model.Weights[k]) / total
		off := k * WordBits
		for d := 0; d < WordBits; d++ {
			mu := f.model.Means[k][d]
			vars[off+d] = vc * ((s2[off+d]+mu*(mu*s0[k]-2*s1[off+d]))/f.model.Variances[k][d] - s0[k])
		}
	}
	normalize(vars, f.model.FisherPower)
	return means, vars
}

// normalize applies a signed power and scales to unit L2 norm.
func normalize(v []float64, alpha float64) {
	if alpha != 1 {
		for i, x := range v {
			if x < 0 {
				v[i] = -math.Pow(-x, alpha)
			} else {
				v[i] = math.Pow(x, alpha)
			}
		}
	}
	if norm := floats.Norm(v, 2); norm > 0 {
		floats.Scale(1/norm, v)
	}
}
