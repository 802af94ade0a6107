// Package distrat implements the DISTRAT geometric consistency test: the
// histogram of log distance ratios between matched keypoints is compared
// with the distribution expected from outliers only, and the inliers are
// read from the dominant eigenvector of the excess.
package distrat

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cdvs/internal/types"
)

const (
	// MinPoints is the smallest number of pairs the test runs on.
	MinPoints = 5

	samplingStep     = 0.2
	minScaling       = -2.5
	maxBins          = 26 // (maxScaling-minScaling)/samplingStep + 1
	logImageDiag     = 7.0
	samplesAsymptote = 5000
	distPerBin       = 0.4
	maxResampling    = 10

	powerIterations = 4
	changeThreshold = 1e-3
	zeroNorm        = 1e-6
)

var gaussianKernel = []float64{0.0404, 0.9192, 0.0404}

var ErrLengthMismatch = errors.New("query and reference point counts differ")

// Result is the outcome of one verification.
type Result struct {
	Inliers   []int   // pair indexes, strongest first
	FitIsGood bool    // the ratios look like outliers only
	Statistic float64 // chi-square statistic
	Threshold float64 // critical value it was compared to
}

// Verifier holds the matched coordinates of one image pair.
type Verifier struct {
	a, b []types.Point
	n    int

	ldr     []float64 // log distance ratio per unordered pair (i > j)
	fvalues []float64 // model probability per bin
	edges   []float64
	hist    []float64
	total   float64
}

// New prepares a verifier for pairs (a[i], b[i]).
func New(a, b []types.Point) (*Verifier, error) {
	if len(a) != len(b) {
		return nil, ErrLengthMismatch
	}
	return &Verifier{a: a, b: b, n: len(a)}, nil
}

// EstimateInliers runs the test with the parametric or the non-parametric
// outlier model. Fewer than MinPoints pairs give an empty result.
func (v *Verifier) EstimateInliers(parametric bool, percentile int) Result {
	if v.n < MinPoints {
		return Result{}
	}
	da := squaredDistances(v.a)
	db := squaredDistances(v.b)
	if parametric {
		v.prepareParametric(da, db)
	} else {
		v.prepareNonParametric(da, db)
	}
	res := v.goodnessOfFit(percentile)
	if !res.FitIsGood {
		res.Inliers = v.coherence()
	}
	return res
}

// squaredDistances lists |p_i - p_j|^2 for i > j, row by row.
func squaredDistances(p []types.Point) []float64 {
	d := make([]float64, 0, len(p)*(len(p)-1)/2)
	for i := range p {
		for j := 0; j < i; j++ {
			dx, dy := p[i].X-p[j].X, p[i].Y-p[j].Y
			d = append(d, dx*dx+dy*dy)
		}
	}
	return d
}

func spread(p []types.Point) float64 {
	xs := make([]float64, len(p))
	ys := make([]float64, len(p))
	for i, pt := range p {
		xs[i], ys[i] = pt.X, pt.Y
	}
	return (stat.StdDev(xs, nil) + stat.StdDev(ys, nil)) / 2
}

// logRootF is the outlier density of the log distance ratio for an
// isotropic scale change s.
func logRootF(bins []float64, s float64) []float64 {
	out := make([]float64, len(bins))
	s2 := s * s
	for i, x := range bins {
		e := math.Exp(x)
		val := s * e / (e*e + s2)
		out[i] = 2 * val * val
	}
	return out
}

func (v *Verifier) prepareParametric(da, db []float64) {
	scale := spread(v.a) / spread(v.b)
	nBins := maxBins
	bins := make([]float64, nBins)
	for i := range bins {
		bins[i] = minScaling + float64(i)*samplingStep
	}
	f := logRootF(bins, scale)
	nSamples := float64(len(da))

	// widen the bins when there are too few distances per bin at the tails
	resA, sum := 0, 0.0
	for sum < distPerBin && resA < nBins {
		sum += f[resA] * nSamples
		resA++
	}
	resB, sum := 0, 0.0
	for sum < distPerBin && resB < nBins {
		sum += f[nBins-resB-1] * nSamples
		resB++
	}
	factor := min(maxResampling, max(resA, resB))

	step := samplingStep
	if factor > 1 {
		nBins = maxBins / factor
		bins = bins[:nBins]
		for i := range bins {
			bins[i] = minScaling + (float64(i+1)*samplingStep*float64(factor) - samplingStep)
		}
		f = logRootF(bins, scale)
		step = bins[1] - bins[0]
	}

	v.ldr = make([]float64, len(da))
	for k := range da {
		v.ldr[k] = 0.5 * math.Log((da[k]+1e-6)/(db[k]+1e-9))
	}
	v.edges = binEdges(bins, step)
	v.hist = histogram(v.ldr, v.edges)
	floats.Scale(step, f)
	v.fvalues = f
}

func (v *Verifier) prepareNonParametric(da, db []float64) {
	num := make([]float64, len(da))
	den := make([]float64, len(db))
	v.ldr = make([]float64, len(da))
	for k := range da {
		num[k] = 0.5 * math.Log(da[k]+1e-6)
		den[k] = 0.5 * math.Log(db[k]+1e-9)
		v.ldr[k] = num[k] - den[k]
	}

	// distribution of the difference of two log distances: convolve the
	// histogram of one with the mirrored histogram of the other
	step := samplingStep
	nT := int(math.Ceil(logImageDiag / samplingStep))
	t := make([]float64, nT)
	for i := range t {
		t[i] = step * float64(i)
	}
	tEdges := binEdges(t, step)
	histNum := histogram(num, tEdges)
	histDen := histogram(den, tEdges)
	mirrored := make([]float64, nT)
	for i := range mirrored {
		mirrored[i] = histDen[nT-i-1]
	}
	model := convolve(histNum, mirrored)
	for i := range model {
		model[i] += 1e-8
	}
	floats.Scale(1/(floats.Sum(model)*step), model)
	smooth := convolve(model, gaussianKernel)

	keep := maxBins / 2
	nBins := maxBins - 1
	half := nBins / 2
	bins := make([]float64, nBins)
	for i := 1; i < keep; i++ {
		bins[half+i] = t[i]
		bins[half-i] = -t[i]
	}
	v.fvalues = make([]float64, nBins)
	for i := range v.fvalues {
		v.fvalues[i] = smooth[nT-half+i] * step
	}
	v.edges = binEdges(bins, step)
	v.hist = histogram(v.ldr, v.edges)
}

func binEdges(bins []float64, step float64) []float64 {
	edges := make([]float64, len(bins)+1)
	for i, b := range bins {
		edges[i] = b - step/2
	}
	edges[len(bins)] = edges[len(bins)-1] + step
	return edges
}

// histogram counts values into len(edges)-1 bins, searching outwards from
// the middle edge. Values outside the edges are dropped.
func histogram(values, edges []float64) []float64 {
	nEdges := len(edges)
	half := nEdges / 2
	hist := make([]float64, nEdges-1)
	for _, x := range values {
		val := x + 1e-5
		j := -1
		if val > edges[half-1] {
			j = nEdges
			for k := half; k < nEdges; k++ {
				if val < edges[k] {
					j = k - 1
					break
				}
			}
		} else {
			for k := half - 2; k >= 0; k-- {
				if val >= edges[k] {
					j = k
					break
				}
			}
		}
		if j >= 0 && j < nEdges-1 {
			hist[j]++
		}
	}
	return hist
}

// convolve returns the full convolution of x and h.
func convolve(x, h []float64) []float64 {
	y := make([]float64, len(x)+len(h)-1)
	for i := range y {
		for j := range h {
			if i-j >= 0 && i-j < len(x) {
				y[i] += x[i-j] * h[j]
			}
		}
	}
	return y
}

// goodnessOfFit runs the chi-square test with the sample size saturated
// towards samplesAsymptote, so that large sets are not judged more strictly.
func (v *Verifier) goodnessOfFit(percentile int) Result {
	nBins := len(v.hist)
	res := Result{Threshold: chiSquareTable(percentile)[nBins-2]}
	v.total = floats.Sum(v.hist)
	newN := samplesAsymptote * (1 - math.Exp(-v.total/samplesAsymptote))
	c := 0.0
	for i, h := range v.hist {
		np := v.fvalues[i] * newN
		diff := h*newN/v.total - np
		c += diff * diff / np
	}
	if math.IsNaN(c) {
		c = 0
	}
	res.Statistic = c
	res.FitIsGood = c < res.Threshold
	return res
}

// coherence estimates the inliers from the excess of the histogram over
// the fitted outlier model.
func (v *Verifier) coherence() []int {
	nBins := len(v.hist)
	model := make([]float64, nBins)
	for i, f := range v.fvalues {
		model[i] = f * v.total
	}
	coeff := floats.Dot(v.hist, model) / floats.Dot(model, model)
	diff := make([]float64, nBins)
	maxDiff := 0.0
	for i := range diff {
		diff[i] = v.hist[i] - coeff*model[i]
		maxDiff = max(maxDiff, diff[i])
	}
	if maxDiff <= 0 {
		return nil
	}

	start, step := v.edges[0], v.edges[1]-v.edges[0]
	g := make([]float64, v.n*v.n)
	k := 0
	for i := 0; i < v.n; i++ {
		for j := 0; j < i; j++ {
			bin := 1
			if x := v.ldr[k]; !math.IsNaN(x) {
				bin = min(max(int(math.Ceil((x+1e-5-start)/step)), 1), nBins)
			}
			g[i*v.n+j] = diff[bin-1]
			g[j*v.n+i] = diff[bin-1]
			k++
		}
	}
	u, lambda := dominantEigen(mat.NewSymDense(v.n, g))

	count := min(int(math.Floor(lambda/maxDiff))+1, v.n)
	big := floats.MaxIdx(absolute(u))
	if u[big] < 0 {
		floats.Scale(-1, u)
	}
	idx := make([]int, v.n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return u[idx[i]] > u[idx[j]] })
	return idx[:count]
}

func absolute(u []float64) []float64 {
	a := make([]float64, len(u))
	for i, x := range u {
		a[i] = math.Abs(x)
	}
	return a
}

// dominantEigen approximates the dominant eigenvector and eigenvalue of g
// by power iteration started from its row sums.
func dominantEigen(g *mat.SymDense) ([]float64, float64) {
	n, _ := g.Dims()
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	u := mat.NewVecDense(n, nil)
	u.MulVec(g, mat.NewVecDense(n, ones))
	lambda := floats.Norm(u.RawVector().Data, 2)
	if lambda < zeroNorm {
		e := make([]float64, n)
		e[0] = 1
		return e, lambda
	}
	u.ScaleVec(1/lambda, u)

	next := mat.NewVecDense(n, nil)
	diff := mat.NewVecDense(n, nil)
	for it := 0; it < powerIterations; it++ {
		next.MulVec(g, u)
		lambda = floats.Norm(next.RawVector().Data, 2)
		if lambda == 0 {
			break
		}
		next.ScaleVec(1/lambda, next)
		diff.SubVec(next, u)
		u.CopyVec(next)
		if floats.Norm(diff.RawVector().Data, 2) < changeThreshold {
			break
		}
	}
	return u.RawVector().Data, lambda
}
