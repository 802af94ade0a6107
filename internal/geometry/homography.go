// Package geometry estimates the projective transform between matched
// keypoints and uses it to carry a bounding box from the reference image
// into the query image.
package geometry

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"cdvs/internal/types"
)

// MinimalSet is the number of correspondences that determine a homography.
const MinimalSet = 4

// Homography is a 3x3 projective transform stored row by row.
type Homography [9]float64

// Identity returns the transform that leaves every point in place.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// IsIdentity reports whether h, up to scale, is the identity.
func (h Homography) IsIdentity() bool {
	if h[0] == 0 {
		return false
	}
	id := Identity()
	for i := range h {
		if math.Abs(h[i]/h[0]-id[i]) > 1e-9 {
			return false
		}
	}
	return true
}

// Apply maps p through h. Points sent to infinity come back as +Inf.
func (h Homography) Apply(p r2.Point) r2.Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return r2.Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return r2.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

func (h Homography) dense() *mat.Dense {
	return mat.NewDense(3, 3, h[:])
}

func fromDense(m mat.Matrix) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c)
		}
	}
	return h
}

// conditioner moves the centroid of a point set to the origin and scales
// it to a mean distance of sqrt(2).
type conditioner struct {
	cx, cy, s float64
}

func newConditioner(pts []r2.Point) conditioner {
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))
	radius := 0.0
	for _, p := range pts {
		radius += p.Sub(c).Norm()
	}
	radius /= float64(len(pts))
	s := 1.0
	if radius > 0 {
		s = math.Sqrt2 / radius
	}
	return conditioner{cx: c.X, cy: c.Y, s: s}
}

func (c conditioner) apply(pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: c.s * (p.X - c.cx), Y: c.s * (p.Y - c.cy)}
	}
	return out
}

func (c conditioner) forward() *mat.Dense {
	return mat.NewDense(3, 3, []float64{c.s, 0, -c.s * c.cx, 0, c.s, -c.s * c.cy, 0, 0, 1})
}

func (c conditioner) inverse() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1 / c.s, 0, c.cx, 0, 1 / c.s, c.cy, 0, 0, 1})
}

// dlt solves for the homography taking from onto to with the direct linear
// transform: the null vector of the stacked 2n x 9 constraint matrix.
func dlt(from, to []r2.Point) (Homography, bool) {
	a := mat.NewDense(2*len(from), 9, nil)
	for i, p := range from {
		u, v := to[i].X, to[i].Y
		a.SetRow(2*i, []float64{0, 0, 0, -p.X, -p.Y, -1, v * p.X, v * p.Y, v})
		a.SetRow(2*i+1, []float64{p.X, p.Y, 1, 0, 0, 0, -u * p.X, -u * p.Y, -u})
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Homography{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	var h Homography
	for i := range h {
		h[i] = v.At(i, 8)
	}
	return h, true
}

// Fit estimates the homography from every correspondence, with the points
// of both sides conditioned first.
func Fit(from, to []types.Point) (Homography, bool) {
	if len(from) != len(to) || len(from) < MinimalSet {
		return Identity(), false
	}
	f, t := toR2(from), toR2(to)
	cf, ct := newConditioner(f), newConditioner(t)
	h, ok := dlt(cf.apply(f), ct.apply(t))
	if !ok {
		return Identity(), false
	}
	return denormalize(h, cf, ct), true
}

func denormalize(h Homography, cf, ct conditioner) Homography {
	var m mat.Dense
	m.Product(ct.inverse(), h.dense(), cf.forward())
	return fromDense(&m)
}

// Estimate is the outcome of a RANSAC run.
type Estimate struct {
	H         Homography
	Consensus []int // indexes of the correspondences within the threshold of H
}

// RANSAC fits a homography to the correspondences from[i] -> to[i] by
// testing nTests random minimal sets and re-estimating from the largest
// consensus. A correspondence agrees with a hypothesis when it lands within
// threshold pixels of its target. Without any consensus the identity is
// returned.
func RANSAC(from, to []types.Point, nTests int, threshold float64, rng *rand.Rand) Estimate {
	n := len(from)
	if n != len(to) || n < MinimalSet {
		return Estimate{H: Identity()}
	}
	f, t := toR2(from), toR2(to)
	cf, ct := newConditioner(f), newConditioner(t)
	fc, tc := cf.apply(f), ct.apply(t)

	var best []int
	idx := make([]int, n)
	sf := make([]r2.Point, MinimalSet)
	st := make([]r2.Point, MinimalSet)
	for test := 0; test < nTests; test++ {
		for i := range idx {
			idx[i] = i
		}
		for i := 0; i < MinimalSet; i++ {
			j := i + rng.Intn(n-i)
			idx[i], idx[j] = idx[j], idx[i]
			sf[i], st[i] = fc[idx[i]], tc[idx[i]]
		}
		hyp, ok := dlt(sf, st)
		if !ok {
			continue
		}
		consensus := agreeing(denormalize(hyp, cf, ct), f, t, threshold)
		if len(consensus) > len(best) {
			best = consensus
		}
	}
	if len(best) == 0 {
		return Estimate{H: Identity()}
	}

	cfrom := make([]r2.Point, len(best))
	cto := make([]r2.Point, len(best))
	for i, k := range best {
		cfrom[i], cto[i] = fc[k], tc[k]
	}
	h, ok := dlt(cfrom, cto)
	if !ok {
		return Estimate{H: Identity()}
	}
	h = denormalize(h, cf, ct)
	return Estimate{H: h, Consensus: agreeing(h, f, t, threshold)}
}

func agreeing(h Homography, from, to []r2.Point, threshold float64) []int {
	var out []int
	for i, p := range from {
		if h.Apply(p).Sub(to[i]).Norm() < threshold {
			out = append(out, i)
		}
	}
	return out
}

func toR2(pts []types.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: p.X, Y: p.Y}
	}
	return out
}
