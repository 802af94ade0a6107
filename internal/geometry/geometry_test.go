package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"

	"cdvs/internal/types"
)

var perspective = Homography{
	0.9, -0.12, 35,
	0.08, 1.1, -20,
	1e-4, 2e-4, 1,
}

func project(h Homography, pts []types.Point) []types.Point {
	out := make([]types.Point, len(pts))
	for i, p := range pts {
		q := h.Apply(r2.Point{X: p.X, Y: p.Y})
		out[i] = types.Point{X: q.X, Y: q.Y}
	}
	return out
}

func randomPoints(rng *rand.Rand, n int) []types.Point {
	pts := make([]types.Point, n)
	for i := range pts {
		pts[i] = types.Point{X: rng.Float64() * 640, Y: rng.Float64() * 480}
	}
	return pts
}

func closeQuads(t *testing.T, got, want Quad, tol float64) {
	t.Helper()
	for i := range got {
		if got[i].Sub(want[i]).Norm() > tol {
			t.Errorf("corner %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFitExact(t *testing.T) {
	from := randomPoints(rand.New(rand.NewSource(1)), 12)
	h, ok := Fit(from, project(perspective, from))
	if !ok {
		t.Fatal("Fit failed")
	}
	box := ImageQuad(640, 480)
	closeQuads(t, h.Project(box), perspective.Project(box), 1e-6)
}

func TestRANSACWithOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	from := randomPoints(rng, 40)
	to := project(perspective, from)
	for i := 30; i < 40; i++ {
		to[i] = types.Point{X: rng.Float64() * 640, Y: rng.Float64() * 480}
	}
	est := RANSAC(from, to, 200, 2, rand.New(rand.NewSource(3)))
	if len(est.Consensus) < 30 {
		t.Fatalf("consensus of %d, want at least 30", len(est.Consensus))
	}
	for _, k := range est.Consensus[:30] {
		if k >= 30 {
			t.Fatalf("outlier %d in consensus %v", k, est.Consensus)
		}
	}
	box := ImageQuad(640, 480)
	closeQuads(t, est.H.Project(box), perspective.Project(box), 1e-4)
}

func TestRANSACTooFewPoints(t *testing.T) {
	from := randomPoints(rand.New(rand.NewSource(4)), 3)
	est := RANSAC(from, from, 10, 8, rand.New(rand.NewSource(5)))
	if !est.H.IsIdentity() || est.Consensus != nil {
		t.Errorf("expected the identity, got %+v", est)
	}
	if _, ok := Fit(from, from[:2]); ok {
		t.Error("Fit accepted mismatched inputs")
	}
}

func TestConditioner(t *testing.T) {
	pts := toR2(randomPoints(rand.New(rand.NewSource(6)), 50))
	c := newConditioner(pts)
	var centre r2.Point
	radius := 0.0
	for _, p := range c.apply(pts) {
		centre = centre.Add(p)
		radius += p.Norm()
	}
	if centre.Norm() > 1e-9 {
		t.Errorf("centroid %v", centre)
	}
	if math.Abs(radius/50-math.Sqrt2) > 1e-9 {
		t.Errorf("mean radius %g", radius/50)
	}
}

func TestQuad(t *testing.T) {
	q := ImageQuad(101, 51)
	if q.Area() != 5000 {
		t.Errorf("area %g", q.Area())
	}
	b := q.Bounds()
	if b.Lo() != (r2.Point{}) || b.Hi() != (r2.Point{X: 100, Y: 50}) {
		t.Errorf("bounds %v", b)
	}
	shifted := Homography{1, 0, 10, 0, 1, -5, 0, 0, 1}.Project(q)
	if shifted[2] != (r2.Point{X: 110, Y: 45}) || !shifted.Finite() {
		t.Errorf("translated corner %v", shifted[2])
	}
	if (Homography{1, 0, 0, 0, 1, 0, 0, 0, 0}).Project(q).Finite() {
		t.Error("points at infinity reported finite")
	}
}
