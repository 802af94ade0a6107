package geometry

import (
	"math"

	"github.com/golang/geo/r2"
)

// Quad is a four-corner region, corners in drawing order.
type Quad [4]r2.Point

// ImageQuad is the box covering a whole width x height image.
func ImageQuad(width, height int) Quad {
	w, h := float64(width-1), float64(height-1)
	return Quad{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
}

// Project maps every corner of q through h.
func (h Homography) Project(q Quad) Quad {
	var out Quad
	for i, p := range q {
		out[i] = h.Apply(p)
	}
	return out
}

// Area is the shoelace area of q; self-intersecting quads report the
// absolute signed sum.
func (q Quad) Area() float64 {
	s := 0.0
	for i := range q {
		s += q[i].Cross(q[(i+1)%len(q)])
	}
	return math.Abs(s) / 2
}

// Bounds returns the axis-aligned rectangle enclosing q.
func (q Quad) Bounds() r2.Rect {
	return r2.RectFromPoints(q[:]...)
}

// Finite reports whether every corner has finite coordinates.
func (q Quad) Finite() bool {
	for _, p := range q {
		if math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsNaN(p.X) || math.IsNaN(p.Y) {
			return false
		}
	}
	return true
}
