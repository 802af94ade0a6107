package local

import "cdvs/internal/types"

// Direction tells how a two-way match was accepted.
type Direction int

const (
	// Intersection pairs passed the ratio test in both directions.
	Intersection Direction = iota
	// Disjoint1 pairs passed only from the query side.
	Disjoint1
	// Disjoint2 pairs passed only from the reference side.
	Disjoint2
)

// PointPairs collects the matched coordinates of a query/reference pair
// together with their weights and, after geometric verification, the
// indexes of the inliers.
type PointPairs struct {
	Query   []types.Point
	Ref     []types.Point
	Weights []float64
	Dirs    []Direction
	Inliers []int

	LocalScore      float64
	GlobalScore     float64
	LocalThreshold  float64
	GlobalThreshold float64
	Score           float64 // final score in [0,1]
}

// NewPointPairs returns an empty set with room for capacity pairs.
func NewPointPairs(capacity int) *PointPairs {
	return &PointPairs{
		Query:   make([]types.Point, 0, capacity),
		Ref:     make([]types.Point, 0, capacity),
		Weights: make([]float64, 0, capacity),
		Dirs:    make([]Direction, 0, capacity),
	}
}

// Add appends one matched pair.
func (pp *PointPairs) Add(q, r types.Point, weight float64, dir Direction) {
	pp.Query = append(pp.Query, q)
	pp.Ref = append(pp.Ref, r)
	pp.Weights = append(pp.Weights, weight)
	pp.Dirs = append(pp.Dirs, dir)
}

// Matched returns the number of pairs.
func (pp *PointPairs) Matched() int { return len(pp.Weights) }

// NumInliers returns the number of pairs that passed geometric verification.
func (pp *PointPairs) NumInliers() int { return len(pp.Inliers) }

// TotalWeight sums the weights of all pairs.
func (pp *PointPairs) TotalWeight() float64 {
	total := 0.0
	for _, w := range pp.Weights {
		total += w
	}
	return total
}

// InlierWeight sums the weights of the inlier pairs.
func (pp *PointPairs) InlierWeight() float64 {
	total := 0.0
	for _, i := range pp.Inliers {
		total += pp.Weights[i]
	}
	return total
}

// HasLocalizationInliers reports whether there are enough inliers to
// estimate a homography.
func (pp *PointPairs) HasLocalizationInliers() bool { return len(pp.Inliers) >= 4 }

// ToFullResolution rescales coordinates from the (possibly downscaled)
// extraction size to the original image size. Arguments are the larger
// dimension of each image at extraction and at full resolution.
func (pp *PointPairs) ToFullResolution(queryMax, queryFull, refMax, refFull int) {
	if queryFull > queryMax && queryMax > 0 {
		zoom := float64(float32(queryFull) / float32(queryMax))
		for i := range pp.Query {
			pp.Query[i].X *= zoom
			pp.Query[i].Y *= zoom
		}
	}
	if refFull > refMax && refMax > 0 {
		zoom := float64(float32(refFull) / float32(refMax))
		for i := range pp.Ref {
			pp.Ref[i].X *= zoom
			pp.Ref[i].Y *= zoom
		}
	}
}

// IntersectionCount returns the number of pairs accepted in both directions.
func (pp *PointPairs) IntersectionCount() int {
	n := 0
	for _, d := range pp.Dirs {
		if d == Intersection {
			n++
		}
	}
	return n
}
