package local

import (
	"math"
	"sort"

	"cdvs/internal/types"
)

const noDistance = 65536

type candidate struct {
	query  int
	ref    int
	weight float64
}

// nearest runs the ratio test for one row of distances and reports the
// index of the nearest neighbour and the match weight.
func nearest(dist func(j int) int, n int, ratio2 float64) (int, float64, bool) {
	best, second, bestIdx := noDistance, noDistance, 0
	for j := 0; j < n; j++ {
		d := dist(j)
		if d < best {
			second = best
			best = d
			bestIdx = j
		} else if d < second {
			second = d
		}
	}
	if second <= 0 || float64(best) > ratio2*float64(second) {
		return 0, 0, false
	}
	return bestIdx, math.Cos(math.Pi / 2 * math.Sqrt(float64(best)/float64(second))), true
}

// unique keeps, for every value of key, the candidate with the highest
// weight. The result is ordered by key.
func unique(cands []candidate, key func(c candidate) int) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		ki, kj := key(cands[i]), key(cands[j])
		if ki != kj {
			return ki < kj
		}
		return cands[i].weight > cands[j].weight
	})
	out := cands[:0]
	last := -1
	for _, c := range cands {
		if key(c) != last {
			last = key(c)
			out = append(out, c)
		}
	}
	return out
}

func byRef(c candidate) int   { return c.ref }
func byQuery(c candidate) int { return c.query }

func (cs *CompressedSet) point(k int) types.Point {
	return types.Point{X: float64(cs.X[k]), Y: float64(cs.Y[k])}
}

// MatchOneWay matches every keypoint of q to its nearest neighbour in r,
// keeping matches that pass the ratio test. Each reference keypoint is used
// at most once.
func MatchOneWay(q, r *CompressedSet, ratio float64) *PointPairs {
	pp := NewPointPairs(q.Len() + r.Len())
	if q.Len() < 2 || r.Len() < 2 {
		return pp
	}
	n := min(q.DescLen, r.DescLen)
	ratio2 := ratio * ratio
	var cands []candidate
	for i := 0; i < q.Len(); i++ {
		qc := q.Code(i)
		j, w, ok := nearest(func(j int) int { return Distance(qc, r.Code(j), n) }, r.Len(), ratio2)
		if ok {
			cands = append(cands, candidate{query: i, ref: j, weight: w})
		}
	}
	for _, c := range unique(cands, byRef) {
		pp.Add(q.point(c.query), r.point(c.ref), c.weight, Disjoint1)
	}
	return pp
}

// MatchTwoWay runs the ratio test from both sides. Pairs found both ways
// are tagged Intersection with the mean weight; the others are tagged by
// the side that found them. When one-sided pairs outnumber the
// intersection, their weights are scaled by intersection/disjoint.
func MatchTwoWay(q, r *CompressedSet, ratio float64) *PointPairs {
	pp := NewPointPairs(q.Len() + r.Len())
	if q.Len() < 2 || r.Len() < 2 {
		return pp
	}
	n := min(q.DescLen, r.DescLen)
	ratio2 := ratio * ratio
	nq, nr := q.Len(), r.Len()
	dist := make([]int, nq*nr)
	for i := 0; i < nq; i++ {
		qc := q.Code(i)
		for j := 0; j < nr; j++ {
			dist[i*nr+j] = Distance(qc, r.Code(j), n)
		}
	}

	var forward, backward []candidate
	for i := 0; i < nq; i++ {
		if j, w, ok := nearest(func(j int) int { return dist[i*nr+j] }, nr, ratio2); ok {
			forward = append(forward, candidate{query: i, ref: j, weight: w})
		}
	}
	for j := 0; j < nr; j++ {
		if i, w, ok := nearest(func(i int) int { return dist[i*nr+j] }, nq, ratio2); ok {
			backward = append(backward, candidate{query: i, ref: j, weight: w})
		}
	}
	forward = unique(forward, byRef)
	backward = unique(backward, byQuery)

	type key struct{ q, r int }
	back := make(map[key]float64, len(backward))
	for _, c := range backward {
		back[key{c.query, c.ref}] = c.weight
	}
	fwd := make(map[key]bool, len(forward))
	for _, c := range forward {
		k := key{c.query, c.ref}
		fwd[k] = true
		if w, ok := back[k]; ok {
			pp.Add(q.point(c.query), r.point(c.ref), (c.weight+w)*0.5, Intersection)
		} else {
			pp.Add(q.point(c.query), r.point(c.ref), c.weight, Disjoint1)
		}
	}
	for _, c := range backward {
		if !fwd[key{c.query, c.ref}] {
			pp.Add(q.point(c.query), r.point(c.ref), c.weight, Disjoint2)
		}
	}

	inter := pp.IntersectionCount()
	disjoint := pp.Matched() - inter
	if disjoint > inter {
		scale := float64(inter) / float64(disjoint)
		for i, d := range pp.Dirs {
			if d != Intersection {
				pp.Weights[i] *= scale
			}
		}
	}
	return pp
}
