package engine

import (
	"math/rand"

	"cdvs/internal/descriptor"
	"cdvs/internal/distrat"
	"cdvs/internal/geometry"
	"cdvs/internal/local"
	"cdvs/internal/logger"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
	"cdvs/internal/types"
)

const (
	// minIntersection is the number of intersection inliers from which
	// localization ignores the one-sided ones.
	minIntersection = 8
	// forcedScore is the score of a pair whose global correlation clears
	// the global threshold.
	forcedScore = 1.0
)

// side is one image of a comparison.
type side struct {
	mode int
	set  *local.CompressedSet
	sig  *scfv.Signature
}

// Match compares two decoded descriptors. A descriptor without local
// features gives an empty match.
func (s *Server) Match(q, r *descriptor.Descriptor, opts MatchOptions) (*Match, error) {
	if !q.HasLocal() || !r.HasLocal() {
		return emptyMatch(), nil
	}
	cq, err := local.Compress(q.Features, false)
	if err != nil {
		return nil, err
	}
	cr, err := local.Compress(r.Features, false)
	if err != nil {
		return nil, err
	}
	return s.match(side{q.Mode, cq, q.Signature}, side{r.Mode, cr, r.Signature}, opts)
}

// MatchIndex compares a query with database row. A query without local
// features or a row out of range gives an empty match.
func (s *Server) MatchIndex(q *descriptor.Descriptor, row int, opts MatchOptions) (*Match, error) {
	if !q.HasLocal() {
		return emptyMatch(), nil
	}
	cq, err := local.Compress(q.Features, false)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	cr, err := s.db.Image(row)
	if err != nil {
		return emptyMatch(), nil
	}
	sig, err := s.index.At(row)
	if err != nil {
		return emptyMatch(), nil
	}
	return s.match(side{q.Mode, cq, q.Signature}, side{s.db.ModeID, cr, sig}, opts)
}

// thresholds picks the local and global thresholds of a query/reference
// mode pair. Mixed thresholds apply when the descriptor lengths differ;
// an unset mixed global threshold falls back to the matched one.
func (s *Server) thresholds(qp, rp *params.Parameters) (wm, gd float64) {
	wm, gd = qp.WmThreshold, qp.GdThreshold
	if s.opts.TwoWay {
		wm = qp.WmThreshold2Way
	}
	if qp.DescLength != rp.DescLength {
		wm = qp.WmMixed
		if s.opts.TwoWay {
			wm = qp.WmMixed2Way
		}
		if qp.GdThresholdMixed != 0 {
			gd = qp.GdThresholdMixed
		}
	}
	return wm, gd
}

func (s *Server) matchSets(q, r *local.CompressedSet, ratio float64) *local.PointPairs {
	if s.opts.TwoWay {
		return local.MatchTwoWay(q, r, ratio)
	}
	return local.MatchOneWay(q, r, ratio)
}

// verify runs DISTRAT on pp and stores the inliers.
func verify(pp *local.PointPairs, percentile int) {
	v, err := distrat.New(pp.Query, pp.Ref)
	if err != nil {
		return
	}
	pp.Inliers = v.EstimateInliers(false, percentile).Inliers
}

func (s *Server) match(q, r side, opts MatchOptions) (*Match, error) {
	qp, err := s.ps.Get(q.mode)
	if err != nil {
		return nil, err
	}
	rp, err := s.ps.Get(r.mode)
	if err != nil {
		return nil, err
	}
	wm, gd := s.thresholds(qp, rp)
	ratio := min(qp.RatioThreshold, rp.RatioThreshold)
	percentile := max(qp.ChiSquarePercentile, rp.ChiSquarePercentile)

	pp := local.NewPointPairs(0)
	if opts.Type != types.MatchGlobal {
		pp = s.matchSets(q.set, r.set, ratio)
		if pp.Matched() >= qp.MinPairs() && pp.TotalWeight() >= wm {
			verify(pp, percentile)
			pp.LocalScore = pp.InlierWeight()
			pp.Score = pp.LocalScore / (pp.LocalScore + wm)
		}
	}
	pp.LocalThreshold, pp.GlobalThreshold = wm, gd

	if opts.Type != types.MatchLocal && (pp.Score < 0.5 || opts.Type == types.MatchBoth) {
		pp.GlobalScore = s.tables.Match(q.sig, r.sig)
		if pp.GlobalScore > gd {
			pp.Score = forcedScore
		}
	}

	qMax, qFull := max(q.set.Width, q.set.Height), max(q.set.OriginalWidth, q.set.OriginalHeight)
	rMax, rFull := max(r.set.Width, r.set.Height), max(r.set.OriginalWidth, r.set.OriginalHeight)
	pp.ToFullResolution(qMax, qFull, rMax, rFull)
	logger.Debug("match: %d pairs, %d inliers, local %.3f, global %.3f, score %.3f",
		pp.Matched(), pp.NumInliers(), pp.LocalScore, pp.GlobalScore, pp.Score)

	m := &Match{PointPairs: pp}
	if opts.Localize {
		box := s.localize(pp, q.set, r.set, qp, opts.RefBox)
		m.Box = &box
	}
	return m, nil
}

// localize projects the reference box into the query image through a
// homography fitted on the inliers. Without enough inliers the box is the
// whole query image.
func (s *Server) localize(pp *local.PointPairs, q, r *local.CompressedSet, qp *params.Parameters, refBox *geometry.Quad) geometry.Quad {
	if !pp.HasLocalizationInliers() {
		return geometry.ImageQuad(q.OriginalWidth, q.OriginalHeight)
	}
	box := geometry.ImageQuad(r.OriginalWidth, r.OriginalHeight)
	if refBox != nil {
		box = *refBox
	}

	qMax, qFull := max(q.Width, q.Height), max(q.OriginalWidth, q.OriginalHeight)
	zoom := 1.0
	switch {
	case qFull > qMax && qMax > 0:
		zoom = float64(qFull) / float64(qMax)
	case qp.ResizeMaxSize > 0:
		zoom = float64(qFull) / float64(qp.ResizeMaxSize)
	}

	inliers := pp.Inliers
	if pp.Dirs != nil {
		var both []int
		for _, i := range inliers {
			if pp.Dirs[i] == local.Intersection {
				both = append(both, i)
			}
		}
		if len(both) >= minIntersection {
			inliers = both
		}
	}
	from := make([]types.Point, len(inliers))
	to := make([]types.Point, len(inliers))
	for k, i := range inliers {
		from[k], to[k] = pp.Ref[i], pp.Query[i]
	}
	rng := rand.New(rand.NewSource(s.opts.Seed))
	est := geometry.RANSAC(from, to, qp.RansacNumTests, zoom*qp.RansacThreshold, rng)
	return est.H.Project(box)
}
