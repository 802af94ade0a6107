package engine

import (
	"sort"

	"cdvs/internal/descriptor"
	"cdvs/internal/local"
	"cdvs/internal/logger"
	"cdvs/internal/scfv"
	"cdvs/internal/storage"
	"cdvs/internal/types"
)

const (
	// expansionAnchors and expansionCandidates bound the recall graph
	// re-ranking window.
	expansionAnchors    = 35
	expansionCandidates = 2000
	// expansionBoost lifts a graph neighbour just above its anchor.
	expansionBoost = 0.001
)

// Retrieve ranks the database against q: the signature index gives a
// shortlist, the recall graph may re-rank it, then the first
// retrievalLoops candidates are verified geometrically. Results are sorted
// by inlier weight, highest first, and cut to limit. A query without local
// features gives no results.
func (s *Server) Retrieve(q *descriptor.Descriptor, limit int) ([]types.RetrievalResult, error) {
	if !q.HasLocal() {
		return nil, nil
	}
	qp, err := s.ps.Get(q.Mode)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	dbp, err := s.ps.Get(s.db.ModeID)
	if err != nil {
		return nil, err
	}

	shortlist := s.index.Query(q.Signature, qp.RetrievalLoops)
	if len(s.db.RecallGraph) > 0 && dbp.QueryExpansionLoops > 0 {
		expand(shortlist, s.db)
	}

	query, err := local.Compress(q.Features, q.Flags.Relevance && q.Features.RelevantCount() > 0)
	if err != nil {
		return nil, err
	}
	threshold := qp.WmRetrieval
	if s.opts.TwoWay {
		threshold = qp.WmRetrieval2Way
	}

	loops := min(qp.RetrievalLoops, len(shortlist))
	results := make([]types.RetrievalResult, 0, loops)
	for _, cand := range shortlist[:loops] {
		ref, err := s.db.Image(cand.Index)
		if err != nil {
			return nil, err
		}
		res := types.RetrievalResult{Index: cand.Index, Name: ref.Name, GlobalScore: cand.Score}
		pp := s.matchSets(query, ref, dbp.RatioThreshold)
		res.NumMatched = pp.Matched()
		if res.NumMatched >= qp.MinPairs() {
			verify(pp, qp.ChiSquarePercentile)
			res.NumInliers = pp.NumInliers()
			if w := pp.InlierWeight(); w >= threshold {
				res.Score = w
			}
		}
		logger.Debug("retrieve: candidate %d (%s) global %.3f, %d matched, %d inliers, score %.3f",
			res.Index, res.Name, res.GlobalScore, res.NumMatched, res.NumInliers, res.Score)
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// expand boosts, for the first anchor whose recall graph node lists a
// later candidate, every such candidate to just above the anchor, then
// re-sorts the shortlist. It only touches the caller's copy.
func expand(shortlist []scfv.Scored, db *storage.Database) {
	anchors := min(expansionAnchors, len(shortlist))
	window := min(expansionCandidates, len(shortlist))
	for a := 0; a < anchors; a++ {
		node := db.Neighbours(shortlist[a].Index)
		reranked := false
		for c := a + 1; c < window; c++ {
			if storage.HasEdge(node, shortlist[c].Index) {
				shortlist[c].Score = shortlist[a].Score + expansionBoost
				reranked = true
			}
		}
		if reranked {
			break
		}
	}
	sort.SliceStable(shortlist, func(i, j int) bool { return shortlist[i].Score > shortlist[j].Score })
}
