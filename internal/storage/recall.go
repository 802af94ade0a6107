package storage

import (
	"cdvs/internal/logger"
	"cdvs/internal/scfv"
)

// BuildRecallGraph links every signature of idx to the (at most k) other
// signatures scoring at least minScore against it, best first.
func BuildRecallGraph(idx *scfv.Index, k int, minScore float64) [][]uint32 {
	graph := make([][]uint32, idx.Len())
	if k <= 0 {
		return graph
	}
	edges := 0
	for i := range graph {
		s, _ := idx.At(i)
		for _, hit := range idx.Query(s, k+1) {
			if hit.Index == i || hit.Score < minScore {
				continue
			}
			if len(graph[i]) == k {
				break
			}
			graph[i] = append(graph[i], uint32(hit.Index))
		}
		edges += len(graph[i])
	}
	logger.Info("Recall graph built: %d nodes, %d edges", len(graph), edges)
	return graph
}

// HasEdge reports whether node lists target.
func HasEdge(node []uint32, target int) bool {
	for _, id := range node {
		if int(id) == target {
			return true
		}
	}
	return false
}
