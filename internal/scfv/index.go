package scfv

import (
	"container/heap"
	"errors"

	"github.com/steakknife/hamming"
)

// MinVisited is the smallest visited count an indexed signature needs to
// take part in a query.
const MinVisited = 6

var ErrIndexRange = errors.New("signature index out of range")

// Match returns the correlation score of two signatures: the sum over
// jointly visited components of the table value at the Hamming distance of
// their words, divided by the product of the norms. Signatures without
// visited components score 0.
func (t *Tables) Match(a, b *Signature) float64 {
	if a.numVisited == 0 || b.numVisited == 0 {
		return 0
	}
	useVar := a.carriesVar() && b.carriesVar()
	selected := a.HasBitSelection || b.HasBitSelection
	both := a.visited.Intersect(&b.visited)

	total := 0.0
	for _, k := range both.ToSlice() {
		if selected {
			h := onesCount((a.Words[k] ^ b.Words[k]) & t.masks[k])
			total += t.SelMean[h]
		} else {
			total += t.Mean[hamming.Uint32(a.Words[k], b.Words[k])]
		}
		if useVar {
			total += t.Var[hamming.Uint32(a.VarWords[k], b.VarWords[k])]
		}
	}
	if useVar {
		return total / (2 * a.norm * b.norm)
	}
	return total / (a.norm * b.norm)
}

// Scored is one ranked index entry.
type Scored struct {
	Index int
	Score float64
}

// scoredHeap is a min-heap on score; on equal scores the higher index is
// evicted first.
type scoredHeap []Scored

func (h scoredHeap) Len() int { return len(h) }
func (h scoredHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Index > h[j].Index
}
func (h scoredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)   { *h = append(*h, x.(Scored)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Index is an ordered collection of signatures. It is not safe for
// concurrent mutation; callers serialize writers against readers.
type Index struct {
	tables     *Tables
	signatures []*Signature
}

// NewIndex creates an empty index scoring with t.
func NewIndex(t *Tables) *Index {
	return &Index{tables: t}
}

// Tables returns the correlation tables of the index.
func (x *Index) Tables() *Tables { return x.tables }

// Len returns the number of signatures.
func (x *Index) Len() int { return len(x.signatures) }

// Append adds s as the last row.
func (x *Index) Append(s *Signature) {
	x.signatures = append(x.signatures, s)
}

// Replace overwrites row i.
func (x *Index) Replace(i int, s *Signature) error {
	if i < 0 || i >= len(x.signatures) {
		return ErrIndexRange
	}
	x.signatures[i] = s
	return nil
}

// At returns row i.
func (x *Index) At(i int) (*Signature, error) {
	if i < 0 || i >= len(x.signatures) {
		return nil, ErrIndexRange
	}
	return x.signatures[i], nil
}

// Clear removes every row.
func (x *Index) Clear() {
	x.signatures = nil
}

// Query scores q against every row and returns the best k, highest score
// first and lower row first among equal scores. Rows with fewer than
// MinVisited components score 0.
func (x *Index) Query(q *Signature, k int) []Scored {
	k = min(k, len(x.signatures))
	if k <= 0 {
		return nil
	}
	h := make(scoredHeap, 0, k+1)
	for i, s := range x.signatures {
		item := Scored{Index: i}
		if s.numVisited >= MinVisited {
			item.Score = x.tables.Match(q, s)
		}
		if len(h) < k {
			heap.Push(&h, item)
			continue
		}
		if better(item, h[0]) {
			h[0] = item
			heap.Fix(&h, 0)
		}
	}
	out := make([]Scored, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Scored)
	}
	return out
}

func better(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}
