package coords

import (
	"math"

	"cdvs/internal/entropy"
	"cdvs/internal/types"
)

// Trainer gathers symbol statistics over sample images and turns them into
// coding tables.
type Trainer struct {
	c          *Compressor
	count      [SumHistCountSize]int
	initialMap [2]int
	sumMap     [MaxSumContext + 1][2]int
	samples    int
}

// NewTrainer starts a training session for the block width of c. Every
// counter starts at 1 so no symbol ends up with zero probability.
func NewTrainer(c *Compressor) *Trainer {
	t := &Trainer{c: c}
	for i := range t.count {
		t.count[i] = 1
	}
	t.initialMap = [2]int{1, 1}
	for j := range t.sumMap {
		t.sumMap[j] = [2]int{1, 1}
	}
	return t
}

// AddSample accumulates the statistics of all keypoints of fs.
func (t *Trainer) AddSample(fs *types.FeatureSet) error {
	h, err := t.c.BuildHistogram(fs, fs.Len())
	if err != nil {
		return err
	}
	for _, cnt := range h.Counts {
		if cnt-1 < SumHistCountSize {
			t.count[cnt-1]++
		}
	}
	t.samples++
	if len(h.Counts) == 0 {
		return nil
	}

	sm, _ := h.scanOrientation()
	ig := newIntegral(sm)
	seen := 0
	return circularScan(sm.width, sm.height, func(x, y int, r ring, contextual bool) (bool, error) {
		sym := sm.cells[x*sm.height+y]
		if contextual {
			t.sumMap[r.context(x, y, ig.sum)][sym]++
		} else {
			t.initialMap[sym]++
		}
		if sym != 0 {
			seen++
		}
		return seen == len(h.Counts), nil
	})
}

// Samples returns the number of images added so far.
func (t *Trainer) Samples() int { return t.samples }

// Finish converts the gathered statistics to cumulative tables; map models
// are rescaled to a total of entropy.MaxFreq.
func (t *Trainer) Finish() Tables {
	var out Tables
	sum := 0
	for i, v := range t.count {
		sum += v
		out.Count[i] = sum
	}
	const total = entropy.MaxFreq
	scale := func(c [2]int) [2]int {
		p0 := float64(c[0]) / float64(c[0]+c[1])
		f := min(max(int(math.Floor(total*p0)), 1), total-1)
		return [2]int{f, total}
	}
	out.InitialMap = scale(t.initialMap)
	for j := range t.sumMap {
		out.Map[j] = scale(t.sumMap[j])
	}
	return out
}
