package coords

import "math"

// ring is the rectangle being scanned; cells strictly inside it have
// already been coded.
type ring struct {
	minX, maxX, minY, maxY int
}

// context returns the normalized count of occupied cells around (x,y),
// restricted to the already coded interior of the ring. boxSum returns the
// number of occupied cells in an inclusive box.
func (r ring) context(x, y int, boxSum func(minX, maxX, minY, maxY int) int) int {
	nbMinX := max(x-ContextRange, r.minX+1)
	nbMaxX := min(x+ContextRange, r.maxX-1)
	nbMinY := max(y-ContextRange, r.minY+1)
	nbMaxY := min(y+ContextRange, r.maxY-1)
	area := (nbMaxY - nbMinY + 1) * (nbMaxX - nbMinX + 1)
	sum := boxSum(nbMinX, nbMaxX, nbMinY, nbMaxY)
	if area != MaxSumContext {
		f := float32(sum) * MaxSumContext / float32(area)
		sum = min(MaxSumContext, int(math.Floor(float64(f))))
	}
	return sum
}

// visitFunc is called for every scanned cell; contextual reports whether
// the neighbour-sum models apply. Returning true stops the scan.
type visitFunc func(x, y int, r ring, contextual bool) (bool, error)

// circularScan visits a width x height map (width >= height) from the
// centre outwards: the middle row when the height is odd, then rings of
// left column (down), bottom row (right), right column (up) and top row
// (left). Rings use the plain model until the ring height reaches
// ContextRange.
func circularScan(width, height int, visit visitFunc) error {
	odd := height % 2
	steps := (height - odd) / 2
	r := ring{
		minX: steps - 1,
		maxX: width - 1 - (steps - 1),
		minY: steps - 1,
		maxY: height - 1 - (steps - 1),
	}

	if odd == 1 {
		y := r.minY + 1
		for x := r.minX + 1; x < r.maxX; x++ {
			if stop, err := visit(x, y, r, false); stop || err != nil {
				return err
			}
		}
	}

	contextual := false
	for s := 0; s < steps; s++ {
		for y := r.minY; y <= r.maxY; y++ {
			if stop, err := visit(r.minX, y, r, contextual); stop || err != nil {
				return err
			}
		}
		for x := r.minX + 1; x < r.maxX; x++ {
			if stop, err := visit(x, r.maxY, r, contextual); stop || err != nil {
				return err
			}
		}
		for y := r.maxY; y >= r.minY; y-- {
			if stop, err := visit(r.maxX, y, r, contextual); stop || err != nil {
				return err
			}
		}
		for x := r.maxX - 1; x > r.minX; x-- {
			if stop, err := visit(x, r.minY, r, contextual); stop || err != nil {
				return err
			}
		}
		r.minX--
		r.minY--
		r.maxX++
		r.maxY++
		if r.maxY-r.minY+1 >= ContextRange {
			contextual = true
		}
	}
	return nil
}

// integral is a zero-padded summed-area table of the occupancy map.
type integral struct {
	h    int // padded height
	data []int
}

func newIntegral(s *scanMap) *integral {
	ig := &integral{h: s.height + 1, data: make([]int, (s.width+1)*(s.height+1))}
	for x := 0; x < s.width; x++ {
		for y := 0; y < s.height; y++ {
			v := 0
			if s.cells[x*s.height+y] != 0 {
				v = 1
			}
			ig.data[(x+1)*ig.h+y+1] = v +
				ig.data[x*ig.h+y+1] +
				ig.data[(x+1)*ig.h+y] -
				ig.data[x*ig.h+y]
		}
	}
	return ig
}

func (ig *integral) sum(minX, maxX, minY, maxY int) int {
	return ig.data[(maxX+1)*ig.h+maxY+1] -
		ig.data[minX*ig.h+maxY+1] -
		ig.data[(maxX+1)*ig.h+minY] +
		ig.data[minX*ig.h+minY]
}
