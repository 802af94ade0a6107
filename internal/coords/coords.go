// Package coords compresses keypoint locations: points are binned into a
// histogram of blockWidth x blockWidth cells, the per-cell counts are
// arithmetic coded, then the occupancy map is coded in a circular scan from
// the centre outwards using neighbour-sum contexts.
package coords

import (
	"errors"
	"fmt"
	"math"

	"cdvs/internal/bitstream"
	"cdvs/internal/entropy"
	"cdvs/internal/params"
	"cdvs/internal/types"
)

var (
	ErrBlockWidth    = errors.New("block width out of range")
	ErrMapIncomplete = errors.New("occupancy map ended before every occupied cell was found")
	ErrPointOutside  = errors.New("point outside the image")
)

// Histogram is the binned representation of a point set. Map is stored
// column-major (index x*MapY + y) in the untransposed orientation.
type Histogram struct {
	MapX   int
	MapY   int
	Counts []int   // per occupied cell, column-major order
	Map    []uint8 // 1 where a cell is occupied
}

// CountSize returns the number of occupied cells.
func (h *Histogram) CountSize() int { return len(h.Counts) }

// NumPoints returns the number of points the histogram represents.
func (h *Histogram) NumPoints() int {
	n := 0
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Compressor encodes and decodes histograms with one set of tables.
type Compressor struct {
	blockWidth int
	tables     Tables
}

// New creates a Compressor with the built-in tables of p.
func New(p *params.Parameters) (*Compressor, error) {
	t, err := DefaultTables(p.BlockWidth, p.CtxTableIdx)
	if err != nil {
		return nil, err
	}
	return &Compressor{blockWidth: p.BlockWidth, tables: t}, nil
}

// WithTables replaces the coding tables, e.g. with trained ones.
func (c *Compressor) WithTables(t Tables) *Compressor {
	c.tables = t
	return c
}

// BlockWidth returns the histogram cell size in pixels.
func (c *Compressor) BlockWidth() int { return c.blockWidth }

// BuildHistogram bins the first n keypoints of fs and stores in each of
// them its spatial index, the order in which the decoder will return it.
func (c *Compressor) BuildHistogram(fs *types.FeatureSet, n int) (*Histogram, error) {
	if n > fs.Len() || n < 0 {
		n = fs.Len()
	}
	bw := c.blockWidth
	h := &Histogram{
		MapX: (fs.Width + bw - 1) / bw,
		MapY: (fs.Height + bw - 1) / bw,
	}
	cells := make([]int, h.MapX*h.MapY)
	occupied := 0
	for i := 0; i < n; i++ {
		kp := &fs.Features[i]
		x := int(math.Floor(float64(kp.X) / float64(bw)))
		y := int(math.Floor(float64(kp.Y) / float64(bw)))
		if x < 0 || y < 0 || x >= h.MapX || y >= h.MapY {
			return nil, fmt.Errorf("%w: (%g,%g) in %dx%d", ErrPointOutside, kp.X, kp.Y, fs.Width, fs.Height)
		}
		idx := x*h.MapY + y
		kp.SpatialIdx = idx
		if cells[idx] == 0 {
			occupied++
		}
		cells[idx]++
	}

	h.Counts = make([]int, 0, occupied)
	h.Map = make([]uint8, len(cells))
	for idx, cnt := range cells {
		if cnt > 0 {
			h.Counts = append(h.Counts, cnt)
			h.Map[idx] = 1
		}
	}
	return h, nil
}

// Points reconstructs the cell centre of every point, in coding order.
func (c *Compressor) Points(h *Histogram) []types.Point {
	pts := make([]types.Point, 0, h.NumPoints())
	centre := float64(c.blockWidth) * 0.5
	k := 0
	for x := 0; x < h.MapX; x++ {
		for y := 0; y < h.MapY; y++ {
			if h.Map[x*h.MapY+y] == 0 {
				continue
			}
			p := types.Point{X: float64(x*c.blockWidth) + centre, Y: float64(y*c.blockWidth) + centre}
			for i := 0; i < h.Counts[k]; i++ {
				pts = append(pts, p)
			}
			k++
		}
	}
	return pts
}

// ImageSize returns the coordinate space reconstructed by the decoder.
func (c *Compressor) ImageSize(h *Histogram) (int, int) {
	return h.MapX * c.blockWidth, h.MapY * c.blockWidth
}

// scanMap is the occupancy map in scan orientation: width >= height.
type scanMap struct {
	width  int
	height int
	cells  []uint8 // column-major, index x*height + y
}

func (h *Histogram) scanOrientation() (*scanMap, bool) {
	if h.MapY <= h.MapX {
		return &scanMap{width: h.MapX, height: h.MapY, cells: h.Map}, false
	}
	// transpose: new x = old y
	t := make([]uint8, len(h.Map))
	for x := 0; x < h.MapX; x++ {
		for y := 0; y < h.MapY; y++ {
			t[y*h.MapX+x] = h.Map[x*h.MapY+y]
		}
	}
	return &scanMap{width: h.MapY, height: h.MapX, cells: t}, true
}

func (s *scanMap) untranspose(mapX, mapY int) []uint8 {
	out := make([]uint8, len(s.cells))
	for x := 0; x < mapX; x++ {
		for y := 0; y < mapY; y++ {
			out[x*mapY+y] = s.cells[y*mapX+x]
		}
	}
	return out
}

type models struct {
	count   *entropy.Model
	initial *entropy.Model
	sum     [MaxSumContext + 1]*entropy.Model
}

func (c *Compressor) models() (*models, error) {
	var m models
	var err error
	if m.count, err = entropy.NewModelFromCumulative(SumHistCountSize, c.tables.Count[:]); err != nil {
		return nil, fmt.Errorf("count model: %w", err)
	}
	if m.initial, err = entropy.NewModelFromCumulative(2, c.tables.InitialMap[:]); err != nil {
		return nil, fmt.Errorf("initial map model: %w", err)
	}
	for i := range m.sum {
		if m.sum[i], err = entropy.NewModelFromCumulative(2, c.tables.Map[i][:]); err != nil {
			return nil, fmt.Errorf("context model %d: %w", i, err)
		}
	}
	return &m, nil
}

// Encode writes the histogram: count size, map size, the counts, then the map.
func (c *Compressor) Encode(w *bitstream.Writer, h *Histogram) error {
	m, err := c.models()
	if err != nil {
		return err
	}
	w.WriteBits(uint64(len(h.Counts)), 16)
	w.WriteBits(uint64(h.MapX), 16)
	w.WriteBits(uint64(h.MapY), 16)

	enc := entropy.NewEncoder(w)
	for _, cnt := range h.Counts {
		if err := enc.Encode(m.count, cnt-1); err != nil {
			return fmt.Errorf("cell count %d: %w", cnt, err)
		}
	}
	enc.Done()

	sm, _ := h.scanOrientation()
	integral := newIntegral(sm)
	enc = entropy.NewEncoder(w)
	coded := 0
	if len(h.Counts) > 0 {
		err = circularScan(sm.width, sm.height, func(x, y int, r ring, contextual bool) (bool, error) {
			model := m.initial
			if contextual {
				model = m.sum[r.context(x, y, integral.sum)]
			}
			sym := int(sm.cells[x*sm.height+y])
			if err := enc.Encode(model, sym); err != nil {
				return true, err
			}
			if sym != 0 {
				coded++
			}
			return coded == len(h.Counts), nil
		})
	}
	enc.Done()
	if err != nil {
		return err
	}
	return w.Err()
}

// Decode reads a histogram written by Encode.
func (c *Compressor) Decode(r *bitstream.Reader) (*Histogram, error) {
	m, err := c.models()
	if err != nil {
		return nil, err
	}
	countSize := int(r.ReadBits(16))
	h := &Histogram{MapX: int(r.ReadBits(16)), MapY: int(r.ReadBits(16))}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if countSize > h.MapX*h.MapY {
		return nil, bitstream.Decodef("coordinates", "%d occupied cells in a %dx%d map", countSize, h.MapX, h.MapY)
	}

	dec := entropy.NewDecoder(r)
	h.Counts = make([]int, countSize)
	for i := range h.Counts {
		sym, err := dec.Decode(m.count)
		if err != nil {
			return nil, err
		}
		h.Counts[i] = sym + 1
	}
	dec.Done()

	sm := &scanMap{width: h.MapX, height: h.MapY}
	transposed := h.MapY > h.MapX
	if transposed {
		sm.width, sm.height = h.MapY, h.MapX
	}
	sm.cells = make([]uint8, h.MapX*h.MapY)
	direct := func(x, y int) int { return int(sm.cells[x*sm.height+y]) }

	dec = entropy.NewDecoder(r)
	decoded := 0
	if countSize > 0 {
		err = circularScan(sm.width, sm.height, func(x, y int, rg ring, contextual bool) (bool, error) {
			model := m.initial
			if contextual {
				model = m.sum[rg.context(x, y, func(minX, maxX, minY, maxY int) int {
					s := 0
					for ix := minX; ix <= maxX; ix++ {
						for iy := minY; iy <= maxY; iy++ {
							s += direct(ix, iy)
						}
					}
					return s
				})]
			}
			sym, err := dec.Decode(model)
			if err != nil {
				return true, err
			}
			sm.cells[x*sm.height+y] = uint8(sym)
			if sym != 0 {
				decoded++
			}
			return decoded == countSize, nil
		})
		if err != nil {
			return nil, err
		}
		if decoded != countSize {
			return nil, &bitstream.DecodeError{Op: "coordinates", Err: ErrMapIncomplete}
		}
	}
	dec.Done()
	if err := r.Err(); err != nil {
		return nil, err
	}

	h.Map = sm.cells
	if transposed {
		h.Map = sm.untranspose(h.MapX, h.MapY)
	}
	return h, nil
}
