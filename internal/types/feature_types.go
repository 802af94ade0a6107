package types

import "sort"

// DescriptorLength is the number of bins of a SIFT-like local descriptor.
const DescriptorLength = 128

// Point is a keypoint location in pixels.
type Point struct {
	X float64
	Y float64
}

// Keypoint is one detected interest point with its raw descriptor and,
// once ternarized, its quantized code.
type Keypoint struct {
	X           float32                   `json:"x"`
	Y           float32                   `json:"y"`
	Scale       float32                   `json:"scale,omitempty"`
	Orientation float32                   `json:"orientation,omitempty"`
	Peak        float32                   `json:"peak,omitempty"`
	Pdf         float32                   `json:"pdf,omitempty"` // probability of being matched, used for ranking
	Descriptor  [DescriptorLength]float32 `json:"descriptor"`
	Code        []uint8                   `json:"-"` // ternary values in {0,1,2}
	Relevant    bool                      `json:"-"`
	SpatialIdx  int                       `json:"-"` // coordinate coding order
}

// FeatureSet is an ordered list of keypoints plus the image geometry they
// were extracted from. Width/Height are the coordinate space of the points
// (the possibly resized image); the original size is carried separately.
type FeatureSet struct {
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	OriginalWidth  int        `json:"originalWidth"`
	OriginalHeight int        `json:"originalHeight"`
	Features       []Keypoint `json:"features"`
}

// Len returns the number of keypoints.
func (fs *FeatureSet) Len() int { return len(fs.Features) }

// Points returns the keypoint locations of the first n features.
func (fs *FeatureSet) Points(n int) []Point {
	if n > len(fs.Features) || n < 0 {
		n = len(fs.Features)
	}
	pts := make([]Point, n)
	for i := 0; i < n; i++ {
		pts[i] = Point{X: float64(fs.Features[i].X), Y: float64(fs.Features[i].Y)}
	}
	return pts
}

// SelectFirst drops every keypoint after the first n.
func (fs *FeatureSet) SelectFirst(n int) {
	if n >= 0 && n < len(fs.Features) {
		fs.Features = fs.Features[:n]
	}
}

// SortByPdf orders keypoints by decreasing match probability, keeping the
// detector order among equals.
func (fs *FeatureSet) SortByPdf() {
	sort.SliceStable(fs.Features, func(i, j int) bool {
		return fs.Features[i].Pdf > fs.Features[j].Pdf
	})
}

// SortBySpatialIndex orders keypoints by their coordinate coding position.
func (fs *FeatureSet) SortBySpatialIndex() {
	sort.SliceStable(fs.Features, func(i, j int) bool {
		return fs.Features[i].SpatialIdx < fs.Features[j].SpatialIdx
	})
}

// SetRelevant flags the first n keypoints as relevant. n == 0 leaves the
// flags untouched.
func (fs *FeatureSet) SetRelevant(n int) {
	if n == 0 {
		return
	}
	for i := range fs.Features {
		if i < n {
			fs.Features[i].Relevant = true
		}
	}
}

// RelevantCount returns the number of keypoints flagged relevant.
func (fs *FeatureSet) RelevantCount() int {
	n := 0
	for i := range fs.Features {
		if fs.Features[i].Relevant {
			n++
		}
	}
	return n
}

// HeaderFlags are the one-bit capability flags of a descriptor header.
type HeaderFlags struct {
	BitSelection bool // Bit 2: global signature uses bit selection
	Variance     bool // Bit 1: global signature carries variance words
	Relevance    bool // Bit 0: one relevance bit per local descriptor
}

// ParseFlags converts the 3-bit header field to HeaderFlags.
func ParseFlags(flags uint8) HeaderFlags {
	return HeaderFlags{
		BitSelection: (flags & 0b100) != 0,
		Variance:     (flags & 0b010) != 0,
		Relevance:    (flags & 0b001) != 0,
	}
}

// EncodeFlags converts HeaderFlags to the 3-bit header field.
func EncodeFlags(hf HeaderFlags) uint8 {
	var flags uint8
	if hf.BitSelection {
		flags |= 0b100
	}
	if hf.Variance {
		flags |= 0b010
	}
	if hf.Relevance {
		flags |= 0b001
	}
	return flags
}
