// Package descriptor reads and writes the compact descriptor bitstream: a
// fixed header followed, when the image has local features, by the
// coordinate, local descriptor and global signature payloads.
package descriptor

import (
	"errors"
	"fmt"

	"cdvs/internal/bitstream"
	"cdvs/internal/coords"
	"cdvs/internal/local"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
	"cdvs/internal/types"
)

const (
	Version = 1

	// HeaderBits is the size of the header once aligned.
	HeaderBits = 64
	// GlobalFeatures is the number of keypoints aggregated into the signature.
	GlobalFeatures = 250
	// MaxSize is the largest descriptor of any mode, in bytes.
	MaxSize = 32 * 1024

	max16Bit          = 65536
	maxImageDimension = 65536
	maxDescLength     = 4 * 32
)

var (
	ErrVersion = errors.New("unsupported descriptor version")
	ErrMode    = errors.New("descriptor mode out of range")
	ErrOrder   = errors.New("decoded features disagree with the header")
)

// Descriptor is the decoded content of one bitstream.
type Descriptor struct {
	Version        int
	Mode           int
	Flags          types.HeaderFlags
	OriginalWidth  int
	OriginalHeight int
	NumLocal       int

	// Coordinate payload sizes, zero when NumLocal is zero.
	CountSize int
	MapX      int
	MapY      int
	Groups    int

	Features  *types.FeatureSet
	Signature *scfv.Signature
}

// HasLocal reports whether the descriptor carries local features.
func (d *Descriptor) HasLocal() bool { return d.NumLocal > 0 }

// MaxResolution returns the larger side of the coordinate space of the
// decoded keypoints.
func (d *Descriptor) MaxResolution() int {
	if d.Features == nil {
		return 0
	}
	return max(d.Features.Width, d.Features.Height)
}

// OriginalMaxResolution returns the larger side of the original image.
func (d *Descriptor) OriginalMaxResolution() int {
	return max(d.OriginalWidth, d.OriginalHeight)
}

// Check counts the header fields that fall outside their legal range and
// returns them joined in err. A descriptor read by Decode normally
// reports none.
func (d *Descriptor) Check() (int, error) {
	var errs []error
	if d.Version != Version {
		errs = append(errs, fmt.Errorf("%w: %d", ErrVersion, d.Version))
	}
	if d.Mode < 0 || d.Mode >= params.NumModes {
		errs = append(errs, fmt.Errorf("%w: %d", ErrMode, d.Mode))
	}
	if d.OriginalWidth > maxImageDimension || d.OriginalHeight > maxImageDimension {
		errs = append(errs, fmt.Errorf("original resolution %dx%d", d.OriginalWidth, d.OriginalHeight))
	}
	if d.NumLocal > max16Bit {
		errs = append(errs, fmt.Errorf("%d local descriptors", d.NumLocal))
	}
	if d.CountSize > max16Bit || d.MapX > max16Bit || d.MapY > max16Bit {
		errs = append(errs, fmt.Errorf("histogram %d cells in %dx%d", d.CountSize, d.MapX, d.MapY))
	}
	if d.Groups*local.ElementsPerGroup > maxDescLength {
		errs = append(errs, fmt.Errorf("local descriptor of %d groups", d.Groups))
	}
	return len(errs), errors.Join(errs...)
}

// Write serializes d. Features must be ternarized and already sorted by
// spatial index; cc must be the coordinate compressor of d.Mode.
func (d *Descriptor) Write(w *bitstream.Writer, cc *coords.Compressor, m *scfv.Model) error {
	writeHeader(w, d)
	if d.NumLocal == 0 {
		return w.Err()
	}
	h, err := cc.BuildHistogram(d.Features, d.NumLocal)
	if err != nil {
		return err
	}
	d.CountSize, d.MapX, d.MapY = h.CountSize(), h.MapX, h.MapY
	if err := cc.Encode(w, h); err != nil {
		return fmt.Errorf("coordinates: %w", err)
	}
	if err := local.WriteCodes(w, d.Features, d.Groups, d.NumLocal, d.Flags.Relevance); err != nil {
		return fmt.Errorf("local descriptors: %w", err)
	}
	d.Signature.Write(w, m)
	return w.Err()
}

func writeHeader(w *bitstream.Writer, d *Descriptor) {
	w.WriteBits(uint64(d.Version), 3)
	w.WriteBits(uint64(d.Mode), 8)
	w.WriteBits(uint64(types.EncodeFlags(d.Flags)), 3)
	w.AlignOnes()
	w.WriteBits(uint64(d.OriginalWidth), 16)
	w.WriteBits(uint64(d.OriginalHeight), 16)
	w.WriteBits(uint64(d.NumLocal), 16)
}
