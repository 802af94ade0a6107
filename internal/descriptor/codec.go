package descriptor

import (
	"fmt"

	"cdvs/internal/bitstream"
	"cdvs/internal/coords"
	"cdvs/internal/local"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
	"cdvs/internal/types"
)

// Encoder produces descriptors of one mode.
type Encoder struct {
	p       *params.Parameters
	cc      *coords.Compressor
	model   *scfv.Model
	factory *scfv.Factory
}

// NewEncoder binds the parameters of one mode to a signature model.
func NewEncoder(p *params.Parameters, m *scfv.Model) (*Encoder, error) {
	cc, err := coords.New(p)
	if err != nil {
		return nil, err
	}
	return &Encoder{p: p, cc: cc, model: m, factory: scfv.NewFactory(m, p)}, nil
}

// WithCoordinateTables replaces the built-in coordinate coding tables.
func (e *Encoder) WithCoordinateTables(t coords.Tables) *Encoder {
	e.cc.WithTables(t)
	return e
}

// Encode builds the descriptor of fs and returns its bitstream. The
// keypoints are ranked by Pdf, capped at selectMaxPoints, summarized into
// the signature, ternarized, then cut to the number that fits the byte
// budget of the mode. fs is left untouched.
func (e *Encoder) Encode(fs *types.FeatureSet) ([]byte, *Descriptor, error) {
	work := *fs
	work.Features = append([]types.Keypoint(nil), fs.Features...)
	if work.OriginalWidth == 0 && work.OriginalHeight == 0 {
		work.OriginalWidth, work.OriginalHeight = work.Width, work.Height
	}
	work.SortByPdf()
	if e.p.SelectMaxPoints > 0 {
		work.SelectFirst(e.p.SelectMaxPoints)
	}

	sig := e.factory.Generate(&work, GlobalFeatures)
	groups := e.p.NumberOfElementGroups
	if err := local.Ternarize(&work, groups); err != nil {
		return nil, nil, err
	}
	work.SetRelevant(e.p.NumRelevantPoints)

	n := 0
	if target := 8*e.p.DescLength - HeaderBits - sig.CompressedNumBits(); target > 0 && work.Len() > 0 {
		var err error
		if n, err = local.ComputeMaxPoints(&work, e.p, e.cc, target); err != nil {
			return nil, nil, err
		}
	}
	work.SelectFirst(n)

	d := &Descriptor{
		Version: Version,
		Mode:    e.p.ModeID,
		Flags: types.HeaderFlags{
			BitSelection: e.p.HasBitSelection,
			Variance:     e.p.HasVar,
			Relevance:    e.p.NumRelevantPoints > 0,
		},
		OriginalWidth:  work.OriginalWidth,
		OriginalHeight: work.OriginalHeight,
		NumLocal:       n,
		Features:       &work,
		Signature:      sig,
	}
	if n > 0 {
		if _, err := e.cc.BuildHistogram(&work, n); err != nil {
			return nil, nil, err
		}
		work.SortBySpatialIndex()
		d.Groups = groups
	} else {
		d.Signature = scfv.NewSignature(e.p.HasVar, e.p.HasBitSelection)
		d.Signature.SetNorm()
	}

	w := bitstream.NewWriter()
	if err := d.Write(w, e.cc, e.model); err != nil {
		return nil, nil, err
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return data, d, nil
}

// Decoder reads descriptors of any mode.
type Decoder struct {
	ps    *params.ParameterSet
	model *scfv.Model
	cc    [params.NumModes]*coords.Compressor
}

// NewDecoder prepares one coordinate compressor per mode of ps.
func NewDecoder(ps *params.ParameterSet, m *scfv.Model) (*Decoder, error) {
	dec := &Decoder{ps: ps, model: m}
	for mode := range dec.cc {
		p, err := ps.Get(mode)
		if err != nil {
			return nil, err
		}
		if dec.cc[mode], err = coords.New(p); err != nil {
			return nil, fmt.Errorf("mode %d: %w", mode, err)
		}
	}
	return dec, nil
}

// WithCoordinateTables replaces the coordinate coding tables of one mode.
func (dec *Decoder) WithCoordinateTables(mode int, t coords.Tables) error {
	if mode < 0 || mode >= params.NumModes {
		return &params.ConfigError{Field: "mode", Err: params.ErrModeRange}
	}
	dec.cc[mode].WithTables(t)
	return nil
}

// Decode reads one descriptor from the start of data and returns it with
// the number of bytes it occupied.
func (dec *Decoder) Decode(data []byte) (*Descriptor, int, error) {
	r := bitstream.NewReader(data)
	d := &Descriptor{Version: int(r.ReadBits(3))}
	if d.Version != Version {
		return nil, 0, &bitstream.DecodeError{Op: "header", Err: fmt.Errorf("%w: %d", ErrVersion, d.Version)}
	}
	d.Mode = int(r.ReadBits(8))
	if d.Mode >= params.NumModes {
		return nil, 0, &bitstream.DecodeError{Op: "header", Err: fmt.Errorf("%w: %d", ErrMode, d.Mode)}
	}
	d.Flags = types.ParseFlags(uint8(r.ReadBits(3)))
	r.Align()
	d.OriginalWidth = int(r.ReadBits(16))
	d.OriginalHeight = int(r.ReadBits(16))
	d.NumLocal = int(r.ReadBits(16))
	if err := r.Err(); err != nil {
		return nil, 0, err
	}

	d.Features = &types.FeatureSet{OriginalWidth: d.OriginalWidth, OriginalHeight: d.OriginalHeight}
	d.Signature = scfv.NewSignature(d.Flags.Variance, d.Flags.BitSelection)
	d.Signature.SetNorm()
	if d.NumLocal > 0 {
		if err := dec.readPayloads(r, d); err != nil {
			return nil, 0, err
		}
	}
	r.Align()
	if err := r.Err(); err != nil {
		return nil, 0, err
	}
	return d, r.Consumed() / 8, nil
}

func (dec *Decoder) readPayloads(r *bitstream.Reader, d *Descriptor) error {
	cc := dec.cc[d.Mode]
	h, err := cc.Decode(r)
	if err != nil {
		return err
	}
	if h.NumPoints() != d.NumLocal {
		return &bitstream.DecodeError{Op: "coordinates", Err: fmt.Errorf("%w: %d points for %d local descriptors", ErrOrder, h.NumPoints(), d.NumLocal)}
	}
	d.CountSize, d.MapX, d.MapY = h.CountSize(), h.MapX, h.MapY

	fs := d.Features
	fs.Width, fs.Height = cc.ImageSize(h)
	for i, p := range cc.Points(h) {
		fs.Features = append(fs.Features, types.Keypoint{X: float32(p.X), Y: float32(p.Y), SpatialIdx: i})
	}
	if d.Groups, err = local.ReadCodes(r, fs, d.Flags.Relevance); err != nil {
		return err
	}
	return d.Signature.Read(r, dec.model)
}
