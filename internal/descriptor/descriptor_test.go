package descriptor

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"cdvs/internal/bitstream"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
	"cdvs/internal/types"
)

func randomSet(rng *rand.Rand, n int) *types.FeatureSet {
	fs := &types.FeatureSet{Width: 640, Height: 480, OriginalWidth: 1600, OriginalHeight: 1200}
	for i := 0; i < n; i++ {
		kp := types.Keypoint{
			X:   rng.Float32() * 639,
			Y:   rng.Float32() * 479,
			Pdf: rng.Float32(),
		}
		for j := range kp.Descriptor {
			if rng.Intn(3) > 0 {
				kp.Descriptor[j] = float32(rng.Intn(140))
			}
		}
		fs.Features = append(fs.Features, kp)
	}
	return fs
}

func TestRoundTripAllModes(t *testing.T) {
	m := scfv.RandomModel(1)
	ps := params.Default()
	dec, err := NewDecoder(ps, m)
	if err != nil {
		t.Fatalf("NewDecoder returned error: %v", err)
	}
	fs := randomSet(rand.New(rand.NewSource(2)), 700)

	for mode := 0; mode < params.NumModes; mode++ {
		p, _ := ps.Get(mode)
		enc, err := NewEncoder(p, m)
		if err != nil {
			t.Fatal(err)
		}
		data, want, err := enc.Encode(fs)
		if err != nil {
			t.Fatalf("mode %d: Encode returned error: %v", mode, err)
		}
		if fs.Len() != 700 {
			t.Fatalf("mode %d: Encode modified its input", mode)
		}
		if want.NumLocal == 0 {
			t.Errorf("mode %d: no local descriptors fit the budget", mode)
		}
		if len(data) > MaxSize {
			t.Errorf("mode %d: %d bytes", mode, len(data))
		}

		got, n, err := dec.Decode(data)
		if err != nil {
			t.Fatalf("mode %d: Decode returned error: %v", mode, err)
		}
		if n != len(data) {
			t.Errorf("mode %d: consumed %d of %d bytes", mode, n, len(data))
		}
		if got.Mode != mode || got.Flags != want.Flags || got.NumLocal != want.NumLocal {
			t.Fatalf("mode %d: header %+v, want %+v", mode, got, want)
		}
		if got.OriginalWidth != 1600 || got.OriginalHeight != 1200 {
			t.Errorf("mode %d: original size %dx%d", mode, got.OriginalWidth, got.OriginalHeight)
		}
		if got.Groups != p.NumberOfElementGroups {
			t.Errorf("mode %d: %d element groups", mode, got.Groups)
		}
		if !got.Signature.Equal(want.Signature) {
			t.Errorf("mode %d: signature differs", mode)
		}

		bw := float32(p.BlockWidth)
		for i := range got.Features.Features {
			g, w := &got.Features.Features[i], &want.Features.Features[i]
			cx := float32(math.Floor(float64(w.X/bw)))*bw + bw/2
			cy := float32(math.Floor(float64(w.Y/bw)))*bw + bw/2
			if g.X != cx || g.Y != cy {
				t.Fatalf("mode %d: point %d at (%g,%g), want cell centre (%g,%g)", mode, i, g.X, g.Y, cx, cy)
			}
			if !bytes.Equal(g.Code, w.Code) {
				t.Fatalf("mode %d: point %d code differs", mode, i)
			}
			if g.Relevant != (w.Relevant && want.Flags.Relevance) {
				t.Fatalf("mode %d: point %d relevance differs", mode, i)
			}
		}
		if cnt, err := got.Check(); cnt != 0 {
			t.Errorf("mode %d: Check reported %d fields: %v", mode, cnt, err)
		}
	}
}

func TestHeaderOnly(t *testing.T) {
	m := scfv.RandomModel(3)
	p, _ := params.ForMode(2)
	enc, _ := NewEncoder(&p, m)
	data, d, err := enc.Encode(&types.FeatureSet{Width: 320, Height: 240})
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if len(data)*8 != HeaderBits || d.NumLocal != 0 {
		t.Fatalf("empty image gave %d bytes and %d local descriptors", len(data), d.NumLocal)
	}
	dec, _ := NewDecoder(params.Default(), m)
	got, _, err := dec.Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got.OriginalWidth != 320 || got.HasLocal() || got.Signature.NumVisited() != 0 {
		t.Errorf("unexpected descriptor %+v", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	dec, _ := NewDecoder(params.Default(), scfv.RandomModel(4))

	w := bitstream.NewWriter()
	writeHeader(w, &Descriptor{Version: 2, Mode: 1})
	data, _ := w.Bytes()
	var de *bitstream.DecodeError
	if _, _, err := dec.Decode(data); !errors.As(err, &de) || !errors.Is(err, ErrVersion) {
		t.Errorf("expected a version DecodeError, got %v", err)
	}

	w = bitstream.NewWriter()
	writeHeader(w, &Descriptor{Version: Version, Mode: 9})
	data, _ = w.Bytes()
	if _, _, err := dec.Decode(data); !errors.Is(err, ErrMode) {
		t.Errorf("expected ErrMode, got %v", err)
	}

	p, _ := params.ForMode(3)
	enc, _ := NewEncoder(&p, scfv.RandomModel(4))
	data, _, _ = enc.Encode(randomSet(rand.New(rand.NewSource(5)), 200))
	if _, _, err := dec.Decode(data[:len(data)/2]); !errors.As(err, &de) {
		t.Errorf("expected a DecodeError on a truncated stream, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	d := &Descriptor{Version: 3, Mode: 7, OriginalWidth: 70000, NumLocal: 10, Groups: 33}
	cnt, err := d.Check()
	if cnt != 4 {
		t.Errorf("Check counted %d fields: %v", cnt, err)
	}
	if !errors.Is(err, ErrVersion) || !errors.Is(err, ErrMode) {
		t.Errorf("joined error lost a kind: %v", err)
	}
}
