package coords

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"cdvs/internal/bitstream"
	"cdvs/internal/params"
	"cdvs/internal/types"
)

func newTestCompressor(t *testing.T, mode int) *Compressor {
	t.Helper()
	p, err := params.ForMode(mode)
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(&p)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func randomFeatures(rng *rand.Rand, w, h, n int) *types.FeatureSet {
	fs := &types.FeatureSet{Width: w, Height: h, OriginalWidth: w, OriginalHeight: h}
	for i := 0; i < n; i++ {
		fs.Features = append(fs.Features, types.Keypoint{
			X: rng.Float32() * float32(w-1),
			Y: rng.Float32() * float32(h-1),
		})
	}
	return fs
}

func roundTrip(t *testing.T, c *Compressor, h *Histogram) *Histogram {
	t.Helper()
	w := bitstream.NewWriter()
	if err := c.Encode(w, h); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	w.WriteBits(0x2A, 6)
	data, err := w.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	r := bitstream.NewReader(data)
	got, err := c.Decode(r)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if m := r.ReadBits(6); m != 0x2A {
		t.Errorf("decoder left the reader at the wrong position: marker %x", m)
	}
	return got
}

func sameHistogram(t *testing.T, want, got *Histogram) {
	t.Helper()
	if got.MapX != want.MapX || got.MapY != want.MapY {
		t.Fatalf("map size %dx%d, want %dx%d", got.MapX, got.MapY, want.MapX, want.MapY)
	}
	if len(got.Counts) != len(want.Counts) {
		t.Fatalf("count size %d, want %d", len(got.Counts), len(want.Counts))
	}
	for i := range want.Counts {
		if got.Counts[i] != want.Counts[i] {
			t.Errorf("count %d: got %d, want %d", i, got.Counts[i], want.Counts[i])
		}
	}
	for i := range want.Map {
		if got.Map[i] != want.Map[i] {
			t.Fatalf("map cell %d: got %d, want %d", i, got.Map[i], want.Map[i])
		}
	}
}

func TestThreeCellMap(t *testing.T) {
	c := newTestCompressor(t, 2)
	fs := &types.FeatureSet{Width: 30, Height: 30, Features: []types.Keypoint{
		{X: 15, Y: 16},
		{X: 1, Y: 1},
		{X: 28, Y: 4},
		{X: 2, Y: 2},
	}}
	h, err := c.BuildHistogram(fs, fs.Len())
	if err != nil {
		t.Fatal(err)
	}
	if h.MapX != 10 || h.MapY != 10 || h.CountSize() != 3 {
		t.Fatalf("unexpected histogram %dx%d with %d cells", h.MapX, h.MapY, h.CountSize())
	}

	w := bitstream.NewWriter()
	if err := c.Encode(w, h); err != nil {
		t.Fatal(err)
	}
	data, _ := w.Bytes()
	if cs := bitstream.NewReader(data).ReadBits(16); cs != 3 {
		t.Errorf("count size written as %d", cs)
	}

	got := roundTrip(t, c, h)
	sameHistogram(t, h, got)
	want := map[int]int{0: 2, 5*10 + 5: 1, 9*10 + 1: 1}
	k := 0
	for idx, occupied := range got.Map {
		if occupied == 0 {
			continue
		}
		if want[idx] != got.Counts[k] {
			t.Errorf("cell %d holds %d points, want %d", idx, got.Counts[k], want[idx])
		}
		k++
	}

	pts := c.Points(got)
	if len(pts) != 4 {
		t.Fatalf("expected 4 points, got %d", len(pts))
	}
	if pts[0].X != 1.5 || pts[0].Y != 1.5 || pts[3].X != 28.5 || pts[3].Y != 4.5 {
		t.Errorf("unexpected cell centres %v", pts)
	}
	if w, h := c.ImageSize(got); w != 30 || h != 30 {
		t.Errorf("ImageSize = %dx%d", w, h)
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for mode := 0; mode < params.NumModes; mode++ {
		c := newTestCompressor(t, mode)
		for _, size := range [][2]int{{640, 480}, {200, 640}, {33, 7}, {7, 33}} {
			fs := randomFeatures(rng, size[0], size[1], 300)
			h, err := c.BuildHistogram(fs, fs.Len())
			if err != nil {
				t.Fatal(err)
			}
			sameHistogram(t, h, roundTrip(t, c, h))
		}
	}
}

func TestSpatialIndexOrder(t *testing.T) {
	c := newTestCompressor(t, 3)
	fs := randomFeatures(rand.New(rand.NewSource(3)), 100, 80, 50)
	h, err := c.BuildHistogram(fs, fs.Len())
	if err != nil {
		t.Fatal(err)
	}
	fs.SortBySpatialIndex()
	pts := c.Points(h)
	bw := float64(c.BlockWidth())
	for i, kp := range fs.Features {
		if dx := float64(kp.X) - pts[i].X; dx > bw/2 || dx < -bw/2 {
			t.Fatalf("feature %d at x=%g decoded at %g", i, kp.X, pts[i].X)
		}
		if dy := float64(kp.Y) - pts[i].Y; dy > bw/2 || dy < -bw/2 {
			t.Fatalf("feature %d at y=%g decoded at %g", i, kp.Y, pts[i].Y)
		}
	}
}

func TestEmptyHistogram(t *testing.T) {
	c := newTestCompressor(t, 1)
	fs := &types.FeatureSet{Width: 64, Height: 48}
	h, err := c.BuildHistogram(fs, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, c, h)
	if got.CountSize() != 0 || got.NumPoints() != 0 {
		t.Errorf("expected an empty histogram, got %d cells", got.CountSize())
	}
}

func TestPointOutside(t *testing.T) {
	c := newTestCompressor(t, 1)
	fs := &types.FeatureSet{Width: 10, Height: 10, Features: []types.Keypoint{{X: 12, Y: 3}}}
	if _, err := c.BuildHistogram(fs, 1); !errors.Is(err, ErrPointOutside) {
		t.Errorf("expected ErrPointOutside, got %v", err)
	}
}

func TestDecodeInvalidCountSize(t *testing.T) {
	c := newTestCompressor(t, 1)
	w := bitstream.NewWriter()
	w.WriteBits(200, 16)
	w.WriteBits(10, 16)
	w.WriteBits(10, 16)
	data, _ := w.Bytes()
	_, err := c.Decode(bitstream.NewReader(data))
	var de *bitstream.DecodeError
	if !errors.As(err, &de) {
		t.Errorf("expected a DecodeError, got %v", err)
	}
}

func TestBlockWidthRange(t *testing.T) {
	if _, err := DefaultTables(13, 0); !errors.Is(err, ErrBlockWidth) {
		t.Errorf("expected ErrBlockWidth, got %v", err)
	}
}

func TestTrainSaveLoad(t *testing.T) {
	c := newTestCompressor(t, 4)
	tr := NewTrainer(c)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 5; i++ {
		if err := tr.AddSample(randomFeatures(rng, 320, 240, 200)); err != nil {
			t.Fatalf("AddSample returned error: %v", err)
		}
	}
	if tr.Samples() != 5 {
		t.Errorf("expected 5 samples, got %d", tr.Samples())
	}
	tables := tr.Finish()
	for i := 1; i < SumHistCountSize; i++ {
		if tables.Count[i] < tables.Count[i-1] {
			t.Fatalf("count table decreases at %d", i)
		}
	}

	tmpDir, err := os.MkdirTemp("", "coords_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	prefix := filepath.Join(tmpDir, "trained")
	if err := tables.Save(prefix); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := LoadTables(prefix)
	if err != nil {
		t.Fatalf("LoadTables returned error: %v", err)
	}
	if loaded != tables {
		t.Fatal("loaded tables differ from saved ones")
	}

	c.WithTables(loaded)
	fs := randomFeatures(rng, 320, 240, 150)
	h, err := c.BuildHistogram(fs, fs.Len())
	if err != nil {
		t.Fatal(err)
	}
	sameHistogram(t, h, roundTrip(t, c, h))

	if _, err := LoadTables(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("expected an error for missing table files")
	}
}
