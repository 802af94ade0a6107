package engine

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"cdvs/internal/descriptor"
	"cdvs/internal/geometry"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
	"cdvs/internal/storage"
	"cdvs/internal/types"
)

func randomSet(rng *rand.Rand, n int) *types.FeatureSet {
	fs := &types.FeatureSet{Width: 640, Height: 480, OriginalWidth: 1280, OriginalHeight: 960}
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

type fixture struct {
	model  *scfv.Model
	client *Client
	server *Server
}

func newFixture(t *testing.T, mode int, twoWay bool) *fixture {
	t.Helper()
	ps := params.Default()
	m := scfv.RandomModel(1)
	c, err := NewClient(ps, mode, m)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	s, err := NewServer(ps, m, Options{TwoWay: twoWay, Seed: 1})
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	return &fixture{model: m, client: c, server: s}
}

func (f *fixture) descriptor(t *testing.T, fs *types.FeatureSet) *descriptor.Descriptor {
	t.Helper()
	data, _, err := f.client.Encode(fs)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	d, err := f.server.Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	return d
}

func TestMatchIdentical(t *testing.T) {
	f := newFixture(t, 3, true)
	d := f.descriptor(t, randomSet(rand.New(rand.NewSource(2)), 400))

	m, err := f.server.Match(d, d, MatchOptions{Type: types.MatchLocal, Localize: true})
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if m.Matched() != d.NumLocal || m.IntersectionCount() != d.NumLocal {
		t.Errorf("%d matched, %d intersection, want %d", m.Matched(), m.IntersectionCount(), d.NumLocal)
	}
	if m.NumInliers() < 5 || m.Score <= 0.5 {
		t.Errorf("%d inliers, score %g", m.NumInliers(), m.Score)
	}
	if m.GlobalScore != 0 {
		t.Error("local-only match computed a global score")
	}
	if m.Box == nil {
		t.Fatal("no box returned")
	}
	want := geometry.ImageQuad(1280, 960)
	for i := range want {
		if want[i].Sub(m.Box[i]).Norm() > 1 {
			t.Errorf("corner %d at %v, want %v", i, m.Box[i], want[i])
		}
	}
}

func TestMatchGlobalOnly(t *testing.T) {
	f := newFixture(t, 3, false)
	d := f.descriptor(t, randomSet(rand.New(rand.NewSource(3)), 300))
	m, err := f.server.Match(d, d, MatchOptions{Type: types.MatchGlobal})
	if err != nil {
		t.Fatal(err)
	}
	if m.Matched() != 0 {
		t.Errorf("global-only match found %d local pairs", m.Matched())
	}
	if m.GlobalScore <= m.GlobalThreshold || m.Score != forcedScore {
		t.Errorf("self global score %g (threshold %g), score %g", m.GlobalScore, m.GlobalThreshold, m.Score)
	}
}

func TestMatchEmpty(t *testing.T) {
	f := newFixture(t, 2, true)
	empty := f.descriptor(t, &types.FeatureSet{Width: 100, Height: 100})
	d := f.descriptor(t, randomSet(rand.New(rand.NewSource(4)), 200))
	m, err := f.server.Match(empty, d, MatchOptions{Localize: true})
	if err != nil {
		t.Fatal(err)
	}
	if m.Matched() != 0 || m.Score != 0 || m.Box != nil {
		t.Errorf("empty descriptor matched: %+v", m)
	}
}

func TestLocalizeWithoutInliers(t *testing.T) {
	f := newFixture(t, 3, false)
	d := f.descriptor(t, randomSet(rand.New(rand.NewSource(5)), 300))
	other := f.descriptor(t, randomSet(rand.New(rand.NewSource(6)), 300))
	other.OriginalWidth, other.Features.OriginalWidth = 2000, 2000
	m, err := f.server.Match(d, other, MatchOptions{Type: types.MatchLocal, Localize: true})
	if err != nil {
		t.Fatal(err)
	}
	if m.HasLocalizationInliers() {
		t.Skip("unrelated images produced inliers")
	}
	if *m.Box != geometry.ImageQuad(1280, 960) {
		t.Errorf("fallback box %v is not the query image", *m.Box)
	}
}

func TestThresholds(t *testing.T) {
	ps := params.Default()
	s := &Server{ps: ps, opts: Options{TwoWay: true}}
	q, _ := ps.Get(2)
	r, _ := ps.Get(3)
	if wm, gd := s.thresholds(q, q); wm != q.WmThreshold2Way || gd != q.GdThreshold {
		t.Errorf("matched thresholds %g/%g", wm, gd)
	}
	if wm, gd := s.thresholds(q, r); wm != q.WmMixed2Way || gd != q.GdThresholdMixed {
		t.Errorf("mixed thresholds %g/%g", wm, gd)
	}
	q4, _ := ps.Get(4)
	if _, gd := s.thresholds(q4, r); gd != q4.GdThreshold {
		t.Errorf("unset mixed global threshold gave %g", gd)
	}
	s.opts.TwoWay = false
	if wm, _ := s.thresholds(q, r); wm != q.WmMixed {
		t.Errorf("one-way mixed threshold %g", wm)
	}
}

func TestDatabaseOperations(t *testing.T) {
	f := newFixture(t, 3, true)
	if err := f.server.CreateDB(3); err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))
	sets := make([]*types.FeatureSet, 4)
	for i := range sets {
		sets[i] = randomSet(rng, 300)
		if _, err := f.server.AddToDB(f.descriptor(t, sets[i]), string(rune('a'+i))+".jpg"); err != nil {
			t.Fatalf("AddToDB returned error: %v", err)
		}
	}
	if f.server.SizeOfDB() != 4 || !f.server.IsInDB("c.jpg") || f.server.ImageID(1) != "b.jpg" {
		t.Fatal("database content not as added")
	}

	other := newFixture(t, 2, true)
	var cfgErr *params.ConfigError
	if _, err := f.server.AddToDB(other.descriptor(t, sets[0]), "x.jpg"); !errors.As(err, &cfgErr) || !errors.Is(err, ErrModeMismatch) {
		t.Errorf("expected a mode mismatch ConfigError, got %v", err)
	}

	ok, err := f.server.ReplaceInDB(f.descriptor(t, sets[3]), "e.jpg", "b.jpg")
	if err != nil || !ok {
		t.Fatalf("ReplaceInDB = %v, %v", ok, err)
	}
	if f.server.IsInDB("b.jpg") || f.server.ImageID(1) != "e.jpg" {
		t.Error("replacement not visible")
	}
	if ok, _ := f.server.ReplaceInDB(f.descriptor(t, sets[3]), "z.jpg", ""); ok {
		t.Error("replaced a missing image")
	}

	q := f.descriptor(t, sets[2])
	m, err := f.server.MatchIndex(q, 2, MatchOptions{Type: types.MatchLocal})
	if err != nil {
		t.Fatal(err)
	}
	if m.Score <= 0.5 {
		t.Errorf("query matched its own row with score %g", m.Score)
	}
	if m, _ := f.server.MatchIndex(q, 9, MatchOptions{}); m.Matched() != 0 || m.Score != 0 {
		t.Error("out of range row matched")
	}

	tmpDir, err := os.MkdirTemp("", "engine_db")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	files := storage.Files{Local: filepath.Join(tmpDir, "db.local"), Global: filepath.Join(tmpDir, "db.global"), Compression: true}
	if err := f.server.StoreDB(files); err != nil {
		t.Fatalf("StoreDB returned error: %v", err)
	}
	loaded := newFixture(t, 3, true)
	if err := loaded.server.LoadDB(files); err != nil {
		t.Fatalf("LoadDB returned error: %v", err)
	}
	if loaded.server.SizeOfDB() != 4 || loaded.server.DBMode() != 3 || !loaded.server.Consistency().Consistent() {
		t.Error("loaded database differs")
	}
	f.server.ClearDB()
	if f.server.SizeOfDB() != 0 || f.server.DBMode() != 3 {
		t.Error("ClearDB left images or changed the mode")
	}
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t, 3, true)
	if err := f.server.CreateDB(3); err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(8))
	var target *types.FeatureSet
	for i := 0; i < 6; i++ {
		fs := randomSet(rng, 300)
		if i == 4 {
			target = fs
		}
		f.server.AddToDB(f.descriptor(t, fs), string(rune('a'+i))+".jpg")
	}

	got, err := f.server.Retrieve(f.descriptor(t, target), 3)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].Index != 4 || got[0].Name != "e.jpg" || got[0].Score <= 0 {
		t.Errorf("best result %+v, want row 4", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("results not sorted: %+v", got)
		}
	}

	none, err := f.server.Retrieve(f.descriptor(t, &types.FeatureSet{Width: 10, Height: 10}), 3)
	if err != nil || len(none) != 0 {
		t.Errorf("empty query gave %v, %v", none, err)
	}
}

func TestExpand(t *testing.T) {
	db, _ := storage.NewDatabase(0)
	db.RecallGraph = [][]uint32{{3}, {2}, nil, {0}}
	shortlist := []scfv.Scored{{Index: 1, Score: 0.9}, {Index: 0, Score: 0.8}, {Index: 3, Score: 0.7}, {Index: 2, Score: 0.6}}
	expand(shortlist, db)
	want := []int{2, 1, 0, 3}
	for i, s := range shortlist {
		if s.Index != want[i] {
			t.Fatalf("order %+v, want indexes %v", shortlist, want)
		}
	}
	if math.Abs(shortlist[0].Score-0.901) > 1e-12 {
		t.Errorf("boosted score %g", shortlist[0].Score)
	}
}
