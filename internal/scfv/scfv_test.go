package scfv

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"cdvs/internal/bitstream"
	"cdvs/internal/params"
	"cdvs/internal/types"
)

func randomFeatures(rng *rand.Rand, n int) *types.FeatureSet {
	fs := &types.FeatureSet{Width: 640, Height: 480}
	for i := 0; i < n; i++ {
		var kp types.Keypoint
		for j := range kp.Descriptor {
			if rng.Intn(3) > 0 {
				kp.Descriptor[j] = float32(rng.Intn(160))
			}
		}
		fs.Features = append(fs.Features, kp)
	}
	return fs
}

func testSignature(rng *rand.Rand, visited int, hasVar, bitSel bool) *Signature {
	s := NewSignature(hasVar, bitSel)
	for _, k := range rng.Perm(Components)[:visited] {
		word := rng.Uint32()
		if bitSel {
			word &= defaultMask(k)
		}
		var varWord uint32
		if hasVar && !bitSel {
			varWord = rng.Uint32()
		}
		s.Visit(k, word, varWord)
	}
	s.SetNorm()
	return s
}

func TestSerializationIdempotent(t *testing.T) {
	m := RandomModel(1)
	rng := rand.New(rand.NewSource(2))
	for _, layout := range []struct{ hasVar, bitSel bool }{{false, false}, {true, false}, {false, true}} {
		s := testSignature(rng, 90, layout.hasVar, layout.bitSel)
		s.Words[7] = 0 // a visited component may hold an all-zero word
		s.Visit(7, 0, 0)
		s.SetNorm()

		w := bitstream.NewWriter()
		s.Write(w, m)
		if w.Len() != s.CompressedNumBits() {
			t.Errorf("%+v: wrote %d bits, expected %d", layout, w.Len(), s.CompressedNumBits())
		}
		data, err := w.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		got := NewSignature(layout.hasVar, layout.bitSel)
		if err := got.Read(bitstream.NewReader(data), m); err != nil {
			t.Fatalf("Read returned error: %v", err)
		}
		if !got.Equal(s) {
			t.Fatalf("%+v: decoded signature differs", layout)
		}

		w2 := bitstream.NewWriter()
		got.Write(w2, m)
		again, _ := w2.Bytes()
		if string(again) != string(data) {
			t.Errorf("%+v: re-serialization changed the bitstream", layout)
		}
	}
}

func TestCompactExpand(t *testing.T) {
	mask := defaultMask(5)
	if onesCount(mask) != SelectedBits {
		t.Fatalf("default mask selects %d bits", onesCount(mask))
	}
	word := uint32(0xDEADBEEF) & mask
	c := compact(word, mask)
	if c >= 1<<SelectedBits {
		t.Fatalf("compacted word %x wider than %d bits", c, SelectedBits)
	}
	if expand(c, mask) != word {
		t.Errorf("expand(compact(%x)) = %x", word, expand(c, mask))
	}
}

func TestTablesMonotone(t *testing.T) {
	m := RandomModel(3)
	m.CorrelationWeights = make([]float64, WordBits+1)
	for i := range m.CorrelationWeights {
		m.CorrelationWeights[i] = 1 + 0.3*math.Sin(float64(i))
	}
	for _, tables := range []*Tables{NewTables(RandomModel(3)), NewTables(m)} {
		for h := 1; h <= WordBits; h++ {
			if tables.Mean[h] > tables.Mean[h-1] || tables.Var[h] > tables.Var[h-1] {
				t.Fatalf("table increases at distance %d", h)
			}
		}
		for h := 1; h <= SelectedBits; h++ {
			if tables.SelMean[h] > tables.SelMean[h-1] {
				t.Fatalf("selected table increases at distance %d", h)
			}
		}
	}
}

func TestMatch(t *testing.T) {
	tables := NewTables(RandomModel(4))
	rng := rand.New(rand.NewSource(5))
	a := testSignature(rng, 100, true, false)
	b := testSignature(rng, 100, true, false)
	self := tables.Match(a, a)
	if want := 2 * float64(WordBits) * 100 / (2 * a.Norm() * a.Norm()); math.Abs(self-want) > 1e-9 {
		t.Errorf("self score %g, want %g", self, want)
	}
	if other := tables.Match(a, b); other >= self {
		t.Errorf("unrelated score %g not below self score %g", other, self)
	}
	if ab, ba := tables.Match(a, b), tables.Match(b, a); ab != ba {
		t.Errorf("asymmetric scores %g / %g", ab, ba)
	}
	if s := tables.Match(a, NewSignature(true, false)); s != 0 {
		t.Errorf("empty signature scored %g", s)
	}
}

func TestIndexQuery(t *testing.T) {
	tables := NewTables(RandomModel(6))
	rng := rand.New(rand.NewSource(7))
	idx := NewIndex(tables)
	empty := NewSignature(false, false)
	empty.SetNorm()
	idx.Append(empty)
	if got := idx.Query(testSignature(rng, 50, false, false), 5); len(got) != 1 || got[0].Score != 0 {
		t.Fatalf("query against an empty signature: %+v", got)
	}

	q := testSignature(rng, 120, false, false)
	for i := 0; i < 20; i++ {
		idx.Append(testSignature(rng, 120, false, false))
	}
	idx.Append(q)
	idx.Append(testSignature(rng, 5, false, false)) // too few components to score

	got := idx.Query(q, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 results, got %d", len(got))
	}
	if got[0].Index != 21 {
		t.Errorf("best hit %d, want the query itself at 21", got[0].Index)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("results not sorted: %+v", got)
		}
	}
	all := idx.Query(q, 100)
	if len(all) != idx.Len() {
		t.Fatalf("full ranking has %d results", len(all))
	}
	for _, r := range all {
		if (r.Index == 0 || r.Index == 22) && r.Score != 0 {
			t.Errorf("row %d scored %g", r.Index, r.Score)
		}
	}
	if err := idx.Replace(99, q); !errors.Is(err, ErrIndexRange) {
		t.Errorf("expected ErrIndexRange, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	m := RandomModel(8)
	fs := randomFeatures(rand.New(rand.NewSource(9)), 200)
	for mode := 0; mode < params.NumModes; mode++ {
		p, _ := params.ForMode(mode)
		p.ScfvThreshold = 60 // top-60 components
		f := NewFactory(m, &p)
		s := f.Generate(fs, MaxFeatures)
		if s.NumVisited() != 60 {
			t.Errorf("mode %d: %d visited components", mode, s.NumVisited())
		}
		if math.Abs(s.Norm()-math.Pow(60, normExponent)) > 1e-12 {
			t.Errorf("mode %d: norm %g", mode, s.Norm())
		}
		if s.HasBitSelection {
			for k := 0; k < Components; k++ {
				if s.Words[k]&^m.selectionMask(k) != 0 {
					t.Fatalf("mode %d: component %d has unselected bits", mode, k)
				}
			}
		}
		if again := f.Generate(fs, MaxFeatures); !again.Equal(s) {
			t.Errorf("mode %d: generation is not deterministic", mode)
		}
	}

	p, _ := params.ForMode(2)
	empty := NewFactory(m, &p).Generate(&types.FeatureSet{}, MaxFeatures)
	if empty.NumVisited() != 0 || empty.Norm() != 0 {
		t.Errorf("empty feature set gave %d visited", empty.NumVisited())
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := testSignature(rand.New(rand.NewSource(10)), 33, true, false)
	tmpDir, err := os.MkdirTemp("", "scfv_record")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "sig.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteRecord(f); err != nil {
		t.Fatalf("WriteRecord returned error: %v", err)
	}
	f.Close()

	info, _ := os.Stat(path)
	if int(info.Size()) != RecordSize {
		t.Errorf("record of %d bytes, expected %d", info.Size(), RecordSize)
	}
	f, _ = os.Open(path)
	defer f.Close()
	got, err := ReadRecord(f)
	if err != nil {
		t.Fatalf("ReadRecord returned error: %v", err)
	}
	if !got.Equal(s) {
		t.Error("record round trip changed the signature")
	}
}

func TestModelSaveLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "scfv_model")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	m := RandomModel(11)
	path := filepath.Join(tmpDir, "model.gob.zst")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel returned error: %v", err)
	}
	if got.Means != m.Means || got.PCABasis != m.PCABasis || got.FisherPower != m.FisherPower {
		t.Error("loaded model differs")
	}

	var cfgErr *params.ConfigError
	if _, err := LoadModel(filepath.Join(tmpDir, "missing")); !errors.As(err, &cfgErr) {
		t.Errorf("expected a ConfigError, got %v", err)
	}
	m.Variances[3][1] = 0
	if err := m.Validate(); !errors.Is(err, ErrModelVariance) {
		t.Errorf("expected ErrModelVariance, got %v", err)
	}
}
