package batch

import (
	"errors"
	"math/rand"
	"testing"

	"cdvs/internal/descriptor"
	"cdvs/internal/engine"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
	"cdvs/internal/types"
)

func randomSet(rng *rand.Rand, n int) *types.FeatureSet {
	fs := &types.FeatureSet{Width: 640, Height: 480, OriginalWidth: 640, OriginalHeight: 480}
	for i := 0; i < n; i++ {
		kp := types.Keypoint{X: rng.Float32() * 639, Y: rng.Float32() * 479, Pdf: rng.Float32()}
		for j := range kp.Descriptor {
			if rng.Intn(3) > 0 {
				kp.Descriptor[j] = float32(rng.Intn(140))
			}
		}
		fs.Features = append(fs.Features, kp)
	}
	return fs
}

func setup(t *testing.T) (*Manager, *engine.Server, [][]byte) {
	t.Helper()
	ps := params.Default()
	m := scfv.RandomModel(1)
	c, err := engine.NewClient(ps, 3, m)
	if err != nil {
		t.Fatal(err)
	}
	s, err := engine.NewServer(ps, m, engine.Options{TwoWay: true, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateDB(3); err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(11))
	var streams [][]byte
	for i := 0; i < 4; i++ {
		data, _, err := c.Encode(randomSet(rng, 300))
		if err != nil {
			t.Fatal(err)
		}
		d, err := s.Decode(data)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.AddToDB(d, string(rune('a'+i))+".jpg"); err != nil {
			t.Fatal(err)
		}
		streams = append(streams, data)
	}
	mgr := NewManager(s)
	mgr.Start()
	t.Cleanup(mgr.Stop)
	return mgr, s, streams
}

func TestDecodeAndRetrieve(t *testing.T) {
	mgr, _, streams := setup(t)

	reqs := make([]interface{}, len(streams))
	for i, data := range streams {
		reqs[i] = &DecodeRequest{Data: data}
	}
	decoded := mgr.Run(types.OpDecode, reqs)
	for i, resp := range decoded {
		if !resp.Success || resp.ReqID == "" {
			t.Fatalf("decode %d failed: %v", i, resp.Error)
		}
	}

	for i, resp := range decoded {
		reqs[i] = &RetrieveRequest{Query: resp.Data.(*descriptor.Descriptor), Limit: 1}
	}
	for i, resp := range mgr.Run(types.OpRetrieve, reqs) {
		if !resp.Success {
			t.Fatalf("retrieve %d failed: %v", i, resp.Error)
		}
		got := resp.Data.([]types.RetrievalResult)
		if len(got) != 1 || got[0].Index != i {
			t.Errorf("query %d retrieved %+v", i, got)
		}
	}
}

func TestMatchRequests(t *testing.T) {
	mgr, s, streams := setup(t)
	d, err := s.Decode(streams[1])
	if err != nil {
		t.Fatal(err)
	}

	_, reply := mgr.Submit(types.OpMatchIndex, &MatchIndexRequest{Query: d, Row: 1, Options: engine.MatchOptions{Type: types.MatchLocal}})
	resp := <-reply
	if !resp.Success || resp.Data.(*engine.Match).Score <= 0.5 {
		t.Errorf("index match: %+v", resp)
	}

	_, reply = mgr.Submit(types.OpMatchPair, &MatchPairRequest{Query: d, Ref: d, Options: engine.MatchOptions{Type: types.MatchGlobal}})
	resp = <-reply
	if !resp.Success || resp.Data.(*engine.Match).GlobalScore <= 0 {
		t.Errorf("pair match: %+v", resp)
	}
}

func TestInvalidRequests(t *testing.T) {
	mgr, _, _ := setup(t)

	_, reply := mgr.Submit(types.OpRetrieve, &DecodeRequest{})
	if resp := <-reply; resp.Success || !errors.Is(resp.Error, ErrInvalidParams) {
		t.Errorf("mismatched params accepted: %+v", resp)
	}

	_, reply = mgr.Submit(types.Operation(42), nil)
	if resp := <-reply; resp.Success || resp.Error == nil {
		t.Error("unknown operation succeeded")
	}

	_, reply = mgr.Submit(types.OpDecode, &DecodeRequest{Data: []byte{0xff}})
	if resp := <-reply; resp.Success || resp.Data != nil {
		t.Errorf("garbage decoded: %+v", resp)
	}
}

func TestStopDrainsQueued(t *testing.T) {
	_, s, streams := setup(t)
	mgr := NewManager(s)
	mgr.Start()

	_, reply := mgr.Submit(types.OpDecode, &DecodeRequest{Data: streams[0]})
	mgr.Stop()
	if resp := <-reply; !resp.Success {
		t.Errorf("request queued before Stop failed: %v", resp.Error)
	}

	defer func() {
		if recover() == nil {
			t.Error("Submit after Stop did not panic")
		}
	}()
	mgr.Submit(types.OpDecode, &DecodeRequest{Data: streams[0]})
}
