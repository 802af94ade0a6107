package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cdvs/internal/batch"
	"cdvs/internal/coords"
	"cdvs/internal/engine"
	"cdvs/internal/logger"
	"cdvs/internal/storage"
	"cdvs/internal/types"
)

var errArgs = errors.New("wrong number of arguments")

func readFeatures(path string) (*types.FeatureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fs types.FeatureSet
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fs, nil
}

func dbFiles(prefix string, compress, manifest bool) storage.Files {
	return storage.Files{
		Local:       prefix + ".local",
		Global:      prefix + ".global",
		Compression: compress,
		Manifest:    manifest,
	}
}

// newServer builds a server with the shared flags applied.
func newServer(c *common, twoWay bool) (*engine.Server, error) {
	ps, err := c.parameters()
	if err != nil {
		return nil, err
	}
	m, err := c.model()
	if err != nil {
		return nil, err
	}
	s, err := engine.NewServer(ps, m, engine.Options{TwoWay: twoWay, Seed: 1})
	if err != nil {
		return nil, err
	}
	t, ok, err := c.coordinateTables()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := s.WithCoordinateTables(*c.tablesMode, t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func runExtract(args []string) error {
	fset, c := newFlagSet("extract")
	mode := fset.Int("mode", 2, "Operating mode (0..6)")
	outDir := fset.String("o", ".", "Output directory")
	fset.Parse(args)
	closer, err := c.setup()
	if err != nil {
		return err
	}
	defer closer()

	ps, err := c.parameters()
	if err != nil {
		return err
	}
	m, err := c.model()
	if err != nil {
		return err
	}
	client, err := engine.NewClient(ps, *mode, m)
	if err != nil {
		return err
	}
	if t, ok, err := c.coordinateTables(); err != nil {
		return err
	} else if ok {
		client.WithCoordinateTables(t)
	}

	for _, path := range fset.Args() {
		fs, err := readFeatures(path)
		if err != nil {
			return err
		}
		data, d, err := client.Encode(fs)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + client.Parameters().ModeExt
		out := filepath.Join(*outDir, name)
		if err := os.WriteFile(out, data, 0644); err != nil {
			return err
		}
		logger.Info("%s: %d local features, %d bytes", out, d.NumLocal, len(data))
	}
	return nil
}

func runIndex(args []string) error {
	fset, c := newFlagSet("index")
	db := fset.String("db", "cdvs", "Database file prefix")
	fresh := fset.Bool("new", false, "Start a new database instead of appending")
	compress := fset.Bool("compress", false, "Store zstd compressed files")
	manifest := fset.Bool("manifest", false, "Write a manifest with file digests")
	graphK := fset.Int("graph", 0, "Build a recall graph with this many neighbours per image")
	graphMin := fset.Float64("graph-min", 0, "Minimum global score of a recall graph edge")
	fset.Parse(args)
	closer, err := c.setup()
	if err != nil {
		return err
	}
	defer closer()

	s, err := newServer(c, false)
	if err != nil {
		return err
	}
	files := dbFiles(*db, *compress, *manifest)
	if _, err := os.Stat(files.Local); err == nil && !*fresh {
		if err := s.LoadDB(files); err != nil {
			return err
		}
	}

	for i, path := range fset.Args() {
		d, err := s.DecodeFile(path)
		if err != nil {
			return err
		}
		if i == 0 && s.SizeOfDB() == 0 {
			if err := s.CreateDB(d.Mode); err != nil {
				return err
			}
		}
		name := filepath.Base(path)
		if s.IsInDB(name) {
			if _, err := s.ReplaceInDB(d, name, ""); err != nil {
				return err
			}
			logger.Info("Replaced %s", name)
			continue
		}
		if _, err := s.AddToDB(d, name); err != nil {
			return err
		}
	}
	if *graphK > 0 {
		s.BuildRecallGraph(*graphK, *graphMin)
	}
	if r := s.Consistency(); !r.Consistent() {
		logger.Warn("Database inconsistent: %+v", *r)
	}
	return s.StoreDB(files)
}

func runMatch(args []string) error {
	fset, c := newFlagSet("match")
	matchType := fset.String("type", "default", "Match stages: default, local, global or both")
	twoWay := fset.Bool("two-way", false, "Run the ratio test from both sides")
	localize := fset.Bool("localize", false, "Project the reference image into the query")
	fset.Parse(args)
	closer, err := c.setup()
	if err != nil {
		return err
	}
	defer closer()
	if fset.NArg() != 2 {
		return errArgs
	}
	mt, err := types.ParseMatchType(*matchType)
	if err != nil {
		return err
	}

	s, err := newServer(c, *twoWay)
	if err != nil {
		return err
	}
	q, err := s.DecodeFile(fset.Arg(0))
	if err != nil {
		return err
	}
	r, err := s.DecodeFile(fset.Arg(1))
	if err != nil {
		return err
	}
	m, err := s.Match(q, r, engine.MatchOptions{Type: mt, Localize: *localize})
	if err != nil {
		return err
	}
	fmt.Printf("score %.4f local %.4f global %.4f matched %d inliers %d\n",
		m.Score, m.LocalScore, m.GlobalScore, m.Matched(), m.NumInliers())
	if m.Box != nil {
		for _, p := range m.Box {
			fmt.Printf("%.1f %.1f\n", p.X, p.Y)
		}
	}
	return nil
}

func runRetrieve(args []string) error {
	fset, c := newFlagSet("retrieve")
	db := fset.String("db", "cdvs", "Database file prefix")
	limit := fset.Int("limit", 10, "Results per query")
	twoWay := fset.Bool("two-way", false, "Run the ratio test from both sides")
	fset.Parse(args)
	closer, err := c.setup()
	if err != nil {
		return err
	}
	defer closer()

	s, err := newServer(c, *twoWay)
	if err != nil {
		return err
	}
	if err := s.LoadDB(dbFiles(*db, false, false)); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Interrupted, shutting down...")
		os.Exit(130)
	}()

	mgr := batch.NewManager(s)
	mgr.Start()
	defer mgr.Stop()

	queries := fset.Args()
	reqs := make([]interface{}, len(queries))
	for i, path := range queries {
		d, err := s.DecodeFile(path)
		if err != nil {
			return err
		}
		reqs[i] = &batch.RetrieveRequest{Query: d, Limit: *limit}
	}
	logger.Info("Retrieving %d queries from %d images", len(queries), s.SizeOfDB())
	for i, resp := range mgr.Run(types.OpRetrieve, reqs) {
		if !resp.Success {
			logger.Error("%s: %v", queries[i], resp.Error)
			continue
		}
		for rank, res := range resp.Data.([]types.RetrievalResult) {
			fmt.Printf("%s\t%d\t%s\t%.4f\t%.4f\t%d\n", queries[i], rank+1, res.Name, res.Score, res.GlobalScore, res.NumInliers)
		}
	}
	return nil
}

func runInfo(args []string) error {
	fset, c := newFlagSet("info")
	fset.Parse(args)
	closer, err := c.setup()
	if err != nil {
		return err
	}
	defer closer()

	s, err := newServer(c, false)
	if err != nil {
		return err
	}
	for _, path := range fset.Args() {
		d, err := s.DecodeFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: version %d mode %d flags %+v original %dx%d local %d\n",
			path, d.Version, d.Mode, d.Flags, d.OriginalWidth, d.OriginalHeight, d.NumLocal)
		if d.HasLocal() {
			fmt.Printf("  histogram %d cells %dx%d, %d element groups, %d visited components\n",
				d.CountSize, d.MapX, d.MapY, d.Groups, d.Signature.NumVisited())
		}
		if n, err := d.Check(); n > 0 {
			fmt.Printf("  %d header errors: %v\n", n, err)
		}
	}
	return nil
}

func runTrain(args []string) error {
	fset, c := newFlagSet("train")
	mode := fset.Int("mode", 2, "Operating mode whose block width is trained")
	out := fset.String("o", "ctx", "Output prefix of the coding tables")
	fset.Parse(args)
	closer, err := c.setup()
	if err != nil {
		return err
	}
	defer closer()

	ps, err := c.parameters()
	if err != nil {
		return err
	}
	p, err := ps.Get(*mode)
	if err != nil {
		return err
	}
	cc, err := coords.New(p)
	if err != nil {
		return err
	}
	tr := coords.NewTrainer(cc)
	for _, path := range fset.Args() {
		fs, err := readFeatures(path)
		if err != nil {
			return err
		}
		if err := tr.AddSample(fs); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	logger.Info("Trained coordinate tables on %d images, block width %d", tr.Samples(), cc.BlockWidth())
	t := tr.Finish()
	return t.Save(*out)
}
