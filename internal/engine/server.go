package engine

import (
	"fmt"
	"os"
	"sync"

	"cdvs/internal/bitstream"
	"cdvs/internal/coords"
	"cdvs/internal/descriptor"
	"cdvs/internal/local"
	"cdvs/internal/logger"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
	"cdvs/internal/storage"
)

// Options configure a Server.
type Options struct {
	// TwoWay runs the ratio test from both sides when matching.
	TwoWay bool
	// Seed drives RANSAC sampling during localization.
	Seed int64
}

var (
	_ Decoder    = (*Server)(nil)
	_ Matcher    = (*Server)(nil)
	_ Retriever  = (*Server)(nil)
	_ IndexStore = (*Server)(nil)
	_ Encoder    = (*Client)(nil)
)

// Server decodes, matches and retrieves. Matching and retrieval may run
// concurrently; database mutations take the write lock.
type Server struct {
	ps      *params.ParameterSet
	tables  *scfv.Tables
	decoder *descriptor.Decoder
	opts    Options

	mu    sync.RWMutex
	db    *storage.Database
	index *scfv.Index
}

// NewServer creates a server with an empty mode 0 database.
func NewServer(ps *params.ParameterSet, m *scfv.Model, opts Options) (*Server, error) {
	dec, err := descriptor.NewDecoder(ps, m)
	if err != nil {
		return nil, err
	}
	db, err := storage.NewDatabase(0)
	if err != nil {
		return nil, err
	}
	tables := scfv.NewTables(m)
	return &Server{
		ps:      ps,
		tables:  tables,
		decoder: dec,
		opts:    opts,
		db:      db,
		index:   scfv.NewIndex(tables),
	}, nil
}

// WithCoordinateTables replaces the coordinate coding tables of one mode.
func (s *Server) WithCoordinateTables(mode int, t coords.Tables) error {
	return s.decoder.WithCoordinateTables(mode, t)
}

// Decode reads one descriptor. Bytes after the descriptor are ignored.
func (s *Server) Decode(data []byte) (*descriptor.Descriptor, error) {
	d, _, err := s.decoder.Decode(data)
	return d, err
}

// DecodeFile reads the descriptor stored at path.
func (s *Server) DecodeFile(path string) (*descriptor.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &bitstream.DecodeError{Op: path, Err: err}
	}
	return s.Decode(data)
}

// CreateDB drops the database and starts an empty one for mode.
func (s *Server) CreateDB(mode int) error {
	db, err := storage.NewDatabase(mode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
	s.index.Clear()
	return nil
}

// DBMode returns the mode of the database.
func (s *Server) DBMode() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.ModeID
}

// AddToDB appends d under name and returns its row. The descriptor must
// have the database mode.
func (s *Server) AddToDB(d *descriptor.Descriptor, name string) (int, error) {
	cs, err := local.Compress(d.Features, false)
	if err != nil {
		return storage.NotFound, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Mode != s.db.ModeID {
		return storage.NotFound, &params.ConfigError{Field: name, Err: fmt.Errorf("%w: %d != %d", ErrModeMismatch, d.Mode, s.db.ModeID)}
	}
	row, err := s.db.Add(cs, name)
	if err != nil {
		return storage.NotFound, err
	}
	s.index.Append(d.Signature)
	return row, nil
}

// ReplaceInDB overwrites the row stored under oldName (or name when
// oldName is empty) with d stored under name. It reports whether a row was
// found.
func (s *Server) ReplaceInDB(d *descriptor.Descriptor, name, oldName string) (bool, error) {
	cs, err := local.Compress(d.Features, false)
	if err != nil {
		return false, err
	}
	if oldName == "" {
		oldName = name
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.Find(oldName)
	if row == storage.NotFound {
		return false, nil
	}
	if err := s.db.Replace(row, cs, name); err != nil {
		return false, err
	}
	if err := s.index.Replace(row, d.Signature); err != nil {
		return false, err
	}
	return true, nil
}

// IsInDB reports whether an image is stored under name.
func (s *Server) IsInDB(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Find(name) != storage.NotFound
}

// ImageID returns the name of row, or "" when out of range.
func (s *Server) ImageID(row int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Name(row)
}

// SizeOfDB returns the number of stored images.
func (s *Server) SizeOfDB() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Len()
}

// ClearDB removes every image, keeping the mode.
func (s *Server) ClearDB() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Clear()
	s.index.Clear()
	s.logDB("Database cleared")
}

// StoreDB writes the database and the signature index.
func (s *Server) StoreDB(files storage.Files) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return files.Store(s.db, s.index)
}

// LoadDB appends a stored database. An empty database takes the stored
// mode.
func (s *Server) LoadDB(files storage.Files) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := files.Load(s.db, s.index); err != nil {
		return err
	}
	s.logDB("Database loaded")
	return nil
}

// BuildRecallGraph links every stored image to its k best global matches
// scoring at least minScore.
func (s *Server) BuildRecallGraph(k int, minScore float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.RecallGraph = storage.BuildRecallGraph(s.index, k, minScore)
	s.logDB("Recall graph replaced")
}

// Consistency reports how the stored images and signatures agree.
func (s *Server) Consistency() *storage.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.CheckConsistency(s.db, s.index)
}

// logDB writes a one-line summary of the database at Info level.
func (s *Server) logDB(event string) {
	logger.Info("%s: %d images, mode %d, %d recall graph nodes", event, s.db.Len(), s.db.ModeID, len(s.db.RecallGraph))
}
