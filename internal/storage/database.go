package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"cdvs/internal/bitstream"
	"cdvs/internal/local"
	"cdvs/internal/params"
)

// NotFound is returned by Find for unknown names.
const NotFound = -1

var (
	ErrModeMismatch  = errors.New("databases of different modes")
	ErrCountMismatch = errors.New("local and global databases hold a different number of images")
	ErrRowRange      = errors.New("database row out of range")
	ErrEmptyName     = errors.New("image name must not be empty")
)

// Database is the local part of an index: one compressed keypoint set per
// reference image, in insertion order, plus the optional recall graph.
// It is not safe for concurrent mutation.
type Database struct {
	ModeID int
	// RecallGraph lists, per image, the images it is known to co-occur
	// with. It is empty or at most as long as the image list.
	RecallGraph [][]uint32

	images []*local.CompressedSet
	names  *NameIndex
}

// NewDatabase creates an empty database for mode.
func NewDatabase(mode int) (*Database, error) {
	if mode < 0 || mode >= params.NumModes {
		return nil, &params.ConfigError{Field: "mode", Err: params.ErrModeRange}
	}
	return &Database{ModeID: mode, names: NewNameIndex()}, nil
}

// Len returns the number of images.
func (db *Database) Len() int { return len(db.images) }

// Image returns the keypoint set of row i.
func (db *Database) Image(i int) (*local.CompressedSet, error) {
	if i < 0 || i >= len(db.images) {
		return nil, fmt.Errorf("%w: %d", ErrRowRange, i)
	}
	return db.images[i], nil
}

// Name returns the image name of row i, or "" when out of range.
func (db *Database) Name(i int) string {
	if i < 0 || i >= len(db.images) {
		return ""
	}
	return db.images[i].Name
}

// Neighbours returns the recall graph node of row i.
func (db *Database) Neighbours(i int) []uint32 {
	if i < 0 || i >= len(db.RecallGraph) {
		return nil
	}
	return db.RecallGraph[i]
}

// Add appends cs under name and returns its row.
func (db *Database) Add(cs *local.CompressedSet, name string) (int, error) {
	if name == "" {
		return NotFound, ErrEmptyName
	}
	cs.Name = name
	row := len(db.images)
	db.images = append(db.images, cs)
	db.names.Add(name, row)
	return row, nil
}

// Replace overwrites row i with cs stored under name.
func (db *Database) Replace(i int, cs *local.CompressedSet, name string) error {
	if i < 0 || i >= len(db.images) {
		return fmt.Errorf("%w: %d", ErrRowRange, i)
	}
	if name == "" {
		return ErrEmptyName
	}
	db.names.Delete(db.images[i].Name, i)
	cs.Name = name
	db.images[i] = cs
	db.names.Add(name, i)
	return nil
}

// Find returns the first row stored under name, or NotFound.
func (db *Database) Find(name string) int {
	for _, row := range db.names.Candidates(name) {
		if db.images[row].Name == name {
			return row
		}
	}
	return NotFound
}

// Merge appends the images of other. The recall graph of other follows
// its images, renumbered.
func (db *Database) Merge(other *Database) error {
	if db.ModeID != other.ModeID {
		return &params.ConfigError{Field: "modeId", Err: fmt.Errorf("%w: %d != %d", ErrModeMismatch, db.ModeID, other.ModeID)}
	}
	offset := len(db.images)
	for _, cs := range other.images {
		db.names.Add(cs.Name, len(db.images))
		db.images = append(db.images, cs)
	}
	db.appendGraph(other.RecallGraph, offset)
	return nil
}

// appendGraph adds nodes for the rows starting at offset, padding the
// graph of the earlier rows with empty nodes.
func (db *Database) appendGraph(nodes [][]uint32, offset int) {
	if len(nodes) == 0 {
		return
	}
	for len(db.RecallGraph) < offset {
		db.RecallGraph = append(db.RecallGraph, nil)
	}
	for _, node := range nodes {
		moved := make([]uint32, len(node))
		for i, id := range node {
			moved[i] = id + uint32(offset)
		}
		db.RecallGraph = append(db.RecallGraph, moved)
	}
}

// Clear removes every image and the recall graph.
func (db *Database) Clear() {
	db.images = nil
	db.RecallGraph = nil
	db.names.Reset()
}

// Write stores the database: mode id (u32), image count (i32), the images,
// then the recall graph as a node count (u64) and per node its size (u64)
// and ids (u32). Everything is little-endian.
func (db *Database) Write(w io.Writer) error {
	le := binary.LittleEndian
	if err := binary.Write(w, le, uint32(db.ModeID)); err != nil {
		return err
	}
	if err := binary.Write(w, le, int32(len(db.images))); err != nil {
		return err
	}
	for i, cs := range db.images {
		if err := cs.Write(w); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}
	if err := binary.Write(w, le, uint64(len(db.RecallGraph))); err != nil {
		return err
	}
	for _, node := range db.RecallGraph {
		if err := binary.Write(w, le, uint64(len(node))); err != nil {
			return err
		}
		if err := binary.Write(w, le, node); err != nil {
			return err
		}
	}
	return nil
}

// Read appends the images stored by Write. A non-empty database only
// accepts images of its own mode. A stream that ends before the recall
// graph is accepted; any other truncation or malformed field gives a
// bitstream.DecodeError.
func (db *Database) Read(r io.Reader) error {
	le := binary.LittleEndian
	var hdr struct {
		Mode   uint32
		Images int32
	}
	if err := binary.Read(r, le, &hdr); err != nil {
		return &bitstream.DecodeError{Op: "database header", Err: err}
	}
	if int(hdr.Mode) >= params.NumModes || hdr.Images < 0 {
		return bitstream.Decodef("database header", "mode %d, %d images", hdr.Mode, hdr.Images)
	}
	if len(db.images) > 0 && int(hdr.Mode) != db.ModeID {
		return &params.ConfigError{Field: "modeId", Err: fmt.Errorf("%w: %d != %d", ErrModeMismatch, db.ModeID, hdr.Mode)}
	}

	// The header count is untrusted: the slice grows as records arrive.
	images := make([]*local.CompressedSet, 0, min(int(hdr.Images), 1<<16))
	for i := 0; i < int(hdr.Images); i++ {
		cs, err := local.ReadCompressedSet(r)
		if err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
		images = append(images, cs)
	}

	var nodes uint64
	if err := binary.Read(r, le, &nodes); err != nil && !errors.Is(err, io.EOF) {
		return &bitstream.DecodeError{Op: "recall graph", Err: err}
	}
	if nodes > uint64(hdr.Images) {
		return bitstream.Decodef("recall graph", "%d nodes for %d images", nodes, hdr.Images)
	}
	graph := make([][]uint32, nodes)
	for i := range graph {
		var size uint64
		if err := binary.Read(r, le, &size); err != nil {
			return &bitstream.DecodeError{Op: fmt.Sprintf("recall graph node %d", i), Err: err}
		}
		if size > uint64(hdr.Images) {
			return bitstream.Decodef(fmt.Sprintf("recall graph node %d", i), "%d edges", size)
		}
		graph[i] = make([]uint32, size)
		if err := binary.Read(r, le, graph[i]); err != nil {
			return &bitstream.DecodeError{Op: fmt.Sprintf("recall graph node %d", i), Err: err}
		}
	}

	db.ModeID = int(hdr.Mode)
	offset := len(db.images)
	for _, cs := range images {
		db.names.Add(cs.Name, len(db.images))
		db.images = append(db.images, cs)
	}
	db.appendGraph(graph, offset)
	return nil
}
