// Package engine exposes the codec and the search index through a small
// set of capabilities: a Client encodes feature sets into descriptors, a
// Server decodes them, matches pairs and retrieves from its database.
package engine

import (
	"errors"

	"cdvs/internal/descriptor"
	"cdvs/internal/geometry"
	"cdvs/internal/local"
	"cdvs/internal/storage"
	"cdvs/internal/types"
)

var ErrModeMismatch = errors.New("descriptor mode differs from the database mode")

// Encoder turns a feature set into a descriptor bitstream.
type Encoder interface {
	Encode(fs *types.FeatureSet) ([]byte, *descriptor.Descriptor, error)
}

// Decoder reads a descriptor bitstream.
type Decoder interface {
	Decode(data []byte) (*descriptor.Descriptor, error)
}

// Matcher compares a query with a reference descriptor or a database row.
type Matcher interface {
	Match(q, r *descriptor.Descriptor, opts MatchOptions) (*Match, error)
	MatchIndex(q *descriptor.Descriptor, row int, opts MatchOptions) (*Match, error)
}

// Retriever ranks the database images against a query.
type Retriever interface {
	Retrieve(q *descriptor.Descriptor, limit int) ([]types.RetrievalResult, error)
}

// IndexStore is the database side of a Server.
type IndexStore interface {
	CreateDB(mode int) error
	AddToDB(d *descriptor.Descriptor, name string) (int, error)
	ReplaceInDB(d *descriptor.Descriptor, name, oldName string) (bool, error)
	IsInDB(name string) bool
	ImageID(row int) string
	SizeOfDB() int
	ClearDB()
	StoreDB(files storage.Files) error
	LoadDB(files storage.Files) error
}

// MatchOptions selects the stages of a pairwise match.
type MatchOptions struct {
	Type types.MatchType
	// Localize requests the projection of RefBox into the query image.
	Localize bool
	// RefBox defaults to the whole reference image.
	RefBox *geometry.Quad
}

// Match is the outcome of a pairwise comparison.
type Match struct {
	*local.PointPairs
	// Box is the projected reference box, set when localization was asked.
	Box *geometry.Quad
}

func emptyMatch() *Match {
	return &Match{PointPairs: local.NewPointPairs(0)}
}
