// Package storage persists a search index: the local database of
// compressed keypoint sets with its recall graph, and the global signature
// file. Both files may be zstd compressed and may be covered by a manifest
// sidecar holding their BLAKE3 digests.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"cdvs/internal/bitstream"
	"cdvs/internal/logger"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
)

// Files names the two files of an index and how they are written.
type Files struct {
	Local       string
	Global      string
	Compression bool
	Manifest    bool // write <Local>.manifest on Store
}

// ManifestPath returns the sidecar path of the local file.
func (f Files) ManifestPath() string { return f.Local + manifestSuffix }

// Store writes db and idx. It refuses an inconsistent pair.
func (f Files) Store(db *Database, idx *scfv.Index) error {
	if err := VerifyIntegrity(db, idx); err != nil {
		return err
	}
	var localBuf, globalBuf bytes.Buffer
	if err := db.Write(&localBuf); err != nil {
		return fmt.Errorf("failed to encode local database: %w", err)
	}
	if err := WriteSignatures(&globalBuf, idx); err != nil {
		return fmt.Errorf("failed to encode global database: %w", err)
	}

	localRaw, globalRaw := localBuf.Bytes(), globalBuf.Bytes()
	if f.Compression {
		localRaw, globalRaw = CompressBytes(localRaw), CompressBytes(globalRaw)
	}
	if err := os.WriteFile(f.Local, localRaw, 0644); err != nil {
		return err
	}
	if err := os.WriteFile(f.Global, globalRaw, 0644); err != nil {
		return err
	}
	if f.Manifest {
		m := NewManifest(db.ModeID, db.Len(), localRaw, globalRaw)
		if err := os.WriteFile(f.ManifestPath(), m.Marshal(), 0644); err != nil {
			return err
		}
	}
	logger.Info("Stored %d images (mode %d) to %s and %s", db.Len(), db.ModeID, f.Local, f.Global)
	return nil
}

// Load appends the stored images to db and their signatures to idx. When
// a manifest sidecar exists it must match the files. Nothing is appended
// unless both files load and agree.
func (f Files) Load(db *Database, idx *scfv.Index) error {
	localData, localRaw, err := readFile(f.Local)
	if err != nil {
		return &bitstream.DecodeError{Op: "local database " + f.Local, Err: err}
	}
	globalData, globalRaw, err := readFile(f.Global)
	if err != nil {
		return &bitstream.DecodeError{Op: "global database " + f.Global, Err: err}
	}

	loaded := &Database{ModeID: db.ModeID, names: NewNameIndex()}
	if err := loaded.Read(bytes.NewReader(localData)); err != nil {
		return err
	}
	sigs, err := ReadSignatures(bytes.NewReader(globalData))
	if err != nil {
		return err
	}
	if len(sigs) != loaded.Len() {
		return &params.ConfigError{Field: f.Global, Err: fmt.Errorf("%w: %d local, %d global", ErrCountMismatch, loaded.Len(), len(sigs))}
	}
	if err := f.verifyManifest(loaded, localRaw, globalRaw); err != nil {
		return err
	}

	if db.Len() == 0 {
		db.ModeID = loaded.ModeID
	}
	if err := db.Merge(loaded); err != nil {
		return err
	}
	for _, s := range sigs {
		idx.Append(s)
	}
	logger.Info("Loaded %d images (mode %d) from %s", loaded.Len(), loaded.ModeID, f.Local)
	return nil
}

func (f Files) verifyManifest(db *Database, localRaw, globalRaw []byte) error {
	data, err := os.ReadFile(f.ManifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	m, err := UnmarshalManifest(data)
	if err != nil {
		return &params.ConfigError{Field: f.ManifestPath(), Err: err}
	}
	if m.Mode != db.ModeID || m.Images != db.Len() {
		return params.Errorf(f.ManifestPath(), "manifest describes %d images of mode %d, files hold %d of mode %d",
			m.Images, m.Mode, db.Len(), db.ModeID)
	}
	if err := m.Verify(localRaw, globalRaw); err != nil {
		return &params.ConfigError{Field: f.ManifestPath(), Err: err}
	}
	return nil
}
