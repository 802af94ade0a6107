package storage

import (
	"fmt"

	"cdvs/internal/params"
	"cdvs/internal/scfv"
)

// Report contains the results of a consistency check between the local
// database and the signature index.
type Report struct {
	Images         int
	Signatures     int
	GraphNodes     int
	DanglingEdges  int // recall graph edges to rows that do not exist
	DuplicateNames []string
}

// Consistent reports whether the index pair can be stored or queried.
func (r *Report) Consistent() bool {
	return r.Images == r.Signatures && r.GraphNodes <= r.Images && r.DanglingEdges == 0
}

// CheckConsistency verifies that db and idx describe the same images and
// that the recall graph only points at existing rows.
func CheckConsistency(db *Database, idx *scfv.Index) *Report {
	report := &Report{
		Images:     db.Len(),
		Signatures: idx.Len(),
		GraphNodes: len(db.RecallGraph),
	}
	for _, node := range db.RecallGraph {
		for _, id := range node {
			if int(id) >= db.Len() {
				report.DanglingEdges++
			}
		}
	}
	seen := make(map[string]bool, db.Len())
	for _, cs := range db.images {
		if seen[cs.Name] {
			report.DuplicateNames = append(report.DuplicateNames, cs.Name)
		}
		seen[cs.Name] = true
	}
	return report
}

// VerifyIntegrity returns a ConfigError when CheckConsistency fails.
// Duplicate names are tolerated; Find returns the first row.
func VerifyIntegrity(db *Database, idx *scfv.Index) error {
	report := CheckConsistency(db, idx)
	if report.Images != report.Signatures {
		return &params.ConfigError{Field: "database", Err: fmt.Errorf("%w: %d local, %d global", ErrCountMismatch, report.Images, report.Signatures)}
	}
	if !report.Consistent() {
		return params.Errorf("recallGraph", "%d nodes for %d images, %d dangling edges", report.GraphNodes, report.Images, report.DanglingEdges)
	}
	return nil
}
