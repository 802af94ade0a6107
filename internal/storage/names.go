package storage

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
)

// NameIndex provides name -> row lookup for database images. Names are
// keyed by a BLAKE3 digest prefix; colliding rows are kept in insertion
// order and told apart by the caller.
type NameIndex struct {
	mapping map[uint64][]int
	mu      sync.RWMutex
}

// NewNameIndex creates an empty index.
func NewNameIndex() *NameIndex {
	return &NameIndex{mapping: make(map[uint64][]int)}
}

// nameKey hashes name and keeps the first 8 bytes of the digest.
func nameKey(name string) uint64 {
	sum := blake3.Sum256([]byte(name))
	return binary.BigEndian.Uint64(sum[:8])
}

// Add records that row holds name.
func (ni *NameIndex) Add(name string, row int) {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	k := nameKey(name)
	ni.mapping[k] = append(ni.mapping[k], row)
}

// Delete forgets that row holds name.
func (ni *NameIndex) Delete(name string, row int) {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	k := nameKey(name)
	rows := ni.mapping[k]
	for i, r := range rows {
		if r == row {
			rows = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	if len(rows) == 0 {
		delete(ni.mapping, k)
		return
	}
	ni.mapping[k] = rows
}

// Candidates returns the rows whose name may equal name, lowest first.
func (ni *NameIndex) Candidates(name string) []int {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	rows := append([]int(nil), ni.mapping[nameKey(name)]...)
	sort.Ints(rows)
	return rows
}

// Count returns the number of indexed rows.
func (ni *NameIndex) Count() int {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	n := 0
	for _, rows := range ni.mapping {
		n += len(rows)
	}
	return n
}

// Reset drops every entry.
func (ni *NameIndex) Reset() {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	ni.mapping = make(map[uint64][]int)
}
