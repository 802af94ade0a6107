package scfv

import "github.com/steakknife/hamming"

// Visited is the set of mixture components that carry a word.
type Visited [Components / 64]uint64

// Set marks component k.
func (v *Visited) Set(k int) {
	v[k>>6] |= 1 << uint(k&63)
}

// Unset clears component k.
func (v *Visited) Unset(k int) {
	v[k>>6] &^= 1 << uint(k&63)
}

// Contains reports whether component k is marked.
func (v *Visited) Contains(k int) bool {
	return v[k>>6]&(1<<uint(k&63)) != 0
}

// Count returns the number of marked components.
func (v *Visited) Count() int {
	n := 0
	for _, w := range v {
		n += hamming.CountBitsUint64(w)
	}
	return n
}

// IsEmpty reports whether no component is marked.
func (v *Visited) IsEmpty() bool {
	return *v == Visited{}
}

// ToSlice returns the marked components in increasing order.
func (v *Visited) ToSlice() []int {
	out := make([]int, 0, v.Count())
	for k := 0; k < Components; k++ {
		if v.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Intersect returns the components marked in both sets.
func (v *Visited) Intersect(other *Visited) Visited {
	var out Visited
	for i := range v {
		out[i] = v[i] & other[i]
	}
	return out
}

func onesCount(x uint32) int {
	return hamming.CountBitsUint32(x)
}
