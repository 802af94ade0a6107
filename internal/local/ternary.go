// Package local quantizes keypoint descriptors to ternary codes, serializes
// them, packs them into compact records and matches records against each
// other.
package local

import (
	"errors"
	"fmt"

	"cdvs/internal/bitstream"
	"cdvs/internal/types"
)

const (
	// MaxGroups is the largest number of element groups; one group yields
	// four ternary values (one packed byte).
	MaxGroups = 32
	// ElementsPerGroup is the number of ternary values per group.
	ElementsPerGroup = 4
)

var (
	ErrInvalidDescriptor = errors.New("descriptor data not valid")
	ErrGroups            = errors.New("number of element groups out of range")
)

// Ternarize fills the Code of every keypoint of fs with 4*groups values in
// {0,1,2}, in priority order.
func Ternarize(fs *types.FeatureSet, groups int) error {
	if groups < 1 || groups > MaxGroups {
		return fmt.Errorf("%w: %d", ErrGroups, groups)
	}
	for k := range fs.Features {
		kp := &fs.Features[k]
		if kp.Descriptor[0] == -1 {
			return fmt.Errorf("keypoint %d: %w", k, ErrInvalidDescriptor)
		}
		code := make([]uint8, 0, groups*ElementsPerGroup)
		for i := 0; i < groups; i++ {
			group, elem := priorityList[i][0], priorityList[i][1]
			for j, hist := range histogramGroups[group] {
				pos := hist << 3
				d := kp.Descriptor[pos : pos+8]
				var v int
				if j < 2 {
					v = transformA(d, elem)
				} else {
					v = transformB(d, elem)
				}
				code = append(code, ternary(v, thresholds[pos+elem]))
			}
		}
		kp.Code = code
	}
	return nil
}

func ternary(v int, th [2]int) uint8 {
	switch {
	case v > th[1]:
		return 2
	case v > th[0]:
		return 1
	}
	return 0
}

// WriteCodes writes the byte count of a code (6 bits), then the codes of
// the first n keypoints with the prefix code 1->0, 0->10, 2->11, then one
// relevance bit per keypoint when relevance is set.
func WriteCodes(w *bitstream.Writer, fs *types.FeatureSet, groups, n int, relevance bool) error {
	if groups < 1 || groups > MaxGroups {
		return fmt.Errorf("%w: %d", ErrGroups, groups)
	}
	if n > fs.Len() || n < 0 {
		n = fs.Len()
	}
	w.WriteBits(uint64(groups), 6)
	size := groups * ElementsPerGroup
	for k := 0; k < n; k++ {
		code := fs.Features[k].Code
		if len(code) < size {
			return fmt.Errorf("keypoint %d has %d ternary values, need %d", k, len(code), size)
		}
		for _, v := range code[:size] {
			switch v {
			case 1:
				w.WriteBit(0)
			case 0:
				w.WriteBits(0b10, 2)
			default:
				w.WriteBits(0b11, 2)
			}
		}
	}
	if relevance {
		for k := 0; k < n; k++ {
			if fs.Features[k].Relevant {
				w.WriteBit(1)
			} else {
				w.WriteBit(0)
			}
		}
	}
	return w.Err()
}

// ReadCodes reads codes written by WriteCodes into the existing keypoints of
// fs and returns the number of element groups.
func ReadCodes(r *bitstream.Reader, fs *types.FeatureSet, relevance bool) (int, error) {
	groups := int(r.ReadBits(6))
	if groups < 1 || groups > MaxGroups {
		return 0, bitstream.Decodef("local descriptors", "%d element groups", groups)
	}
	size := groups * ElementsPerGroup
	for k := range fs.Features {
		code := make([]uint8, size)
		for i := range code {
			switch {
			case r.ReadBit() == 0:
				code[i] = 1
			case r.ReadBit() == 0:
				code[i] = 0
			default:
				code[i] = 2
			}
		}
		fs.Features[k].Code = code
	}
	if relevance {
		for k := range fs.Features {
			fs.Features[k].Relevant = r.ReadBit() == 1
		}
	}
	return groups, r.Err()
}
