package local

import (
	"cdvs/internal/bitstream"
	"cdvs/internal/coords"
	"cdvs/internal/params"
	"cdvs/internal/types"
)

// bitsPerElement is the average cost of one prefix-coded ternary value.
const bitsPerElement = 1.66666

// ComputeMaxPoints returns how many of the (ternarized) keypoints of fs fit
// in targetBits. A first estimate from average costs is refined by a trial
// encode of coordinates and codes, rounding down.
func ComputeMaxPoints(fs *types.FeatureSet, p *params.Parameters, cc *coords.Compressor, targetBits int) (int, error) {
	available := float64(targetBits)
	groups := p.NumberOfElementGroups
	estimate := float64(groups*ElementsPerGroup)*bitsPerElement + p.LocationBits
	num1 := min(int(available/estimate+0.5), fs.Len())

	num2 := 0
	if num1 > 0 {
		w := bitstream.NewWriter()
		h, err := cc.BuildHistogram(fs, num1)
		if err != nil {
			return 0, err
		}
		if err := cc.Encode(w, h); err != nil {
			return 0, err
		}
		if err := WriteCodes(w, fs, groups, num1, p.NumRelevantPoints > 0); err != nil {
			return 0, err
		}
		num2 = int(available*float64(num1)/float64(w.Len()) + 0.25)
	}
	num2 = min(num2, fs.Len())
	if p.SelectMaxPoints > 0 && num2 > p.SelectMaxPoints {
		return p.SelectMaxPoints, nil
	}
	return num2, nil
}
