// Package params holds the per-mode operating parameters of the codec and
// the search engine.
package params

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// NumModes is the number of operating modes (0..6).
const NumModes = 7

// Parameters configures one operating mode. Field names in the mapstructure
// tags are the names accepted by Set and by configuration files.
type Parameters struct {
	ModeID  int    `mapstructure:"-"`
	ModeExt string `mapstructure:"modeExt"`

	// extraction
	ResizeMaxSize         int     `mapstructure:"resizeMaxSize"`
	DescLength            int     `mapstructure:"descLength"` // bytes
	BlockWidth            int     `mapstructure:"blockWidth"`
	CtxTableIdx           int     `mapstructure:"ctxTableIdx"`
	DebugLevel            int     `mapstructure:"debugLevel"`
	SelectMaxPoints       int     `mapstructure:"selectMaxPoints"`
	NumRelevantPoints     int     `mapstructure:"numRelevantPoints"`
	LocationBits          float64 `mapstructure:"locationBits"`
	NumberOfElementGroups int     `mapstructure:"numberOfElementGroups"`
	ScfvThreshold         float64 `mapstructure:"scfvThreshold"`
	HasVar                bool    `mapstructure:"hasVar"`
	HasBitSelection       bool    `mapstructure:"hasBitSelection"`

	// pairwise matching
	RatioThreshold      float64 `mapstructure:"ratioThreshold"`
	MinNumInliers       int     `mapstructure:"minNumInliers"`
	WmThreshold         float64 `mapstructure:"wmThreshold"`
	WmThreshold2Way     float64 `mapstructure:"wmThreshold2Way"`
	WmMixed             float64 `mapstructure:"wmMixed"`
	WmMixed2Way         float64 `mapstructure:"wmMixed2Way"`
	ChiSquarePercentile int     `mapstructure:"chiSquarePercentile"`
	GdThreshold         float64 `mapstructure:"gdThreshold"`
	GdThresholdMixed    float64 `mapstructure:"gdThresholdMixed"`
	RansacNumTests      int     `mapstructure:"ransacNumTests"`
	RansacThreshold     float64 `mapstructure:"ransacThreshold"`

	// retrieval
	RetrievalLoops      int     `mapstructure:"retrievalLoops"`
	RetrievalMaxPoints  int     `mapstructure:"retrievalMaxPoints"`
	WmRetrieval         float64 `mapstructure:"wmRetrieval"`
	WmRetrieval2Way     float64 `mapstructure:"wmRetrieval2Way"`
	QueryExpansionLoops int     `mapstructure:"queryExpansionLoops"`
}

// Base returns the values shared by every mode before mode specific overrides.
func Base() Parameters {
	return Parameters{
		ModeExt:               ".cdvs",
		ResizeMaxSize:         640,
		BlockWidth:            3,
		SelectMaxPoints:       3000,
		RetrievalMaxPoints:    400,
		RatioThreshold:        0.85,
		MinNumInliers:         5,
		WmThreshold:           4.0,
		WmThreshold2Way:       1.7,
		WmMixed:               3.6,
		WmMixed2Way:           1.8,
		RansacNumTests:        10,
		RansacThreshold:       8.0,
		ChiSquarePercentile:   99,
		RetrievalLoops:        2500,
		WmRetrieval:           4,
		WmRetrieval2Way:       2.2,
		LocationBits:          4.5,
		NumberOfElementGroups: 10,
	}
}

// ForMode returns the built-in parameters of mode.
func ForMode(mode int) (Parameters, error) {
	if mode < 0 || mode >= NumModes {
		return Parameters{}, &ConfigError{Field: "mode", Err: ErrModeRange}
	}
	p := Base()
	p.ModeID = mode
	p.RetrievalLoops = 500
	p.RetrievalMaxPoints = 300
	p.RatioThreshold = 0.9
	switch mode {
	case 0: // database profile: like mode 4 but always 300 keypoints
		p.ModeExt = ".DB.cdvs"
		p.DescLength = 16384
		p.ChiSquarePercentile = 80
		p.SelectMaxPoints = 300
		p.ScfvThreshold = 0.003353
		p.GdThreshold = 7.235
		p.WmThreshold = 1.86
		p.WmThreshold2Way = 1.575
		p.WmRetrieval = 2.3
		p.WmRetrieval2Way = 2.0
		p.HasVar = true
		p.LocationBits = 4.5
		p.CtxTableIdx = 3
		p.NumberOfElementGroups = 10
	case 1:
		p.ModeExt = ".512.cdvs"
		p.DescLength = 512
		p.RetrievalMaxPoints = 400
		p.ChiSquarePercentile = 90
		p.ScfvThreshold = 80
		p.GdThreshold = 9.285
		p.WmThreshold = 1.645
		p.WmThreshold2Way = 1.64
		p.WmRetrieval = 3.6
		p.WmRetrieval2Way = 2.7
		p.SelectMaxPoints = 250
		p.LocationBits = 7.5
		p.HasBitSelection = true
		p.CtxTableIdx = 0
		p.NumberOfElementGroups = 5
	case 2:
		p.ModeExt = ".1024.cdvs"
		p.DescLength = 1024
		p.ChiSquarePercentile = 80
		p.ScfvThreshold = 80
		p.GdThreshold = 5.725
		p.GdThresholdMixed = 5.985
		p.WmThreshold = 2.7
		p.WmThreshold2Way = 2.625
		p.WmMixed = 2.785
		p.WmMixed2Way = 2.945
		p.WmRetrieval = 3.6
		p.WmRetrieval2Way = 3.3
		p.SelectMaxPoints = 250
		p.LocationBits = 7.0
		p.CtxTableIdx = 1
		p.NumberOfElementGroups = 5
	case 3:
		p.ModeExt = ".2048.cdvs"
		p.DescLength = 2048
		p.ChiSquarePercentile = 80
		p.ScfvThreshold = 85
		p.GdThreshold = 5.98
		p.GdThresholdMixed = 6.025
		p.WmThreshold = 2.12
		p.WmThreshold2Way = 1.87
		p.WmMixed = 2.19
		p.WmMixed2Way = 1.98
		p.WmRetrieval = 2.3
		p.WmRetrieval2Way = 2.2
		p.SelectMaxPoints = 250
		p.LocationBits = 5.0
		p.CtxTableIdx = 2
		p.NumberOfElementGroups = 10
	case 4:
		p.ModeExt = ".4096.cdvs"
		p.DescLength = 4096
		p.ChiSquarePercentile = 80
		p.ScfvThreshold = 0.009195
		p.HasVar = true
		p.GdThreshold = 7.235
		p.WmThreshold = 1.86
		p.WmThreshold2Way = 1.575
		p.WmRetrieval = 2.3
		p.WmRetrieval2Way = 2.0
		p.SelectMaxPoints = 300
		p.LocationBits = 4.8
		p.CtxTableIdx = 3
		p.NumberOfElementGroups = 16
	case 5:
		p.ModeExt = ".8192.cdvs"
		p.DescLength = 8192
		p.ChiSquarePercentile = 95
		p.NumRelevantPoints = 300
		p.ScfvThreshold = 0.009195
		p.HasVar = true
		p.GdThreshold = 7.215
		p.WmThreshold = 2.165
		p.WmThreshold2Way = 1.725
		p.WmRetrieval = 2.3
		p.WmRetrieval2Way = 2.0
		p.SelectMaxPoints = 500
		p.LocationBits = 4.7
		p.CtxTableIdx = 4
		p.NumberOfElementGroups = 20
	case 6:
		p.ModeExt = ".16384.cdvs"
		p.DescLength = 16384
		p.ChiSquarePercentile = 95
		p.NumRelevantPoints = 300
		p.ScfvThreshold = 0.009195
		p.HasVar = true
		p.GdThreshold = 7.31
		p.WmThreshold = 2.15
		p.WmThreshold2Way = 1.665
		p.WmRetrieval = 2.3
		p.WmRetrieval2Way = 2.0
		p.SelectMaxPoints = 650
		p.LocationBits = 4.6
		p.CtxTableIdx = 5
		p.NumberOfElementGroups = 32
	}
	return p, nil
}

// Set overrides a single parameter by name. Values are given as text and
// converted to the field type; boolean fields accept "1"/"0" and "true"/"false".
func (p *Parameters) Set(name, value string) error {
	if err := p.apply(map[string]interface{}{name: value}); err != nil {
		return err
	}
	return p.Validate()
}

// apply decodes overrides into p, rejecting names that match no field.
func (p *Parameters) apply(values map[string]interface{}) error {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		Metadata:         &md,
		MatchName:        func(key, field string) bool { return key == field },
	})
	if err != nil {
		return &ConfigError{Err: err}
	}
	if err := dec.Decode(values); err != nil {
		return &ConfigError{Err: err}
	}
	if len(md.Unused) > 0 {
		return &ConfigError{Field: strings.Join(md.Unused, ","), Err: ErrUnknownParameter}
	}
	return nil
}

// Validate checks the ranges the codec depends on.
func (p *Parameters) Validate() error {
	switch {
	case p.ResizeMaxSize < 0 || p.ResizeMaxSize > 3000:
		return Errorf("resizeMaxSize", "out of range: %d", p.ResizeMaxSize)
	case p.BlockWidth < 1 || p.BlockWidth > 12:
		return Errorf("blockWidth", "out of range: %d", p.BlockWidth)
	case p.NumberOfElementGroups < 1 || p.NumberOfElementGroups > 32:
		return Errorf("numberOfElementGroups", "out of range: %d", p.NumberOfElementGroups)
	case p.DescLength < 0:
		return Errorf("descLength", "negative: %d", p.DescLength)
	case p.RatioThreshold <= 0 || p.RatioThreshold > 1:
		return Errorf("ratioThreshold", "out of range: %g", p.RatioThreshold)
	}
	return nil
}

// MinPairs is the minimum number of matched pairs geometric verification needs.
func (p *Parameters) MinPairs() int {
	if p.MinNumInliers > 0 {
		return p.MinNumInliers
	}
	return 5
}

func (p Parameters) String() string {
	return fmt.Sprintf("mode %d (%d bytes, %d groups, %s)", p.ModeID, p.DescLength, p.NumberOfElementGroups, p.ModeExt)
}
