package params

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// ParameterSet holds the parameters of every mode.
type ParameterSet [NumModes]Parameters

// Default returns the built-in parameters of all modes.
func Default() *ParameterSet {
	var ps ParameterSet
	for m := 0; m < NumModes; m++ {
		ps[m], _ = ForMode(m)
	}
	return &ps
}

// fileConfig is the on-disk override format:
//
//	{"default": {"ransacNumTests": 20}, "modes": {"2": {"ratioThreshold": 0.85}}}
//
// "default" applies to every mode, then the per-mode sections.
type fileConfig struct {
	Default map[string]interface{}            `json:"default"`
	Modes   map[string]map[string]interface{} `json:"modes"`
}

// Load returns the built-in parameters overridden by the JSON file at path.
func Load(path string) (*ParameterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: path, Err: err}
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, &ConfigError{Field: path, Err: err}
	}

	ps := Default()
	for m := 0; m < NumModes; m++ {
		if err := ps[m].apply(fc.Default); err != nil {
			return nil, err
		}
	}
	for key, values := range fc.Modes {
		m, err := strconv.Atoi(key)
		if err != nil || m < 0 || m >= NumModes {
			return nil, &ConfigError{Field: "modes." + key, Err: ErrModeRange}
		}
		if err := ps[m].apply(values); err != nil {
			return nil, err
		}
	}
	for m := 0; m < NumModes; m++ {
		if err := ps[m].Validate(); err != nil {
			return nil, fmt.Errorf("mode %d: %w", m, err)
		}
	}
	return ps, nil
}

// Get returns the parameters of mode.
func (ps *ParameterSet) Get(mode int) (*Parameters, error) {
	if mode < 0 || mode >= NumModes {
		return nil, &ConfigError{Field: "mode", Err: ErrModeRange}
	}
	return &ps[mode], nil
}

// GetMode maps a descriptor length in bytes to the mode that produces it.
// Every length above 8K is classified as mode 6.
func GetMode(descLength int) (int, error) {
	switch {
	case descLength <= 0:
		return 0, &ConfigError{Field: "descLength", Err: ErrDescLength}
	case descLength <= 512:
		return 1, nil
	case descLength <= 1024:
		return 2, nil
	case descLength <= 2048:
		return 3, nil
	case descLength <= 4096:
		return 4, nil
	case descLength <= 8192:
		return 5, nil
	}
	return 6, nil
}
