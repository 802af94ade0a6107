package params

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrModeRange        = errors.New("mode ID out of range, must be in [0..6]")
	ErrDescLength       = errors.New("descriptor length out of range")
)

// ConfigError reports an invalid parameter value, an unknown parameter name
// or an inconsistent persisted state. Callers match it with errors.As.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Errorf builds a ConfigError for field with a formatted cause.
func Errorf(field, format string, v ...interface{}) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, v...)}
}
