package bitstream

import (
	"errors"
	"fmt"
)

var (
	// ErrShortStream is returned when a field extends past the end of the input.
	ErrShortStream = errors.New("unexpected end of bitstream")
	// ErrClosed is returned when writing to a Writer whose bytes were already taken.
	ErrClosed = errors.New("bitstream writer closed")
)

// DecodeError marks malformed or truncated input. Every package that parses
// a bitstream wraps its failures in one so callers can tell bad data apart
// from configuration mistakes with errors.As.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decodef builds a DecodeError with a formatted cause.
func Decodef(op, format string, v ...interface{}) error {
	return &DecodeError{Op: op, Err: fmt.Errorf(format, v...)}
}
