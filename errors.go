package procsched

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrInvalidSegment indicates a Segment value outside the defined
	// constants.
	ErrInvalidSegment = errors.New("procsched: invalid segment")

	// ErrInvalidChunkSize is returned by New if a segment's arena chunk size
	// is not positive.
	ErrInvalidChunkSize = errors.New("procsched: chunk size must be positive")

	// ErrReplacementUnavailable is logged (not reported) when a process
	// signals Replace, without a registered replacement function.
	ErrReplacementUnavailable = errors.New("procsched: no replacement function registered")

	// ErrNilReplacement is reported if a replacement function returns nil.
	// The process is killed.
	ErrNilReplacement = errors.New("procsched: replacement function returned nil")
)

// PanicError wraps a value recovered from a panicking Process.Poll, or
// ReplacementFunc.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("procsched: process panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ProcessError is provided to the error handler, when a process is aborted
// due to a fault.
type ProcessError struct {
	Err    error
	Handle Handle
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("procsched: %s aborted: %v", e.Handle, e.Err)
}

// Unwrap returns the underlying cause, for use with [errors.Is] and
// [errors.As].
func (e *ProcessError) Unwrap() error { return e.Err }
