package speech

import (
	"errors"
	"fmt"
)

// Errors returned by the pipeline.
var (
	ErrAlreadyInitialized = errors.New("speech pipeline already initialized")
	ErrShutDown           = errors.New("speech pipeline shut down")
	ErrNoEngine           = errors.New("no synthesis engine configured")
	ErrInvalidSampleRate  = errors.New("engine reported an invalid sample rate")
	ErrEnginePanic        = errors.New("synthesis engine panicked")
)

// Error records the pipeline operation that failed.
type Error struct {
	Op  string // Operation being performed, e.g. "load engine"
	Err error  // The underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return "speech: " + e.Op
	}
	return fmt.Sprintf("speech: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
