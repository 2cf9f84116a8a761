package engines

import (
	"errors"
	"fmt"
)

// Common engine errors.
var (
	ErrEmptyText    = errors.New("text cannot be empty")
	ErrTextTooLong  = errors.New("text too long")
	ErrNoAudio      = errors.New("engine produced no audio")
	ErrEngineClosed = errors.New("engine closed")
)

// EngineError represents an engine-specific failure.
type EngineError struct {
	Engine  string
	Type    string
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Engine, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Engine, e.Type, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}
