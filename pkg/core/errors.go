// Package core provides the Engram engine: the public ingest, retrieve and
// sync surface of the memory system.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnectionFailed indicates that a connection to the storage backend failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrUnknownSource indicates that a sync was requested for a source that
	// was never registered.
	ErrUnknownSource = errors.New("unknown sync source")

	// ErrQueueFull indicates that the background capture queue rejected a
	// task because it is at capacity.
	ErrQueueFull = errors.New("capture queue full")

	// ErrEngineClosed indicates an operation on a closed engine.
	ErrEngineClosed = errors.New("engine closed")
)

// EngineError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &EngineError{
//	    Op:  "Ingest",
//	    Err: ErrEmbeddingFailed,
//	}
//	// Error() returns: "engram: Ingest: embedding generation failed"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "engram: <Op>: <Err>"
func (e *EngineError) Error() string {
	return fmt.Sprintf("engram: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with EngineError.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewEngineError("Ingest", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Ingest", "Retrieve", "Sync")
//   - err: The underlying error to wrap
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}
