package services

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound means the backend is reachable but does not serve the
	// configured model. Loading stops retrying on it.
	ErrModelNotFound = errors.New("model not found")

	ErrEmptyGeneration = errors.New("model returned no text")
)

// GenerationError wraps any failure while producing a reply.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// BusyError is returned when no generation slot frees up in time.
type BusyError struct{ Message string }

func (e *BusyError) Error() string { return e.Message }
