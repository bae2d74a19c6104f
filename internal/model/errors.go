package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a stage failure for retry and audit decisions
type ErrorKind string

const (
	ErrNetwork ErrorKind = "network" // Retryable with backoff, bounded attempts
	ErrParse   ErrorKind = "parse"   // Terminal, item-level
	ErrSchema  ErrorKind = "schema"  // One stricter retry, then terminal
	ErrService ErrorKind = "service" // Retryable with backoff, bounded attempts
)

// Retryable reports whether a failure of this kind may be retried.
func (k ErrorKind) Retryable() bool {
	return k == ErrNetwork || k == ErrService
}

// StageError wraps a stage failure with its classification. Errors are
// handled at the item level and never abort a batch.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError builds a classified stage error.
func NewStageError(stage string, kind ErrorKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf extracts the error kind from err, defaulting to ErrService for
// unclassified failures so callers err on the side of retrying.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrService
}
