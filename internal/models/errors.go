package models

import (
	"errors"
	"fmt"
)

// ErrKind classifies pipeline failures so the coordinator state machine
// is driven by typed outcomes rather than caught panics.
type ErrKind int

const (
	ErrTransientBackend ErrKind = iota
	ErrContentRejected
	ErrBudgetExceeded
	ErrInternal
)

func (k ErrKind) String() string {
	switch k {
	case ErrTransientBackend:
		return "transient-backend"
	case ErrContentRejected:
		return "content-rejected"
	case ErrBudgetExceeded:
		return "budget-exceeded"
	default:
		return "internal"
	}
}

// PipelineError carries the failure class alongside the cause.
type PipelineError struct {
	Kind ErrKind
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err with a failure class.
func NewPipelineError(kind ErrKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

// KindOf extracts the failure class from err, defaulting to ErrInternal.
func KindOf(err error) ErrKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrInternal
}
