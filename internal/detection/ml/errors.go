package ml

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Concrete error types below unwrap to one of these so
// callers can classify failures with errors.Is without matching on the
// concrete type.
var (
	ErrValidation       = errors.New("validation error")
	ErrDataQuality      = errors.New("data quality error")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrCompute          = errors.New("compute error")
)

// MissingFeatureError reports every required feature column absent from an
// input table.
type MissingFeatureError struct {
	Columns []string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing required feature columns: %s", strings.Join(e.Columns, ", "))
}

func (e *MissingFeatureError) Unwrap() error { return ErrValidation }

// InsufficientDataError reports an input with too few rows to build a single
// window.
type InsufficientDataError struct {
	Rows      int
	WindowLen int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d rows, need more than %d for window analysis", e.Rows, e.WindowLen)
}

func (e *InsufficientDataError) Unwrap() error { return ErrValidation }

// UnknownLabelError reports a label string outside the benign/malicious set.
type UnknownLabelError struct {
	Label string
	Row   int
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown label %q at row %d", e.Label, e.Row)
}

func (e *UnknownLabelError) Unwrap() error { return ErrDataQuality }

// ModelUnavailableError reports a missing persisted model artifact.
type ModelUnavailableError struct {
	Path string
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("no trained model available at %s", e.Path)
}

func (e *ModelUnavailableError) Unwrap() error { return ErrModelUnavailable }

// ComputeError reports an unexpected failure during reconstruction or
// training, such as non-finite values in the loss or error vector.
type ComputeError struct {
	Op  string
	Msg string
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *ComputeError) Unwrap() error { return ErrCompute }
