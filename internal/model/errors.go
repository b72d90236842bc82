package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBatchNotFound is returned when no batch has the requested id.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrFileNotFound is returned when the batch holds no file with the requested id.
	ErrFileNotFound = errors.New("file not found")
)

// Rejection explains why one file of an ingest call was refused.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ValidationError rejects a request before any state is touched.
type ValidationError struct {
	Message    string
	Rejections []Rejection
}

func (e *ValidationError) Error() string {
	if len(e.Rejections) == 0 {
		return "validation: " + e.Message
	}
	parts := make([]string, 0, len(e.Rejections))
	for _, r := range e.Rejections {
		parts = append(parts, r.Name+": "+r.Reason)
	}
	return fmt.Sprintf("validation: %s (%s)", e.Message, strings.Join(parts, "; "))
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string, rejections ...Rejection) *ValidationError {
	return &ValidationError{Message: message, Rejections: rejections}
}

// InvalidStateError reports an operation attempted against a batch or file
// whose current status does not allow it.
type InvalidStateError struct {
	Op     string
	Entity string
	ID     string
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s %s is %s", e.Op, e.Entity, e.ID, e.Status)
}

// NewBatchStateError reports b as ineligible for op.
func NewBatchStateError(op string, b *Batch) *InvalidStateError {
	return &InvalidStateError{Op: op, Entity: "batch", ID: b.ID, Status: string(b.Status)}
}

// NewFileStateError reports f as ineligible for op.
func NewFileStateError(op string, f *File) *InvalidStateError {
	return &InvalidStateError{Op: op, Entity: "file", ID: f.ID, Status: string(f.Status)}
}

// SplitError is returned for empty, malformed or out-of-bounds page ranges.
type SplitError struct {
	Range  string
	Reason string
}

func (e *SplitError) Error() string {
	if e.Range == "" {
		return "split: " + e.Reason
	}
	return fmt.Sprintf("split: range %q: %s", e.Range, e.Reason)
}

// AdjustmentError means a payment amount is missing or unusable. The file it
// belongs to stays amazon_pending.
type AdjustmentError struct {
	FileID string
	Value  string
	Reason string
}

func (e *AdjustmentError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("payment adjustment for file %s: %s", e.FileID, e.Reason)
	}
	return fmt.Sprintf("payment adjustment for file %s: %s (value: %q)", e.FileID, e.Reason, e.Value)
}

// ParseFailure wraps a parser error for a single file. It is recorded on the
// file and never returned for the batch.
type ParseFailure struct {
	FileID string
	Err    error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse file %s: %v", e.FileID, e.Err)
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

// DuplicateWarning describes a probable duplicate of a committed invoice or
// of a sibling file. It is surfaced as the file's error message.
type DuplicateWarning struct {
	MatchID    string
	Reason     string
	Confidence float64
}

func (e *DuplicateWarning) Error() string {
	return fmt.Sprintf("possible duplicate of %s (%s, confidence %.2f)", e.MatchID, e.Reason, e.Confidence)
}
