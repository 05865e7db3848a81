package persistence

import (
	"errors"
	"fmt"

	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
)

var (
	// ErrUnavailable means the database could not be reached.
	ErrUnavailable = errors.New("database unavailable")
	// ErrCollectionExists means a collection with the same name already exists.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrCollectionNotFound means the collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrIndexExists means an index with the same name or key pattern already exists.
	ErrIndexExists = errors.New("index already exists")
	// ErrDuplicateKey means a write or an index build violated a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidDefinition means the driver rejected a collection or index definition.
	ErrInvalidDefinition = errors.New("invalid definition")
	// ErrValidationFailed means a document did not satisfy the collection validator.
	ErrValidationFailed = errors.New("document failed validation")
)

// DocumentValidationError carries the issues that made a document fail validation.
// It matches ErrValidationFailed with errors.Is.
type DocumentValidationError struct {
	Collection string
	Issues     []schema.Issue
}

func (e *DocumentValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("document failed validation for collection '%s'", e.Collection)
	}
	return fmt.Sprintf("document failed validation for collection '%s': %s (%d issues)", e.Collection, e.Issues[0], len(e.Issues))
}

func (e *DocumentValidationError) Unwrap() error {
	return ErrValidationFailed
}

// DriverError wraps a native driver error with the sentinel it maps to, keeping the
// driver message intact for reports.
type DriverError struct {
	Kind error
	Err  error
}

// WrapDriverError pairs a sentinel with a native error. A nil err yields nil.
func WrapDriverError(kind, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Kind: kind, Err: err}
}

func (e *DriverError) Error() string {
	return e.Err.Error()
}

// Is matches the sentinel the error was classified as.
func (e *DriverError) Is(target error) bool {
	return target == e.Kind
}

func (e *DriverError) Unwrap() error {
	return e.Err
}
