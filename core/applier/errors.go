package applier

import (
	"fmt"
)

// ConnectionError means the database could not be reached. It is the only error
// that stops a run.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CreationError means the database rejected a collection or its validator.
type CreationError struct {
	Collection string
	Err        error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("failed to create collection %s: %v", e.Collection, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// IndexConflictError means a unique index could not be built because existing
// documents share a key.
type IndexConflictError struct {
	Collection string
	Index      string
	Err        error
}

func (e *IndexConflictError) Error() string {
	return fmt.Sprintf("unique index %s on %s conflicts with existing documents: %v", e.Index, e.Collection, e.Err)
}

func (e *IndexConflictError) Unwrap() error { return e.Err }

// Hint tells the operator how to resolve the conflict.
func (e *IndexConflictError) Hint() string {
	return fmt.Sprintf("remove or merge the documents of %s that share a value for the keys of %s, then rerun", e.Collection, e.Index)
}

// IndexCreationError means the database rejected an index for any reason other
// than duplicate data.
type IndexCreationError struct {
	Collection string
	Index      string
	Err        error
}

func (e *IndexCreationError) Error() string {
	return fmt.Sprintf("failed to create index %s on %s: %v", e.Index, e.Collection, e.Err)
}

func (e *IndexCreationError) Unwrap() error { return e.Err }

// SeedConflictError means a seed could not be checked for by its natural key, or
// another writer inserted the same key first.
type SeedConflictError struct {
	Collection string
	Key        string
	Err        error
}

func (e *SeedConflictError) Error() string {
	return fmt.Sprintf("seed %s%s could not be reconciled: %v", e.Collection, e.Key, e.Err)
}

func (e *SeedConflictError) Unwrap() error { return e.Err }

// Hint tells the operator how to resolve the conflict.
func (e *SeedConflictError) Hint() string {
	return fmt.Sprintf("check that no other process seeds %s concurrently, then rerun", e.Collection)
}

// SeedInsertError means the database rejected a seed document, usually because it
// does not satisfy the collection validator.
type SeedInsertError struct {
	Collection string
	Key        string
	Err        error
}

func (e *SeedInsertError) Error() string {
	return fmt.Sprintf("failed to insert seed %s%s: %v", e.Collection, e.Key, e.Err)
}

func (e *SeedInsertError) Unwrap() error { return e.Err }

// Hinter is implemented by errors that carry a remediation hint.
type Hinter interface {
	Hint() string
}
