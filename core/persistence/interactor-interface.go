// Package persistence defines the contract a database driver implements so that
// collections, indexes and seed documents can be reconciled against it.
package persistence

import (
	"context"

	"github.com/asaidimu/go-anansi-bootstrap/core/query"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
)

// ValidationLevel controls which writes a collection validator applies to.
type ValidationLevel string

const (
	// ValidationLevelStrict validates every insert and update.
	ValidationLevelStrict ValidationLevel = "strict"
	// ValidationLevelModerate skips updates to documents that were already invalid.
	ValidationLevelModerate ValidationLevel = "moderate"
)

// ValidationAction controls what happens to a write that fails validation.
type ValidationAction string

const (
	ValidationActionError ValidationAction = "error" // reject the write
	ValidationActionWarn  ValidationAction = "warn"  // accept the write and log it
)

// CollectionOptions are the creation options of a collection.
type CollectionOptions struct {
	Validator        *schema.SchemaDefinition
	ValidationLevel  ValidationLevel
	ValidationAction ValidationAction
}

// InsertOptions tune a single insert.
type InsertOptions struct {
	// BypassValidation writes the document without checking the collection validator.
	BypassValidation bool
	// Validator is the validator the collection was declared with. Drivers that
	// did not create the collection themselves use it to encode values with the
	// types the live validator expects.
	Validator *schema.SchemaDefinition
}

// InteractorOptions provides configuration for an interactor.
type InteractorOptions struct {
	// CollectionPrefix is prepended to every physical collection name.
	CollectionPrefix string
}

// CollectionStats reports the size of a collection and its indexes.
type CollectionStats struct {
	Name           string           `json:"name"`
	Documents      int64            `json:"documents"`
	StorageSize    int64            `json:"storageSize"`
	TotalIndexSize int64            `json:"totalIndexSize"`
	IndexSizes     map[string]int64 `json:"indexSizes,omitempty"`
}

// DatabaseInteractor defines the interface for interacting with a document database.
// Implementations translate driver failures into the sentinel errors of this package
// so that callers can branch with errors.Is.
type DatabaseInteractor interface {
	// Ping verifies that the database is reachable. It fails with ErrUnavailable.
	Ping(ctx context.Context) error

	// CollectionExists checks if a collection exists in the database.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CreateCollection creates a collection with an optional validator. It fails with
	// ErrCollectionExists when the collection is already present.
	CreateCollection(ctx context.Context, name string, options CollectionOptions) error

	// ListIndexes returns the user defined indexes of a collection. A missing
	// collection has no indexes.
	ListIndexes(ctx context.Context, collection string) ([]schema.IndexDefinition, error)

	// CreateIndex builds an index. It fails with ErrIndexExists when an index with the
	// same name or keys exists, and with ErrDuplicateKey when a unique index cannot be
	// built over the existing documents. A missing collection is created.
	CreateIndex(ctx context.Context, collection string, index schema.IndexDefinition) error

	// FindDocument returns the first document matching the query, if any.
	FindDocument(ctx context.Context, collection string, dsl *query.QueryDSL) (schema.Document, bool, error)

	// InsertDocument writes a single document. It fails with ErrDuplicateKey on a
	// unique index violation and with ErrValidationFailed when the validator rejects it.
	InsertDocument(ctx context.Context, collection string, doc schema.Document, options *InsertOptions) error

	// CollectionStats reports the document count and storage sizes of a collection.
	CollectionStats(ctx context.Context, collection string) (*CollectionStats, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}
