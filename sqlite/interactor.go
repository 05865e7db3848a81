// Package sqlite provides a concrete implementation of the persistence.DatabaseInteractor
// interface on top of SQLite and its JSON1 functions. Every collection is a table of
// JSON documents and every index is an expression index over document fields.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// dbRunner abstracts the common methods of *sql.DB and *sql.Tx, allowing the same
// helpers to run inside and outside a transaction.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteInteractor implements persistence.DatabaseInteractor for SQLite.
type SQLiteInteractor struct {
	db      *sql.DB
	logger  *zap.Logger
	options *persistence.InteractorOptions
	now     func() time.Time
}

// Ensure SQLiteInteractor implements the persistence.DatabaseInteractor interface.
var _ persistence.DatabaseInteractor = (*SQLiteInteractor)(nil)

// collectionMeta is a row of the collections metadata table.
type collectionMeta struct {
	name             string
	validator        *schema.SchemaDefinition
	validationLevel  persistence.ValidationLevel
	validationAction persistence.ValidationAction
}

// Open opens the SQLite database at dsn and returns an interactor over it. The pool
// is pinned to a single connection, since SQLite serializes writers anyway.
func Open(ctx context.Context, dsn string, logger *zap.Logger, options *persistence.InteractorOptions) (*SQLiteInteractor, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	interactor, err := NewSQLiteInteractor(ctx, db, logger, options)
	if err != nil {
		if cErr := db.Close(); cErr != nil {
			err = errors.Join(err, cErr)
		}
		return nil, err
	}
	return interactor, nil
}

// NewSQLiteInteractor creates an interactor over an open database and creates the
// metadata tables when they are missing.
func NewSQLiteInteractor(ctx context.Context, db *sql.DB, logger *zap.Logger, options *persistence.InteractorOptions) (*SQLiteInteractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = &persistence.InteractorOptions{}
	}

	i := &SQLiteInteractor{
		db:      db,
		logger:  logger,
		options: options,
		now:     time.Now,
	}

	for _, stmt := range metadataDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, mapError(fmt.Errorf("failed to create metadata tables: %w", err))
		}
	}
	return i, nil
}

// Ping verifies the connection to the database.
func (i *SQLiteInteractor) Ping(ctx context.Context) error {
	if err := i.db.PingContext(ctx); err != nil {
		return persistence.WrapDriverError(persistence.ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying database.
func (i *SQLiteInteractor) Close(ctx context.Context) error {
	return i.db.Close()
}

// CollectionExists checks if the table of a collection exists.
func (i *SQLiteInteractor) CollectionExists(ctx context.Context, name string) (bool, error) {
	return i.tableExists(ctx, i.db, name)
}

func (i *SQLiteInteractor) tableExists(ctx context.Context, r dbRunner, collection string) (bool, error) {
	var name string
	err := r.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name = ?;", i.tableName(collection)).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, mapError(err)
	}
	return true, nil
}

// CreateCollection creates the table of a collection and records its validator.
func (i *SQLiteInteractor) CreateCollection(ctx context.Context, name string, options persistence.CollectionOptions) error {
	if name == "" {
		return fmt.Errorf("%w: collection name is empty", persistence.ErrInvalidDefinition)
	}
	if err := options.Validator.CheckError(); err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrInvalidDefinition, err)
	}

	return i.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := i.tableExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", persistence.ErrCollectionExists, name)
		}
		return i.createCollection(ctx, tx, name, options)
	})
}

func (i *SQLiteInteractor) createCollection(ctx context.Context, r dbRunner, name string, options persistence.CollectionOptions) error {
	ddl := i.createTableSQL(name)
	i.logger.Debug("Executing SQL CREATE TABLE", zap.String("sql", ddl))
	if _, err := r.ExecContext(ctx, ddl); err != nil {
		return mapError(fmt.Errorf("failed to create table for collection %s: %w", name, err))
	}

	var validator []byte
	if options.Validator != nil {
		var err error
		validator, err = json.Marshal(options.Validator)
		if err != nil {
			return fmt.Errorf("failed to encode validator of collection %s: %w", name, err)
		}
	}

	_, err := r.ExecContext(ctx,
		`INSERT OR REPLACE INTO "`+collectionsTable+`" ("name", "validator", "validation_level", "validation_action", "created_at") VALUES (?, ?, ?, ?, ?);`,
		name, nullableString(validator), string(options.ValidationLevel), string(options.ValidationAction), i.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to record collection %s: %w", name, err))
	}

	i.logger.Info("Created collection", zap.String("collection", name), zap.Bool("validator", options.Validator != nil))
	return nil
}

// loadCollection reads the metadata of a collection. The second result is false
// when the collection was never recorded.
func (i *SQLiteInteractor) loadCollection(ctx context.Context, r dbRunner, name string) (*collectionMeta, bool, error) {
	var (
		validator sql.NullString
		level     string
		action    string
	)
	err := r.QueryRowContext(ctx,
		`SELECT "validator", "validation_level", "validation_action" FROM "`+collectionsTable+`" WHERE "name" = ?;`, name,
	).Scan(&validator, &level, &action)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapError(fmt.Errorf("failed to read collection %s: %w", name, err))
	}

	meta := &collectionMeta{
		name:             name,
		validationLevel:  persistence.ValidationLevel(level),
		validationAction: persistence.ValidationAction(action),
	}
	if validator.Valid && validator.String != "" {
		var s schema.SchemaDefinition
		if err := json.Unmarshal([]byte(validator.String), &s); err != nil {
			return nil, false, fmt.Errorf("error unmarshaling validator of collection %s: %w", name, err)
		}
		meta.validator = &s
	}
	return meta, true, nil
}

// inTx runs fn in a transaction, committing on success.
func (i *SQLiteInteractor) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			i.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func nullableString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
