package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/query"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"go.uber.org/zap"
)

// FindDocument returns the first document, in insertion order, that matches the
// query. The row id is exposed as _id.
//
// json_extract erases the difference between true and 1, so SQL only selects
// candidates and each one is confirmed against the filter in Go.
func (i *SQLiteInteractor) FindDocument(ctx context.Context, collection string, dsl *query.QueryDSL) (schema.Document, bool, error) {
	exists, err := i.tableExists(ctx, i.db, collection)
	if err != nil || !exists {
		return nil, false, err
	}

	var candidates query.QueryDSL
	if dsl != nil {
		candidates.Filters = dsl.Filters
	}
	filter, err := storedForm(candidates.Filters)
	if err != nil {
		return nil, false, err
	}

	stmt, params, err := buildSelectSQL(i.tableName(collection), &candidates)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate SQL query: %w", err)
	}
	i.logger.Debug("Executing SQL SELECT", zap.String("sql", stmt), zap.Any("params", params))

	rows, err := i.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, false, mapError(fmt.Errorf("failed to execute SELECT query: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, false, mapError(fmt.Errorf("failed to scan row: %w", err))
		}

		var doc schema.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, false, fmt.Errorf("failed to decode document %d of %s: %w", id, collection, err)
		}
		matched, err := query.Match(filter, doc)
		if err != nil {
			return nil, false, err
		}
		if matched {
			doc["_id"] = id
			return doc, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, mapError(fmt.Errorf("failed to read rows: %w", err))
	}
	return nil, false, nil
}

// storedForm returns the filter with every value in the shape a decoded stored
// document carries: times as RFC 3339 strings and numbers as float64.
func storedForm(filter *query.QueryFilter) (*query.QueryFilter, error) {
	if filter == nil {
		return nil, nil
	}
	data, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}
	var out query.QueryFilter
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode filter: %w", err)
	}
	return &out, nil
}

// InsertDocument validates a document against the collection validator and writes
// it. A missing collection is created without a validator.
func (i *SQLiteInteractor) InsertDocument(ctx context.Context, collection string, doc schema.Document, options *persistence.InsertOptions) error {
	if options == nil {
		options = &persistence.InsertOptions{}
	}

	return i.inTx(ctx, func(tx *sql.Tx) error {
		meta, found, err := i.loadCollection(ctx, tx, collection)
		if err != nil {
			return err
		}
		if !found {
			exists, err := i.tableExists(ctx, tx, collection)
			if err != nil {
				return err
			}
			if !exists {
				if err := i.createCollection(ctx, tx, collection, persistence.CollectionOptions{}); err != nil {
					return err
				}
			}
		}

		if found && meta.validator != nil && !options.BypassValidation {
			if valid, issues := schema.NewValidator(meta.validator).Validate(doc); !valid {
				if meta.validationAction == persistence.ValidationActionWarn {
					i.logger.Warn("Document failed validation, inserting anyway",
						zap.String("collection", collection), zap.Int("issues", len(issues)), zap.String("first", issues[0].String()))
				} else {
					return &persistence.DocumentValidationError{Collection: collection, Issues: issues}
				}
			}
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document for %s: %w", collection, err)
		}

		stmt := fmt.Sprintf(`INSERT INTO %s ("%s") VALUES (?);`, quoteIdentifier(i.tableName(collection)), documentColumn)
		i.logger.Debug("Executing SQL INSERT", zap.String("sql", stmt))
		if _, err := tx.ExecContext(ctx, stmt, string(data)); err != nil {
			return mapError(fmt.Errorf("failed to insert document into %s: %w", collection, err))
		}
		return nil
	})
}
