package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"go.uber.org/zap"
)

// ListIndexes returns the indexes recorded for a collection, in creation order.
func (i *SQLiteInteractor) ListIndexes(ctx context.Context, collection string) ([]schema.IndexDefinition, error) {
	return i.listIndexes(ctx, i.db, collection)
}

func (i *SQLiteInteractor) listIndexes(ctx context.Context, r dbRunner, collection string) ([]schema.IndexDefinition, error) {
	rows, err := r.QueryContext(ctx,
		`SELECT "name", "keys", "is_unique", "background" FROM "`+indexesTable+`" WHERE "collection" = ? ORDER BY rowid;`, collection)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list indexes of %s: %w", collection, err))
	}
	defer rows.Close()

	var indexes []schema.IndexDefinition
	for rows.Next() {
		var (
			index schema.IndexDefinition
			keys  string
		)
		if err := rows.Scan(&index.Name, &keys, &index.Unique, &index.Background); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		if err := json.Unmarshal([]byte(keys), &index.Keys); err != nil {
			return nil, fmt.Errorf("failed to decode keys of index %s: %w", index.Name, err)
		}
		indexes = append(indexes, index)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("error after scanning rows: %w", err))
	}
	return indexes, nil
}

// CreateIndex builds an expression index and records it. Background builds are
// accepted and run synchronously.
func (i *SQLiteInteractor) CreateIndex(ctx context.Context, collection string, index schema.IndexDefinition) error {
	if index.Name == "" {
		return fmt.Errorf("%w: index name is empty", persistence.ErrInvalidDefinition)
	}
	ddl, err := i.createIndexSQL(collection, index)
	if err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrInvalidDefinition, err)
	}

	return i.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := i.tableExists(ctx, tx, collection)
		if err != nil {
			return err
		}
		if !exists {
			i.logger.Debug("Creating collection implicitly for index", zap.String("collection", collection), zap.String("index", index.Name))
			if err := i.createCollection(ctx, tx, collection, persistence.CollectionOptions{}); err != nil {
				return err
			}
		}

		existing, err := i.listIndexes(ctx, tx, collection)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Name == index.Name {
				return fmt.Errorf("%w: index %s on %s", persistence.ErrIndexExists, index.Name, collection)
			}
			if other.SameShape(index) {
				return fmt.Errorf("%w: index %s on %s has the same keys as %s", persistence.ErrIndexExists, index.Name, collection, other.Name)
			}
		}

		i.logger.Debug("Executing SQL CREATE INDEX", zap.String("sql", ddl))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return mapError(fmt.Errorf("failed to create index %s on %s: %w", index.Name, collection, err))
		}

		keys, err := json.Marshal(index.Keys)
		if err != nil {
			return fmt.Errorf("failed to encode keys of index %s: %w", index.Name, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO "`+indexesTable+`" ("collection", "name", "physical_name", "keys", "is_unique", "background", "created_at") VALUES (?, ?, ?, ?, ?, ?, ?);`,
			collection, index.Name, i.indexName(collection, index.Name), string(keys), index.Unique, index.Background, i.now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return mapError(fmt.Errorf("failed to record index %s: %w", index.Name, err))
		}
		return nil
	})
}
