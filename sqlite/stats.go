package sqlite

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"go.uber.org/zap"
)

// CollectionStats reports the document count of a collection and, when SQLite was
// built with the dbstat virtual table, the size of its table and indexes.
func (i *SQLiteInteractor) CollectionStats(ctx context.Context, collection string) (*persistence.CollectionStats, error) {
	stats := &persistence.CollectionStats{Name: collection, IndexSizes: map[string]int64{}}

	exists, err := i.tableExists(ctx, i.db, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", persistence.ErrCollectionNotFound, collection)
	}

	err = i.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s;", quoteIdentifier(i.tableName(collection)))).Scan(&stats.Documents)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to count documents of %s: %w", collection, err))
	}

	indexes, err := i.ListIndexes(ctx, collection)
	if err != nil {
		return nil, err
	}

	size, err := i.objectSize(ctx, i.tableName(collection))
	if err != nil {
		i.logger.Debug("dbstat unavailable, reporting zero sizes", zap.String("collection", collection), zap.Error(err))
		for _, index := range indexes {
			stats.IndexSizes[index.Name] = 0
		}
		return stats, nil
	}
	stats.StorageSize = size

	for _, index := range indexes {
		indexSize, err := i.objectSize(ctx, i.indexName(collection, index.Name))
		if err != nil {
			return nil, mapError(fmt.Errorf("failed to size index %s: %w", index.Name, err))
		}
		stats.IndexSizes[index.Name] = indexSize
		stats.TotalIndexSize += indexSize
	}
	return stats, nil
}

func (i *SQLiteInteractor) objectSize(ctx context.Context, name string) (int64, error) {
	var size int64
	err := i.db.QueryRowContext(ctx, `SELECT COALESCE(SUM("pgsize"), 0) FROM "dbstat" WHERE "name" = ?;`, name).Scan(&size)
	return size, err
}
