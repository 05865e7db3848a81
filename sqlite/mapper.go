package sqlite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/cespare/xxhash/v2"
)

const (
	collectionsTable = "_collections"
	indexesTable     = "_indexes"
	documentColumn   = "document"
)

// metadataDDL creates the tables that record which collections and indexes were
// created through the interactor, with their logical definitions.
var metadataDDL = []string{
	`CREATE TABLE IF NOT EXISTS "` + collectionsTable + `" (
    "name" TEXT PRIMARY KEY,
    "validator" TEXT,
    "validation_level" TEXT NOT NULL DEFAULT '',
    "validation_action" TEXT NOT NULL DEFAULT '',
    "created_at" TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS "` + indexesTable + `" (
    "collection" TEXT NOT NULL,
    "name" TEXT NOT NULL,
    "physical_name" TEXT NOT NULL,
    "keys" TEXT NOT NULL,
    "is_unique" INTEGER NOT NULL DEFAULT 0,
    "background" INTEGER NOT NULL DEFAULT 0,
    "created_at" TEXT NOT NULL,
    PRIMARY KEY ("collection", "name")
);`,
}

// quoteIdentifier safely quotes an identifier, such as a table or index name.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a string literal for statements that cannot take bound
// parameters, such as index expressions.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// tableName returns the unquoted physical table of a collection.
func (s *SQLiteInteractor) tableName(collection string) string {
	return s.options.CollectionPrefix + collection
}

// indexName returns the unquoted physical name of an index. SQLite index names are
// global to the database, so the table is part of the name. Collection and index
// names may both contain "__"; the hash of the pair keeps a__b.c and a.b__c apart.
func (s *SQLiteInteractor) indexName(collection, name string) string {
	table := s.tableName(collection)
	return fmt.Sprintf("%s__%s__%08x", table, name, uint32(xxhash.Sum64String(table+"\x00"+name)))
}

var plainSegment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// jsonPath converts a dotted field path to a SQLite JSON path. Segments that are
// not plain identifiers are double quoted.
func jsonPath(field string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, segment := range strings.Split(field, ".") {
		sb.WriteString(".")
		if plainSegment.MatchString(segment) {
			sb.WriteString(segment)
			continue
		}
		sb.WriteString(`"` + strings.ReplaceAll(segment, `"`, `\"`) + `"`)
	}
	return sb.String()
}

// fieldAccessor is the SQL expression that extracts a field from a document.
func fieldAccessor(field string) string {
	return fmt.Sprintf("json_extract(%s, %s)", documentColumn, quoteLiteral(jsonPath(field)))
}

// fieldType is the SQL expression that yields the JSON type of a field, or NULL
// when the field is absent.
func fieldType(field string) string {
	return fmt.Sprintf("json_type(%s, %s)", documentColumn, quoteLiteral(jsonPath(field)))
}

// createTableSQL generates the DDL of a collection table.
func (s *SQLiteInteractor) createTableSQL(collection string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
    "id" INTEGER PRIMARY KEY AUTOINCREMENT,
    "%s" TEXT NOT NULL CHECK (json_valid("%s"))
);`, quoteIdentifier(s.tableName(collection)), documentColumn, documentColumn)
}

// createIndexSQL generates the DDL of an expression index over document fields.
func (s *SQLiteInteractor) createIndexSQL(collection string, index schema.IndexDefinition) (string, error) {
	if len(index.Keys) == 0 {
		return "", fmt.Errorf("index %s has no keys", index.Name)
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if index.Unique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX ")
	sb.WriteString(quoteIdentifier(s.indexName(collection, index.Name)))
	sb.WriteString(" ON ")
	sb.WriteString(quoteIdentifier(s.tableName(collection)))
	sb.WriteString(" (")

	parts := make([]string, len(index.Keys))
	for i, key := range index.Keys {
		direction := "ASC"
		switch key.Direction {
		case schema.Ascending:
		case schema.Descending:
			direction = "DESC"
		default:
			return "", fmt.Errorf("index %s: invalid direction %d for field '%s'", index.Name, key.Direction, key.Field)
		}
		parts[i] = fieldAccessor(key.Field) + " " + direction
	}
	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteString(");")
	return sb.String(), nil
}
