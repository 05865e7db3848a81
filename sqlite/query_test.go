package sqlite

import (
	"testing"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/query"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInteractor(prefix string) *SQLiteInteractor {
	return &SQLiteInteractor{options: &persistence.InteractorOptions{CollectionPrefix: prefix}}
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, "$.userId", jsonPath("userId"))
	assert.Equal(t, "$.behaviorSummary.lastActiveTime", jsonPath("behaviorSummary.lastActiveTime"))
	assert.Equal(t, `$."user-id".x`, jsonPath("user-id.x"))
	assert.Equal(t, `json_extract(document, '$.userId')`, fieldAccessor("userId"))
	assert.Equal(t, `json_type(document, '$.a.b')`, fieldType("a.b"))
}

func TestCreateIndexSQL(t *testing.T) {
	s := newTestInteractor("")

	ddl, err := s.createIndexSQL("user_profiles", schema.IndexDefinition{
		Name:   "idx_user_time",
		Unique: true,
		Keys: schema.KeyPattern{
			{Field: "userId", Direction: schema.Ascending},
			{Field: "updateTime", Direction: schema.Descending},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`CREATE UNIQUE INDEX "`+s.indexName("user_profiles", "idx_user_time")+`" ON "user_profiles" (json_extract(document, '$.userId') ASC, json_extract(document, '$.updateTime') DESC);`,
		ddl)

	_, err = s.createIndexSQL("user_profiles", schema.IndexDefinition{Name: "empty"})
	assert.Error(t, err)

	_, err = s.createIndexSQL("user_profiles", schema.IndexDefinition{
		Name: "bad",
		Keys: schema.KeyPattern{{Field: "userId", Direction: 2}},
	})
	assert.Error(t, err)
}

func TestPrefixedNames(t *testing.T) {
	s := newTestInteractor("app_")
	assert.Equal(t, "app_users", s.tableName("users"))
	assert.Regexp(t, `^app_users__idx_email__[0-9a-f]{8}$`, s.indexName("users", "idx_email"))
	assert.Contains(t, s.createTableSQL("users"), `CREATE TABLE "app_users"`)
}

func TestIndexNamesDoNotCollide(t *testing.T) {
	s := newTestInteractor("")
	assert.NotEqual(t, s.indexName("a__b", "c"), s.indexName("a", "b__c"))
	assert.Equal(t, s.indexName("a", "b__c"), s.indexName("a", "b__c"))
}

func TestBuildSelectSQL(t *testing.T) {
	t.Run("single key", func(t *testing.T) {
		dsl := query.MatchAll([]string{"userId"}, map[string]any{"userId": 1})
		stmt, params, err := buildSelectSQL("user_profiles", &dsl)
		require.NoError(t, err)
		assert.Equal(t, `SELECT "id", "document" FROM "user_profiles" WHERE json_extract(document, '$.userId') = ? ORDER BY "id" LIMIT 1;`, stmt)
		assert.Equal(t, []any{1}, params)
	})

	t.Run("compound key", func(t *testing.T) {
		dsl := query.MatchAll([]string{"tenant", "active"}, map[string]any{"tenant": "acme", "active": true})
		stmt, params, err := buildSelectSQL("t", &dsl)
		require.NoError(t, err)
		assert.Equal(t, `SELECT "id", "document" FROM "t" WHERE (json_extract(document, '$.tenant') = ? AND json_extract(document, '$.active') = ?) ORDER BY "id" LIMIT 1;`, stmt)
		assert.Equal(t, []any{"acme", 1}, params)
	})

	t.Run("no filter", func(t *testing.T) {
		stmt, params, err := buildSelectSQL("t", nil)
		require.NoError(t, err)
		assert.Equal(t, `SELECT "id", "document" FROM "t" ORDER BY "id";`, stmt)
		assert.Empty(t, params)
	})
}

func TestBuildWhere(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter query.QueryFilter
		want   string
		params []any
	}{
		{
			name:   "eq null",
			filter: query.QueryFilter{Condition: &query.FilterCondition{Field: "a", Operator: query.ComparisonOperatorEq}},
			want:   `json_type(document, '$.a') = 'null'`,
		},
		{
			name:   "neq matches missing",
			filter: query.QueryFilter{Condition: &query.FilterCondition{Field: "a", Operator: query.ComparisonOperatorNeq, Value: "x"}},
			want:   `(json_type(document, '$.a') IS NULL OR json_extract(document, '$.a') != ?)`,
			params: []any{"x"},
		},
		{
			name:   "exists",
			filter: query.QueryFilter{Condition: &query.FilterCondition{Field: "a", Operator: query.ComparisonOperatorExists}},
			want:   `json_type(document, '$.a') IS NOT NULL`,
		},
		{
			name:   "in",
			filter: query.QueryFilter{Condition: &query.FilterCondition{Field: "a", Operator: query.ComparisonOperatorIn, Value: []any{1, 2}}},
			want:   `json_extract(document, '$.a') IN (?, ?)`,
			params: []any{1, 2},
		},
		{
			name:   "empty in",
			filter: query.QueryFilter{Condition: &query.FilterCondition{Field: "a", Operator: query.ComparisonOperatorIn, Value: []any{}}},
			want:   `1=0`,
		},
		{
			name:   "time",
			filter: query.QueryFilter{Condition: &query.FilterCondition{Field: "t", Operator: query.ComparisonOperatorGte, Value: ts}},
			want:   `json_extract(document, '$.t') >= ?`,
			params: []any{"2024-05-01T12:00:00Z"},
		},
		{
			name: "nor",
			filter: query.QueryFilter{Group: &query.FilterGroup{
				Operator: query.LogicalOperatorNor,
				Conditions: []query.QueryFilter{
					{Condition: &query.FilterCondition{Field: "a", Operator: query.ComparisonOperatorEq, Value: 1}},
					{Condition: &query.FilterCondition{Field: "b", Operator: query.ComparisonOperatorEq, Value: 2}},
				},
			}},
			want:   `NOT (json_extract(document, '$.a') = ? OR json_extract(document, '$.b') = ?)`,
			params: []any{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, params, err := buildWhere(&tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, clause)
			if tt.params == nil {
				assert.Empty(t, params)
			} else {
				assert.Equal(t, tt.params, params)
			}
		})
	}
}

func TestPrepareValue(t *testing.T) {
	assert.Equal(t, 1, prepareValue(true))
	assert.Equal(t, 0, prepareValue(false))
	assert.Equal(t, "abc", prepareValue("abc"))
	assert.Equal(t, `{"a":1}`, prepareValue(map[string]any{"a": 1}))
	assert.Nil(t, prepareValue(nil))
}
