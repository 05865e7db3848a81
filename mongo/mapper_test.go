package mongo

import (
	"errors"
	"testing"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/query"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/asaidimu/go-anansi-bootstrap/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

func profileValidator() *schema.SchemaDefinition {
	return &schema.SchemaDefinition{
		Strict: utils.Ptr(true),
		Fields: map[string]*schema.FieldDefinition{
			"userId":       {Type: schema.FieldTypeInteger, Required: utils.Ptr(true)},
			"username":     {Type: schema.FieldTypeString, Required: utils.Ptr(true)},
			"profileScore": {Type: schema.FieldTypeNumber, Nullable: utils.Ptr(true), Minimum: utils.Ptr(0.0), Maximum: utils.Ptr(100.0)},
			"gender":       {Type: schema.FieldTypeEnum, Values: []any{"male", "female"}},
			"tags":         {Type: schema.FieldTypeSet, ItemsType: utils.Ptr(schema.FieldTypeString)},
			"createTime":   {Type: schema.FieldTypeDate},
			"summary": {
				Type: schema.FieldTypeObject,
				Fields: map[string]*schema.FieldDefinition{
					"visits": {Type: schema.FieldTypeInteger, Required: utils.Ptr(true)},
				},
			},
		},
	}
}

func TestJSONSchemaValidator(t *testing.T) {
	v := jsonSchemaValidator(profileValidator())

	root, ok := v["$jsonSchema"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "object", root["bsonType"])
	assert.Equal(t, []string{"userId", "username"}, root["required"])
	assert.Equal(t, false, root["additionalProperties"])

	properties := root["properties"].(bson.M)
	assert.Contains(t, properties, "_id")
	assert.Equal(t, bson.M{"bsonType": "long"}, properties["userId"])
	assert.Equal(t, bson.M{"bsonType": bson.A{"double", "null"}, "minimum": 0.0, "maximum": 100.0}, properties["profileScore"])
	assert.Equal(t, bson.M{"enum": bson.A{"male", "female"}}, properties["gender"])
	assert.Equal(t, bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}, "uniqueItems": true}, properties["tags"])
	assert.Equal(t, bson.M{"bsonType": "date"}, properties["createTime"])

	summary := properties["summary"].(bson.M)
	assert.Equal(t, "object", summary["bsonType"])
	assert.Equal(t, []string{"visits"}, summary["required"])
}

func TestJSONSchemaValidatorLenient(t *testing.T) {
	v := jsonSchemaValidator(&schema.SchemaDefinition{Fields: map[string]*schema.FieldDefinition{
		"name": {Type: schema.FieldTypeString},
	}})
	root := v["$jsonSchema"].(bson.M)
	assert.NotContains(t, root, "additionalProperties")
	assert.NotContains(t, root, "required")
}

func TestIndexKeys(t *testing.T) {
	keys := schema.KeyPattern{
		{Field: "userId", Direction: schema.Ascending},
		{Field: "updateTime", Direction: schema.Descending},
	}
	d := indexKeys(keys)
	assert.Equal(t, bson.D{{Key: "userId", Value: int32(1)}, {Key: "updateTime", Value: int32(-1)}}, d)

	assert.Equal(t, keys, keyPattern(d))
	assert.Equal(t, keys, keyPattern(bson.D{{Key: "userId", Value: 1.0}, {Key: "updateTime", Value: int64(-1)}}))
	assert.Empty(t, keyPattern(bson.D{{Key: "bio", Value: "text"}}))
}

func TestBuildFilter(t *testing.T) {
	t.Run("natural key", func(t *testing.T) {
		dsl := query.MatchAll([]string{"userId", "tenant"}, map[string]any{"userId": 1, "tenant": "acme"})
		f, err := buildFilter(dsl.Filters)
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "userId", Value: bson.D{{Key: "$eq", Value: 1}}}},
			bson.D{{Key: "tenant", Value: bson.D{{Key: "$eq", Value: "acme"}}}},
		}}}, f)
	})

	t.Run("operators", func(t *testing.T) {
		filter := query.QueryFilter{Group: &query.FilterGroup{
			Operator: query.LogicalOperatorNor,
			Conditions: []query.QueryFilter{
				{Condition: &query.FilterCondition{Field: "a", Operator: query.ComparisonOperatorIn, Value: []any{1, 2}}},
				{Condition: &query.FilterCondition{Field: "b", Operator: query.ComparisonOperatorNotExists}},
				{Condition: &query.FilterCondition{Field: "c", Operator: query.ComparisonOperatorNeq, Value: "x"}},
			},
		}}
		f, err := buildFilter(&filter)
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "$nor", Value: bson.A{
			bson.D{{Key: "a", Value: bson.D{{Key: "$in", Value: bson.A{1, 2}}}}},
			bson.D{{Key: "b", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: "c", Value: bson.D{{Key: "$ne", Value: "x"}}}},
		}}}, f)
	})

	t.Run("nil", func(t *testing.T) {
		f, err := buildFilter(nil)
		require.NoError(t, err)
		assert.Empty(t, f)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := buildFilter(&query.QueryFilter{})
		assert.Error(t, err)
	})
}

func TestNormalizeDocument(t *testing.T) {
	doc := schema.Document{
		"userId":       1,
		"profileScore": 42,
		"createTime":   "2024-05-01T12:00:00Z",
		"summary":      map[string]any{"visits": 3.0},
		"username":     "admin",
		"extra":        7,
	}
	out := normalizeDocument(doc, profileValidator())

	assert.Equal(t, int64(1), out["userId"])
	assert.Equal(t, 42.0, out["profileScore"])
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), out["createTime"])
	assert.Equal(t, int64(3), out["summary"].(map[string]any)["visits"])
	assert.Equal(t, "admin", out["username"])
	assert.Equal(t, int64(7), out["extra"])

	assert.Equal(t, 2.5, normalizeValue(2.5, &schema.FieldDefinition{Type: schema.FieldTypeInteger}))
	assert.Equal(t, "not a date", normalizeValue("not a date", &schema.FieldDefinition{Type: schema.FieldTypeDate}))
	assert.Equal(t, 1, doc["userId"], "input left untouched")
}

func TestNormalizeDocumentWithoutValidator(t *testing.T) {
	doc := schema.Document{
		"userId":  1,
		"score":   2.5,
		"summary": map[string]any{"visits": int32(3)},
		"tags":    []any{"a", 4},
	}
	out := normalizeDocument(doc, nil)

	assert.Equal(t, int64(1), out["userId"])
	assert.Equal(t, 2.5, out["score"])
	assert.Equal(t, int64(3), out["summary"].(map[string]any)["visits"])
	assert.Equal(t, []any{"a", int64(4)}, out["tags"])
	assert.Equal(t, 1, doc["userId"])

	raw, err := bson.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, bson.TypeInt64, bson.Raw(raw).Lookup("userId").Type)
}

// A collection created by an earlier run is unknown to a fresh interactor; the
// declared validator passed with the insert shapes the document instead.
func TestInsertValidatorForExistingCollection(t *testing.T) {
	m := &MongoInteractor{validators: map[string]*schema.SchemaDefinition{}}
	declared := profileValidator()

	assert.Nil(t, m.insertValidator("user_profiles", nil))
	assert.Same(t, declared, m.insertValidator("user_profiles", &persistence.InsertOptions{Validator: declared}))

	created := &schema.SchemaDefinition{}
	m.validators["user_profiles"] = created
	assert.Same(t, created, m.insertValidator("user_profiles", &persistence.InsertOptions{}))
	assert.Same(t, declared, m.insertValidator("user_profiles", &persistence.InsertOptions{Validator: declared}))

	doc := schema.Document{"userId": 1, "username": "admin", "createTime": "2024-05-01T12:00:00Z"}
	raw, err := bson.Marshal(normalizeDocument(doc, m.insertValidator("user_profiles", &persistence.InsertOptions{Validator: declared})))
	require.NoError(t, err)
	assert.Equal(t, bson.TypeInt64, bson.Raw(raw).Lookup("userId").Type)
	assert.Equal(t, bson.TypeDateTime, bson.Raw(raw).Lookup("createTime").Type)
}

func TestFromBSON(t *testing.T) {
	out := fromBSON(bson.M{
		"a": bson.D{{Key: "b", Value: int32(1)}},
		"c": bson.A{bson.M{"d": "x"}},
	})
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": int32(1)},
		"c": []any{map[string]any{"d": "x"}},
	}, out)
}

func TestStatsFromCommand(t *testing.T) {
	stats := statsFromCommand("users", bson.M{
		"count":          int32(3),
		"storageSize":    int64(4096),
		"totalIndexSize": 8192.0,
		"indexSizes":     bson.M{"_id_": int32(4096), "idx_email": int64(4096)},
	})
	assert.Equal(t, &persistence.CollectionStats{
		Name:           "users",
		Documents:      3,
		StorageSize:    4096,
		TotalIndexSize: 4096,
		IndexSizes:     map[string]int64{"idx_email": 4096},
	}, stats)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "namespace exists", err: mongodriver.CommandError{Code: 48, Message: "Collection already exists"}, want: persistence.ErrCollectionExists},
		{name: "namespace not found", err: mongodriver.CommandError{Code: 26, Message: "ns not found"}, want: persistence.ErrCollectionNotFound},
		{name: "index conflict", err: mongodriver.CommandError{Code: 86, Message: "IndexKeySpecsConflict"}, want: persistence.ErrIndexExists},
		{name: "duplicate key", err: mongodriver.CommandError{Code: 11000, Message: "E11000 duplicate key error"}, want: persistence.ErrDuplicateKey},
		{name: "validation", err: mongodriver.WriteException{WriteErrors: mongodriver.WriteErrors{{Code: 121, Message: "Document failed validation"}}}, want: persistence.ErrValidationFailed},
		{name: "network", err: mongodriver.CommandError{Code: 6, Labels: []string{"NetworkError"}}, want: persistence.ErrUnavailable},
		{name: "disconnected", err: mongodriver.ErrClientDisconnected, want: persistence.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.err.Error(), err.Error())
		})
	}

	plain := errors.New("plain")
	assert.Equal(t, plain, mapError(plain))
	assert.NoError(t, mapError(nil))
}

func TestConnectOptions(t *testing.T) {
	opts := connectOptions(Config{URI: "mongodb://localhost:27017", Username: "root", Password: "secret"})
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "root", opts.Auth.Username)
	assert.Equal(t, "admin", opts.Auth.AuthSource)

	opts = connectOptions(Config{URI: "mongodb://localhost:27017"})
	assert.Nil(t, opts.Auth)
}
