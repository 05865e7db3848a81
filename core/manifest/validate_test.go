package manifest

import (
	"testing"

	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codesOf(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	codes := make([]string, len(verr.Issues))
	for i, issue := range verr.Issues {
		codes[i] = issue.Code
	}
	return codes
}

func index(collection, name string, keys ...schema.IndexKey) Entry {
	return Entry{Kind: KindIndex, Index: &IndexSpec{
		Collection:      collection,
		IndexDefinition: schema.IndexDefinition{Name: name, Keys: keys},
	}}
}

func asc(field string) schema.IndexKey {
	return schema.IndexKey{Field: field, Direction: schema.Ascending}
}

func TestValidate_DuplicateIndexNames(t *testing.T) {
	m := &Manifest{Name: "dup", Entries: []Entry{
		index("user_profiles", "idx_userId", asc("userId")),
		index("user_behaviors", "idx_userId", asc("userId")),
		index("user_profiles", "idx_userId", asc("username")),
	}}

	err := m.Validate()
	assert.Equal(t, []string{"DUPLICATE_INDEX"}, codesOf(t, err))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "entries[2].name", verr.Issues[0].Path)
	assert.Contains(t, verr.Issues[0].Message, "entries[0]")
	assert.Contains(t, err.Error(), "invalid manifest dup")
}

func TestValidate_Entries(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		codes   []string
	}{
		{
			name:    "unknown kind",
			entries: []Entry{{Kind: "view"}},
			codes:   []string{"UNKNOWN_KIND"},
		},
		{
			name:    "missing kind",
			entries: []Entry{{}},
			codes:   []string{"MISSING_KIND"},
		},
		{
			name: "duplicate collection",
			entries: []Entry{
				{Kind: KindCollection, Collection: &CollectionSpec{Name: "a"}},
				{Kind: KindCollection, Collection: &CollectionSpec{Name: "a"}},
			},
			codes: []string{"DUPLICATE_COLLECTION"},
		},
		{
			name:    "unnamed collection",
			entries: []Entry{{Kind: KindCollection, Collection: &CollectionSpec{}}},
			codes:   []string{"MISSING_NAME"},
		},
		{
			name: "bad validation options",
			entries: []Entry{{Kind: KindCollection, Collection: &CollectionSpec{
				Name: "a", ValidationLevel: "off", ValidationAction: "drop",
			}}},
			codes: []string{"INVALID_OPTION", "INVALID_OPTION"},
		},
		{
			name: "malformed validator",
			entries: []Entry{{Kind: KindCollection, Collection: &CollectionSpec{
				Name:      "a",
				Validator: &schema.SchemaDefinition{Fields: map[string]*schema.FieldDefinition{"x": {Type: schema.FieldTypeEnum}}},
			}}},
			codes: []string{"EMPTY_ENUM"},
		},
		{
			name:    "empty key pattern",
			entries: []Entry{index("a", "idx")},
			codes:   []string{"EMPTY_KEY_PATTERN"},
		},
		{
			name:    "index without collection and name",
			entries: []Entry{index("", "", asc("a"))},
			codes:   []string{"MISSING_COLLECTION", "MISSING_NAME"},
		},
		{
			name:    "invalid key field",
			entries: []Entry{index("a", "idx", asc("tags..name"), asc("$where"))},
			codes:   []string{"INVALID_FIELD_PATH", "INVALID_FIELD_PATH"},
		},
		{
			name:    "invalid direction",
			entries: []Entry{index("a", "idx", schema.IndexKey{Field: "a", Direction: 2})},
			codes:   []string{"INVALID_DIRECTION"},
		},
		{
			name:    "repeated key field",
			entries: []Entry{index("a", "idx", asc("a"), asc("a"))},
			codes:   []string{"DUPLICATE_KEY_FIELD"},
		},
		{
			name: "seed without key",
			entries: []Entry{{Kind: KindSeed, Seed: &SeedRecord{
				Collection: "a", Document: map[string]any{"a": 1},
			}}},
			codes: []string{"EMPTY_NATURAL_KEY"},
		},
		{
			name: "seed key absent from document",
			entries: []Entry{{Kind: KindSeed, Seed: &SeedRecord{
				Collection: "a", Key: FieldList{"userId"}, Document: map[string]any{"username": "admin"},
			}}},
			codes: []string{"KEY_NOT_IN_DOCUMENT"},
		},
		{
			name: "nested seed key",
			entries: []Entry{{Kind: KindSeed, Seed: &SeedRecord{
				Collection: "a", Key: FieldList{"basicInfo.id"}, Document: map[string]any{"basicInfo": map[string]any{"id": 1}},
			}}},
		},
		{
			name: "seed without document",
			entries: []Entry{{Kind: KindSeed, Seed: &SeedRecord{
				Collection: "a", Key: FieldList{"id"},
			}}},
			codes: []string{"MISSING_DOCUMENT", "KEY_NOT_IN_DOCUMENT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Name: "test", Entries: tt.entries}
			err := m.Validate()
			if len(tt.codes) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.codes, codesOf(t, err))
		})
	}
}

func TestValidate_TimestampTypes(t *testing.T) {
	collection := Entry{Kind: KindCollection, Collection: &CollectionSpec{
		Name: "users",
		Validator: &schema.SchemaDefinition{Fields: map[string]*schema.FieldDefinition{
			"createTime": {Type: schema.FieldTypeDate},
			"audit": {Type: schema.FieldTypeObject, Fields: map[string]*schema.FieldDefinition{
				"touched": {Type: schema.FieldTypeInteger},
			}},
		}},
	}}
	seed := Entry{Kind: KindSeed, Seed: &SeedRecord{
		Collection: "users",
		Key:        FieldList{"userId"},
		Timestamps: FieldList{"createTime", "audit.touched", "undeclared"},
		Document:   map[string]any{"userId": 1},
	}}

	m := &Manifest{Name: "stamps", Entries: []Entry{seed, collection}}
	err := m.Validate()
	assert.Equal(t, []string{"TIMESTAMP_NOT_DATE"}, codesOf(t, err))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "entries[0].timestamps[1]", verr.Issues[0].Path)
}

func TestValidate_MissingManifestName(t *testing.T) {
	err := (&Manifest{}).Validate()
	assert.Equal(t, []string{"MISSING_NAME"}, codesOf(t, err))
}

func TestValidate_ValidatorIssuePath(t *testing.T) {
	m := &Manifest{Name: "paths", Entries: []Entry{{Kind: KindCollection, Collection: &CollectionSpec{
		Name: "a",
		Validator: &schema.SchemaDefinition{Fields: map[string]*schema.FieldDefinition{
			"score": {Type: schema.FieldTypeString, Minimum: new(float64)},
		}},
	}}}}

	var verr *ValidationError
	require.ErrorAs(t, m.Validate(), &verr)
	assert.Equal(t, "entries[0].validator.fields.score", verr.Issues[0].Path)
}
