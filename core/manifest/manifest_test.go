package manifest

import (
	"encoding/json"
	"testing"

	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleYAML = `
name: sample
database: app
entries:
  - kind: collection
    name: user_profiles
    validationAction: error
    validator:
      fields:
        userId: {type: integer, required: true}
  - kind: index
    collection: user_profiles
    name: idx_userId_updateTime
    keys: {userId: 1, updateTime: -1}
    unique: true
    background: true
  - kind: seed
    collection: user_profiles
    key: userId
    timestamps: [createTime]
    document: {userId: 1, username: admin, basicInfo: {gender: UNKNOWN}}
`

func TestEntry_YAML(t *testing.T) {
	var m Manifest
	require.NoError(t, yaml.Unmarshal([]byte(sampleYAML), &m))
	require.Len(t, m.Entries, 3)

	col := m.Entries[0]
	assert.Equal(t, KindCollection, col.Kind)
	require.NotNil(t, col.Collection)
	assert.Equal(t, "user_profiles", col.Collection.Name)
	assert.True(t, col.Collection.Validator.Fields["userId"].IsRequired())
	assert.Equal(t, "error", string(col.Collection.Options().ValidationAction))

	idx := m.Entries[1].Index
	require.NotNil(t, idx)
	assert.Equal(t, "user_profiles", idx.Collection)
	assert.Equal(t, "idx_userId_updateTime", idx.Name)
	assert.True(t, idx.Unique)
	assert.True(t, idx.Background)
	assert.Equal(t, schema.KeyPattern{
		{Field: "userId", Direction: schema.Ascending},
		{Field: "updateTime", Direction: schema.Descending},
	}, idx.Keys)

	seed := m.Entries[2].Seed
	require.NotNil(t, seed)
	assert.Equal(t, FieldList{"userId"}, seed.Key)
	assert.Equal(t, FieldList{"createTime"}, seed.Timestamps)
	assert.Equal(t, "UNKNOWN", seed.Document["basicInfo"].(map[string]any)["gender"])

	assert.NoError(t, m.Validate())
}

func TestEntry_JSON(t *testing.T) {
	raw := `{
		"name": "sample",
		"entries": [
			{"kind": "collection", "name": "user_tags"},
			{"kind": "index", "collection": "user_tags", "name": "idx_userId", "keys": {"userId": 1}, "unique": true},
			{"kind": "seed", "collection": "user_tags", "key": ["userId"], "document": {"userId": 1}},
			{"kind": "view", "name": "ignored"}
		]
	}`

	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.Len(t, m.Entries, 4)
	assert.Equal(t, "user_tags", m.Entries[0].Collection.Name)
	assert.Equal(t, "idx_userId", m.Entries[1].Index.Name)
	assert.Equal(t, []string{"userId"}, m.Entries[1].Index.Keys.Fields())
	assert.Equal(t, float64(1), m.Entries[2].Seed.Document["userId"])

	unknown := m.Entries[3]
	assert.Equal(t, Kind("view"), unknown.Kind)
	assert.Nil(t, unknown.Collection)
	assert.Nil(t, unknown.Index)
	assert.Nil(t, unknown.Seed)
}

func TestManifest_Accessors(t *testing.T) {
	var m Manifest
	require.NoError(t, yaml.Unmarshal([]byte(`
name: order
entries:
  - {kind: seed, collection: c, key: k, document: {k: 1}}
  - {kind: index, collection: b, name: i1, keys: {a: 1}}
  - {kind: collection, name: a}
  - {kind: index, collection: a, name: i2, keys: {a: 1}}
  - {kind: collection, name: b}
`), &m))

	require.Len(t, m.Collections(), 2)
	assert.Equal(t, "a", m.Collections()[0].Name)
	assert.Equal(t, "b", m.Collections()[1].Name)

	require.Len(t, m.Indexes(), 2)
	assert.Equal(t, "i1", m.Indexes()[0].Name)
	assert.Equal(t, "i2", m.Indexes()[1].Name)

	require.Len(t, m.Seeds(), 1)
	assert.Equal(t, []string{"c", "b", "a"}, m.CollectionNames())

	assert.Equal(t, "index b.i1", m.Entries[1].Describe())
	assert.Equal(t, "seed c{k}", m.Entries[0].Describe())
}
