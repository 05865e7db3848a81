package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseIndexDirection(t *testing.T) {
	for _, in := range []string{"1", "asc", "ASC", "ascending"} {
		d, err := ParseIndexDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, Ascending, d)
	}
	for _, in := range []string{"-1", "desc", "Descending"} {
		d, err := ParseIndexDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, Descending, d)
	}
	_, err := ParseIndexDirection("2")
	assert.Error(t, err)
}

func TestKeyPattern_JSONPreservesOrder(t *testing.T) {
	var def IndexDefinition
	err := json.Unmarshal([]byte(`{"name":"idx_updateTime","keys":{"userId":1,"updateTime":-1}}`), &def)
	require.NoError(t, err)

	assert.Equal(t, KeyPattern{
		{Field: "userId", Direction: Ascending},
		{Field: "updateTime", Direction: Descending},
	}, def.Keys)
	assert.Equal(t, "{userId:1, updateTime:-1}", def.Keys.String())

	out, err := json.Marshal(def.Keys)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":1,"updateTime":-1}`, string(out))
	assert.Equal(t, `{"userId":1,"updateTime":-1}`, string(out))
}

func TestKeyPattern_JSONList(t *testing.T) {
	var keys KeyPattern
	err := json.Unmarshal([]byte(`[{"field":"b","direction":"desc"},{"field":"a","direction":1}]`), &keys)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keys.Fields())
	assert.Equal(t, Descending, keys[0].Direction)
}

func TestKeyPattern_JSONInvalid(t *testing.T) {
	var keys KeyPattern
	assert.Error(t, json.Unmarshal([]byte(`{"userId":2}`), &keys))
	assert.Error(t, json.Unmarshal([]byte(`"userId"`), &keys))
}

func TestKeyPattern_YAML(t *testing.T) {
	src := `
name: idx_compound
keys:
  zeta: 1
  alpha: desc
unique: true
`
	var def IndexDefinition
	require.NoError(t, yaml.Unmarshal([]byte(src), &def))
	assert.True(t, def.Unique)
	assert.Equal(t, KeyPattern{
		{Field: "zeta", Direction: Ascending},
		{Field: "alpha", Direction: Descending},
	}, def.Keys)

	out, err := yaml.Marshal(def.Keys)
	require.NoError(t, err)
	assert.Equal(t, "zeta: 1\nalpha: -1\n", string(out))
}

func TestKeyPattern_YAMLSequence(t *testing.T) {
	src := `
- field: userId
  direction: 1
- field: updateTime
  direction: -1
`
	var keys KeyPattern
	require.NoError(t, yaml.Unmarshal([]byte(src), &keys))
	assert.Equal(t, []string{"userId", "updateTime"}, keys.Fields())
	assert.Equal(t, Descending, keys[1].Direction)
}

func TestIndexDefinition_SameShape(t *testing.T) {
	a := IndexDefinition{Name: "idx_userId", Keys: KeyPattern{{Field: "userId", Direction: Ascending}}, Unique: true}
	b := a
	b.Name = "other"
	b.Background = true
	assert.True(t, a.SameShape(b))

	c := a
	c.Unique = false
	assert.False(t, a.SameShape(c))

	d := a
	d.Keys = KeyPattern{{Field: "userId", Direction: Descending}}
	assert.False(t, a.SameShape(d))
}
