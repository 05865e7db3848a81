package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// IndexDirection is the sort direction of a single key in an index key pattern.
type IndexDirection int

const (
	Ascending  IndexDirection = 1
	Descending IndexDirection = -1
)

// IsValid reports whether the direction is ascending or descending.
func (d IndexDirection) IsValid() bool {
	return d == Ascending || d == Descending
}

func (d IndexDirection) String() string {
	switch d {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	}
	return strconv.Itoa(int(d))
}

// ParseIndexDirection accepts 1, -1, asc, ascending, desc and descending.
func ParseIndexDirection(s string) (IndexDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "asc", "ascending":
		return Ascending, nil
	case "-1", "desc", "descending":
		return Descending, nil
	}
	return 0, fmt.Errorf("invalid index direction %q: expected 1, -1, asc or desc", s)
}

// UnmarshalJSON accepts both the numeric and the named form.
func (d *IndexDirection) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := ParseIndexDirection(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalYAML accepts both the numeric and the named form.
func (d *IndexDirection) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: index direction must be a scalar", value.Line)
	}
	parsed, err := ParseIndexDirection(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

// IndexKey is one (field, direction) pair of a key pattern.
type IndexKey struct {
	Field     string         `json:"field" yaml:"field"`
	Direction IndexDirection `json:"direction" yaml:"direction"`
}

// KeyPattern is the ordered list of keys an index is built over. Order is significant
// for compound indexes.
type KeyPattern []IndexKey

// Fields returns the field paths of the pattern, in order.
func (p KeyPattern) Fields() []string {
	fields := make([]string, len(p))
	for i, key := range p {
		fields[i] = key.Field
	}
	return fields
}

// Equal reports whether both patterns have the same keys in the same order.
func (p KeyPattern) Equal(other KeyPattern) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

func (p KeyPattern) String() string {
	parts := make([]string, len(p))
	for i, key := range p {
		parts[i] = fmt.Sprintf("%s:%d", key.Field, key.Direction)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// UnmarshalJSON accepts either an ordered object ({"userId": 1, "updateTime": -1}),
// preserving the declaration order, or an array of {field, direction} objects.
func (p *KeyPattern) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = nil
		return nil
	}

	if trimmed[0] == '[' {
		var keys []IndexKey
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return fmt.Errorf("failed to decode key pattern: %w", err)
		}
		*p = keys
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("key pattern must be an object or an array")
	}

	var keys KeyPattern
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to decode key pattern: %w", err)
		}
		field, ok := tok.(string)
		if !ok {
			return fmt.Errorf("key pattern field must be a string, got %T", tok)
		}
		var dir IndexDirection
		if err := dec.Decode(&dir); err != nil {
			return fmt.Errorf("key pattern field '%s': %w", field, err)
		}
		keys = append(keys, IndexKey{Field: field, Direction: dir})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to decode key pattern: %w", err)
	}
	*p = keys
	return nil
}

// MarshalJSON writes the pattern in its ordered object form.
func (p KeyPattern) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(int(key.Direction)))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML accepts either an ordered mapping or a sequence of {field, direction}.
func (p *KeyPattern) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var keys []IndexKey
		if err := value.Decode(&keys); err != nil {
			return err
		}
		*p = keys
		return nil
	case yaml.MappingNode:
		keys := make(KeyPattern, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			var dir IndexDirection
			if err := value.Content[i+1].Decode(&dir); err != nil {
				return fmt.Errorf("key pattern field '%s': %w", value.Content[i].Value, err)
			}
			keys = append(keys, IndexKey{Field: value.Content[i].Value, Direction: dir})
		}
		*p = keys
		return nil
	}
	return fmt.Errorf("line %d: key pattern must be a mapping or a sequence", value.Line)
}

// MarshalYAML writes the pattern as an ordered mapping.
func (p KeyPattern) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range p {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key.Field},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(int(key.Direction))},
		)
	}
	return node, nil
}

// IndexDefinition defines an index for optimizing queries or enforcing uniqueness.
type IndexDefinition struct {
	Name string     `json:"name" yaml:"name"`
	Keys KeyPattern `json:"keys" yaml:"keys"`
	// Unique enforces that no two documents share the same values for Keys.
	Unique bool `json:"unique,omitempty" yaml:"unique,omitempty"`
	// Background requests a build that does not hold an exclusive lock on the collection.
	// Drivers that cannot honor it build synchronously.
	Background  bool    `json:"background,omitempty" yaml:"background,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
}

// SameShape reports whether two definitions enforce the same keys and uniqueness.
// Names and build options are not compared.
func (d IndexDefinition) SameShape(other IndexDefinition) bool {
	return d.Unique == other.Unique && d.Keys.Equal(other.Keys)
}
