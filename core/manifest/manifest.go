// Package manifest holds the declarative description of the collections, indexes
// and seed documents a database must contain, and the code that reads it.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"gopkg.in/yaml.v3"
)

// Kind tags a manifest entry.
type Kind string

const (
	KindCollection Kind = "collection"
	KindIndex      Kind = "index"
	KindSeed       Kind = "seed"
)

// CollectionSpec declares a collection and the validator attached to it.
type CollectionSpec struct {
	Name             string                       `json:"name" yaml:"name"`
	Validator        *schema.SchemaDefinition     `json:"validator,omitempty" yaml:"validator,omitempty"`
	ValidationLevel  persistence.ValidationLevel  `json:"validationLevel,omitempty" yaml:"validationLevel,omitempty"`
	ValidationAction persistence.ValidationAction `json:"validationAction,omitempty" yaml:"validationAction,omitempty"`
}

// Options returns the creation options of the collection.
func (c *CollectionSpec) Options() persistence.CollectionOptions {
	return persistence.CollectionOptions{
		Validator:        c.Validator,
		ValidationLevel:  c.ValidationLevel,
		ValidationAction: c.ValidationAction,
	}
}

// IndexSpec declares an index on a collection.
type IndexSpec struct {
	Collection             string `json:"collection" yaml:"collection"`
	schema.IndexDefinition `yaml:",inline"`
}

// FieldList is a list of dotted field paths. A single path may be written as a
// scalar.
type FieldList []string

// UnmarshalJSON accepts a string or an array of strings.
func (l *FieldList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = FieldList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a field path or a list of field paths: %w", err)
	}
	*l = many
	return nil
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (l *FieldList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*l = FieldList{value.Value}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return err
	}
	*l = many
	return nil
}

// SeedRecord is a document inserted once, identified by its natural key.
type SeedRecord struct {
	Collection string `json:"collection" yaml:"collection"`
	// Key lists the field paths whose values identify the document.
	Key FieldList `json:"key" yaml:"key"`
	// Timestamps lists field paths set to the insertion time when the document
	// leaves them unset.
	Timestamps FieldList      `json:"timestamps,omitempty" yaml:"timestamps,omitempty"`
	Document   map[string]any `json:"document" yaml:"document"`
}

// Entry is one tagged element of a manifest. Exactly one of Collection, Index and
// Seed is set for a known Kind.
type Entry struct {
	Kind       Kind
	Collection *CollectionSpec
	Index      *IndexSpec
	Seed       *SeedRecord
}

type entryHeader struct {
	Kind Kind `json:"kind" yaml:"kind"`
}

// UnmarshalJSON decodes the entry according to its kind. Unknown kinds decode
// without a payload and are reported by Validate.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var header entryHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	e.Kind = header.Kind
	switch header.Kind {
	case KindCollection:
		e.Collection = &CollectionSpec{}
		return json.Unmarshal(data, e.Collection)
	case KindIndex:
		e.Index = &IndexSpec{}
		return json.Unmarshal(data, e.Index)
	case KindSeed:
		e.Seed = &SeedRecord{}
		return json.Unmarshal(data, e.Seed)
	}
	return nil
}

// UnmarshalYAML decodes the entry according to its kind.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var header entryHeader
	if err := value.Decode(&header); err != nil {
		return err
	}
	e.Kind = header.Kind
	switch header.Kind {
	case KindCollection:
		e.Collection = &CollectionSpec{}
		return value.Decode(e.Collection)
	case KindIndex:
		e.Index = &IndexSpec{}
		return value.Decode(e.Index)
	case KindSeed:
		e.Seed = &SeedRecord{}
		return value.Decode(e.Seed)
	}
	return nil
}

// Describe names the entry for logs and reports.
func (e *Entry) Describe() string {
	switch {
	case e.Collection != nil:
		return fmt.Sprintf("collection %s", e.Collection.Name)
	case e.Index != nil:
		return fmt.Sprintf("index %s.%s", e.Index.Collection, e.Index.Name)
	case e.Seed != nil:
		return fmt.Sprintf("seed %s{%s}", e.Seed.Collection, strings.Join(e.Seed.Key, ","))
	}
	return fmt.Sprintf("unknown entry of kind '%s'", e.Kind)
}

// Manifest is an ordered, declarative description of database state.
type Manifest struct {
	Name        string  `json:"name" yaml:"name"`
	Database    string  `json:"database,omitempty" yaml:"database,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Entries     []Entry `json:"entries" yaml:"entries"`
}

// Collections returns the collection entries in manifest order.
func (m *Manifest) Collections() []*CollectionSpec {
	var out []*CollectionSpec
	for _, e := range m.Entries {
		if e.Collection != nil {
			out = append(out, e.Collection)
		}
	}
	return out
}

// Indexes returns the index entries in manifest order.
func (m *Manifest) Indexes() []*IndexSpec {
	var out []*IndexSpec
	for _, e := range m.Entries {
		if e.Index != nil {
			out = append(out, e.Index)
		}
	}
	return out
}

// Seeds returns the seed entries in manifest order.
func (m *Manifest) Seeds() []*SeedRecord {
	var out []*SeedRecord
	for _, e := range m.Entries {
		if e.Seed != nil {
			out = append(out, e.Seed)
		}
	}
	return out
}

// CollectionNames returns every collection the manifest declares or references,
// deduplicated, in order of first appearance.
func (m *Manifest) CollectionNames() []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for _, e := range m.Entries {
		switch {
		case e.Collection != nil:
			add(e.Collection.Name)
		case e.Index != nil:
			add(e.Index.Collection)
		case e.Seed != nil:
			add(e.Seed.Collection)
		}
	}
	return names
}
