package manifest

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/asaidimu/go-anansi-bootstrap/utils"
)

// ValidationError reports every problem found in a manifest.
type ValidationError struct {
	Manifest string
	Issues   []schema.Issue
}

func (e *ValidationError) Error() string {
	name := e.Manifest
	if name == "" {
		name = "<unnamed>"
	}
	if len(e.Issues) == 1 {
		return fmt.Sprintf("invalid manifest %s: %s", name, e.Issues[0])
	}
	return fmt.Sprintf("invalid manifest %s: %d issues, first: %s", name, len(e.Issues), e.Issues[0])
}

type indexName struct {
	collection string
	name       string
}

type checker struct {
	issues []schema.Issue
}

func (c *checker) add(code, path, format string, args ...any) {
	c.issues = append(c.issues, schema.Issue{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
		Severity: "error",
	})
}

// Validate checks the manifest for structural problems before anything touches a
// database. It returns a *ValidationError listing every issue, or nil.
func (m *Manifest) Validate() error {
	c := &checker{}
	if m.Name == "" {
		c.add("MISSING_NAME", "name", "Manifest name is required")
	}

	collections := make(map[string]string)
	indexes := make(map[indexName]string)
	validators := make(map[string]*schema.SchemaDefinition)
	for _, spec := range m.Collections() {
		if spec.Validator != nil {
			validators[spec.Name] = spec.Validator
		}
	}

	for i := range m.Entries {
		entry := &m.Entries[i]
		path := fmt.Sprintf("entries[%d]", i)

		switch {
		case entry.Kind == KindCollection && entry.Collection != nil:
			c.checkCollection(path, entry.Collection, collections)
		case entry.Kind == KindIndex && entry.Index != nil:
			c.checkIndex(path, entry.Index, indexes)
		case entry.Kind == KindSeed && entry.Seed != nil:
			c.checkSeed(path, entry.Seed, validators[entry.Seed.Collection])
		case entry.Kind == "":
			c.add("MISSING_KIND", path+".kind", "Entry kind is required")
		default:
			c.add("UNKNOWN_KIND", path+".kind", "Unknown entry kind '%s', expected collection, index or seed", entry.Kind)
		}
	}

	if len(c.issues) == 0 {
		return nil
	}
	return &ValidationError{Manifest: m.Name, Issues: c.issues}
}

func (c *checker) checkCollection(path string, spec *CollectionSpec, seen map[string]string) {
	if spec.Name == "" {
		c.add("MISSING_NAME", path+".name", "Collection name is required")
	} else if first, ok := seen[spec.Name]; ok {
		c.add("DUPLICATE_COLLECTION", path+".name", "Collection '%s' is already declared at %s", spec.Name, first)
	} else {
		seen[spec.Name] = path
	}

	switch spec.ValidationLevel {
	case "", persistence.ValidationLevelStrict, persistence.ValidationLevelModerate:
	default:
		c.add("INVALID_OPTION", path+".validationLevel", "Unknown validation level '%s'", spec.ValidationLevel)
	}
	switch spec.ValidationAction {
	case "", persistence.ValidationActionError, persistence.ValidationActionWarn:
	default:
		c.add("INVALID_OPTION", path+".validationAction", "Unknown validation action '%s'", spec.ValidationAction)
	}

	if spec.Validator == nil {
		return
	}
	for _, issue := range spec.Validator.Check() {
		issue.Path = path + ".validator.fields." + issue.Path
		c.issues = append(c.issues, issue)
	}
}

func (c *checker) checkIndex(path string, spec *IndexSpec, seen map[indexName]string) {
	if spec.Collection == "" {
		c.add("MISSING_COLLECTION", path+".collection", "Index collection is required")
	}
	if spec.Name == "" {
		c.add("MISSING_NAME", path+".name", "Index name is required")
	} else {
		key := indexName{collection: spec.Collection, name: spec.Name}
		if first, ok := seen[key]; ok {
			c.add("DUPLICATE_INDEX", path+".name", "Index '%s' on collection '%s' is already declared at %s", spec.Name, spec.Collection, first)
		} else {
			seen[key] = path
		}
	}

	if len(spec.Keys) == 0 {
		c.add("EMPTY_KEY_PATTERN", path+".keys", "Index must declare at least one key")
	}
	fields := make(map[string]struct{}, len(spec.Keys))
	for i, key := range spec.Keys {
		keyPath := fmt.Sprintf("%s.keys[%d]", path, i)
		if err := checkFieldPath(key.Field); err != nil {
			c.add("INVALID_FIELD_PATH", keyPath, "%v", err)
		}
		if !key.Direction.IsValid() {
			c.add("INVALID_DIRECTION", keyPath, "Direction of '%s' must be 1 or -1, got %d", key.Field, key.Direction)
		}
		if _, dup := fields[key.Field]; dup {
			c.add("DUPLICATE_KEY_FIELD", keyPath, "Field '%s' appears more than once in the key pattern", key.Field)
		}
		fields[key.Field] = struct{}{}
	}
}

func (c *checker) checkSeed(path string, spec *SeedRecord, validator *schema.SchemaDefinition) {
	if spec.Collection == "" {
		c.add("MISSING_COLLECTION", path+".collection", "Seed collection is required")
	}
	if spec.Document == nil {
		c.add("MISSING_DOCUMENT", path+".document", "Seed document is required")
	}
	if len(spec.Key) == 0 {
		c.add("EMPTY_NATURAL_KEY", path+".key", "Seed must declare a natural key")
	}
	for i, field := range spec.Key {
		keyPath := fmt.Sprintf("%s.key[%d]", path, i)
		if err := checkFieldPath(field); err != nil {
			c.add("INVALID_FIELD_PATH", keyPath, "%v", err)
			continue
		}
		if _, ok := utils.LookupPath(spec.Document, field); !ok {
			c.add("KEY_NOT_IN_DOCUMENT", keyPath, "Natural key field '%s' is absent from the seed document", field)
		}
	}
	for i, field := range spec.Timestamps {
		stampPath := fmt.Sprintf("%s.timestamps[%d]", path, i)
		if err := checkFieldPath(field); err != nil {
			c.add("INVALID_FIELD_PATH", stampPath, "%v", err)
			continue
		}
		if def := validator.FindField(field); def != nil && def.Type != schema.FieldTypeDate {
			c.add("TIMESTAMP_NOT_DATE", stampPath, "Timestamp field '%s' is declared as '%s' in the validator", field, def.Type)
		}
	}
}

// checkFieldPath rejects empty paths, empty segments and operator-like names.
func checkFieldPath(field string) error {
	if field == "" {
		return fmt.Errorf("field path is empty")
	}
	for _, segment := range strings.Split(field, ".") {
		if segment == "" {
			return fmt.Errorf("field path '%s' has an empty segment", field)
		}
		if strings.HasPrefix(segment, "$") {
			return fmt.Errorf("field path '%s' must not start a segment with '$'", field)
		}
	}
	return nil
}
