// Package schema defines the declarative shape of a collection: the validator that
// constrains documents written to it and the indexes that are built over it.
package schema

import (
	"fmt"
	"sort"
)

// Document is a single record stored in a collection. Drivers decode stored documents
// into this generic form.
type Document = map[string]any

// FieldType represents the basic field types supported by the validator.
type FieldType string

const (
	FieldTypeString  FieldType = "string"  // Text data
	FieldTypeNumber  FieldType = "number"  // Floating point data
	FieldTypeInteger FieldType = "integer" // Whole numbers, stored as 64-bit integers
	FieldTypeDecimal FieldType = "decimal" // Numeric data with decimal semantics
	FieldTypeBoolean FieldType = "boolean" // True/false values
	FieldTypeArray   FieldType = "array"   // Ordered list of items
	FieldTypeSet     FieldType = "set"     // List with unique items
	FieldTypeEnum    FieldType = "enum"    // One out of a set of pre-defined items
	FieldTypeObject  FieldType = "object"  // Structured data with nested fields
	FieldTypeRecord  FieldType = "record"  // Unorganized key-value object, resolves to map[string]any
	FieldTypeDate    FieldType = "date"    // Timestamps, time.Time or RFC 3339 strings
)

var knownFieldTypes = map[FieldType]struct{}{
	FieldTypeString:  {},
	FieldTypeNumber:  {},
	FieldTypeInteger: {},
	FieldTypeDecimal: {},
	FieldTypeBoolean: {},
	FieldTypeArray:   {},
	FieldTypeSet:     {},
	FieldTypeEnum:    {},
	FieldTypeObject:  {},
	FieldTypeRecord:  {},
	FieldTypeDate:    {},
}

// IsKnown reports whether the field type is one the validator understands.
func (t FieldType) IsKnown() bool {
	_, ok := knownFieldTypes[t]
	return ok
}

// IsNumeric reports whether values of this type can carry a numeric range.
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeNumber || t == FieldTypeInteger || t == FieldTypeDecimal
}

// FieldDefinition defines a field within a validator, including its type, the
// allowed values and, for objects, its nested fields.
type FieldDefinition struct {
	Name string    `json:"name,omitempty" yaml:"name,omitempty"`
	Type FieldType `json:"type" yaml:"type"`
	// Required indicates if the field is mandatory.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`
	// Nullable allows an explicit null in place of a value of Type.
	Nullable *bool `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	// Values specifies the allowed values. Mandatory for 'enum', optional restriction otherwise.
	Values []any `json:"values,omitempty" yaml:"values,omitempty"`
	// Minimum and Maximum bound numeric fields, inclusive.
	Minimum *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	// ItemsType specifies the type of items in 'array' or 'set' fields.
	ItemsType *FieldType `json:"itemsType,omitempty" yaml:"itemsType,omitempty"`
	// Fields describes the nested fields of an 'object' field.
	Fields map[string]*FieldDefinition `json:"fields,omitempty" yaml:"fields,omitempty"`
	// Description provides a brief explanation of the field.
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
}

// SchemaDefinition is the validator attached to a collection.
type SchemaDefinition struct {
	Name        string                      `json:"name,omitempty" yaml:"name,omitempty"`
	Version     string                      `json:"version,omitempty" yaml:"version,omitempty"`
	Description *string                     `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      map[string]*FieldDefinition `json:"fields" yaml:"fields"`
	// Strict rejects fields that are not declared in Fields. Undeclared fields are
	// accepted by default, matching document database validators.
	Strict *bool `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// IsStrict reports whether undeclared fields are rejected.
func (s *SchemaDefinition) IsStrict() bool {
	return s != nil && s.Strict != nil && *s.Strict
}

// RequiredFields returns the names of the top-level required fields, sorted.
func (s *SchemaDefinition) RequiredFields() []string {
	return requiredOf(s.Fields)
}

// RequiredFields returns the names of the required nested fields of an object, sorted.
func (f *FieldDefinition) RequiredFields() []string {
	return requiredOf(f.Fields)
}

// IsRequired reports whether the field is mandatory.
func (f *FieldDefinition) IsRequired() bool {
	return f.Required != nil && *f.Required
}

// IsNullable reports whether the field accepts an explicit null.
func (f *FieldDefinition) IsNullable() bool {
	return f.Nullable != nil && *f.Nullable
}

func requiredOf(fields map[string]*FieldDefinition) []string {
	var names []string
	for key, field := range fields {
		if field != nil && field.IsRequired() {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

// Check reports every structural problem in the validator definition itself.
// A definition that fails Check must not be attached to a collection.
func (s *SchemaDefinition) Check() []Issue {
	if s == nil {
		return nil
	}
	var issues []Issue
	for _, key := range sortedKeys(s.Fields) {
		issues = append(issues, checkField(key, s.Fields[key])...)
	}
	return issues
}

// CheckError folds the result of Check into a single error, or nil.
func (s *SchemaDefinition) CheckError() error {
	issues := s.Check()
	if len(issues) == 0 {
		return nil
	}
	return &DefinitionError{Issues: issues}
}

// DefinitionError reports a malformed validator definition.
type DefinitionError struct {
	Issues []Issue
}

func (e *DefinitionError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("invalid validator: %s: %s", e.Issues[0].Path, e.Issues[0].Message)
	}
	return fmt.Sprintf("invalid validator: %d issues, first: %s: %s", len(e.Issues), e.Issues[0].Path, e.Issues[0].Message)
}

func checkField(path string, field *FieldDefinition) []Issue {
	if field == nil {
		return []Issue{newIssue("NIL_FIELD", "Field definition is empty", path)}
	}

	var issues []Issue
	if !field.Type.IsKnown() {
		issues = append(issues, newIssue("UNKNOWN_FIELD_TYPE", fmt.Sprintf("Unknown field type '%s'", field.Type), path))
	}
	if field.Type == FieldTypeEnum && len(field.Values) == 0 {
		issues = append(issues, newIssue("EMPTY_ENUM", "Enum field must declare at least one value", path))
	}
	if (field.Minimum != nil || field.Maximum != nil) && !field.Type.IsNumeric() {
		issues = append(issues, newIssue("RANGE_ON_NON_NUMERIC", fmt.Sprintf("Range is not applicable to type '%s'", field.Type), path))
	}
	if field.Minimum != nil && field.Maximum != nil && *field.Minimum > *field.Maximum {
		issues = append(issues, newIssue("INVALID_RANGE", fmt.Sprintf("Minimum %v is greater than maximum %v", *field.Minimum, *field.Maximum), path))
	}
	if field.ItemsType != nil {
		if field.Type != FieldTypeArray && field.Type != FieldTypeSet {
			issues = append(issues, newIssue("ITEMS_ON_NON_ARRAY", fmt.Sprintf("itemsType is not applicable to type '%s'", field.Type), path))
		} else if !field.ItemsType.IsKnown() {
			issues = append(issues, newIssue("UNKNOWN_FIELD_TYPE", fmt.Sprintf("Unknown items type '%s'", *field.ItemsType), path))
		}
	}
	if len(field.Fields) > 0 && field.Type != FieldTypeObject {
		issues = append(issues, newIssue("FIELDS_ON_NON_OBJECT", fmt.Sprintf("Nested fields are not applicable to type '%s'", field.Type), path))
	}
	for _, key := range sortedKeys(field.Fields) {
		issues = append(issues, checkField(path+"."+key, field.Fields[key])...)
	}
	return issues
}

func sortedKeys(fields map[string]*FieldDefinition) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
