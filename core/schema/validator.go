package schema

import (
	"fmt"
	"reflect"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/utils"
)

// Issue represents a validation problem found in a document or a definition.
type Issue struct {
	Code     string `json:"code" yaml:"code"`
	Message  string `json:"message" yaml:"message"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"` // e.g., "error", "warning"
}

func (i Issue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", i.Code, i.Message, i.Path)
}

func newIssue(code, message, path string) Issue {
	return Issue{Code: code, Message: message, Path: path, Severity: "error"}
}

// Validator checks documents against a collection validator. It verifies required
// fields, types, allowed values, numeric ranges and nested objects. A Validator is not
// safe for concurrent use; create one per goroutine.
type Validator struct {
	schema *SchemaDefinition
	issues []Issue
}

// NewValidator creates a new Validator instance for a given schema.
// The returned validator can be reused for multiple validation operations.
func NewValidator(schema *SchemaDefinition) *Validator {
	return &Validator{
		schema: schema,
		issues: make([]Issue, 0),
	}
}

// Validate checks if a given document conforms to the validator's schema.
// It returns whether validation succeeded and the issues found.
func (v *Validator) Validate(data Document) (bool, []Issue) {
	v.issues = make([]Issue, 0)
	if v.schema == nil {
		return true, v.issues
	}

	v.validateData(v.schema.Fields, data, "", v.schema.IsStrict())
	return len(v.issues) == 0, v.issues
}

// validateData checks every declared field of one object level.
func (v *Validator) validateData(fields map[string]*FieldDefinition, data map[string]any, path string, strict bool) {
	for _, fieldName := range sortedKeys(fields) {
		fieldDef := fields[fieldName]
		fieldPath := v.buildPath(path, fieldName)
		value, exists := data[fieldName]

		if fieldDef.IsRequired() && !exists {
			v.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required field '%s' is missing", fieldName), fieldPath)
			continue
		}

		if !exists {
			continue
		}

		v.validateFieldValue(value, fieldDef, fieldPath)
	}

	if !strict {
		return
	}
	for dataKey := range data {
		if dataKey == "_id" {
			continue
		}
		if _, exists := fields[dataKey]; !exists {
			v.addIssue("UNEXPECTED_FIELD", fmt.Sprintf("Unexpected field '%s' not defined in schema", dataKey), v.buildPath(path, dataKey))
		}
	}
}

// validateFieldValue validates a single field's value against its definition.
func (v *Validator) validateFieldValue(value any, fieldDef *FieldDefinition, path string) {
	if value == nil {
		if !fieldDef.IsNullable() {
			v.addIssue("NULL_VALUE", "Field cannot be null", path)
		}
		return
	}

	if !v.validateFieldType(value, fieldDef.Type, path) {
		return
	}

	if len(fieldDef.Values) > 0 {
		v.validateEnumValue(value, fieldDef.Values, path)
	}

	if fieldDef.Type.IsNumeric() {
		v.validateRange(value, fieldDef, path)
	}

	switch fieldDef.Type {
	case FieldTypeObject:
		if len(fieldDef.Fields) > 0 {
			v.validateData(fieldDef.Fields, value.(map[string]any), path, false)
		}
	case FieldTypeArray, FieldTypeSet:
		v.validateArrayField(value, fieldDef, path)
	}
}

// validateFieldType checks if a value's type matches the expected type.
func (v *Validator) validateFieldType(value any, expectedType FieldType, path string) bool {
	switch expectedType {
	case FieldTypeString:
		if _, ok := value.(string); !ok {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected string, got %T", value), path)
			return false
		}
	case FieldTypeNumber, FieldTypeDecimal:
		if !v.isNumericType(value) {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected number, got %T", value), path)
			return false
		}
	case FieldTypeInteger:
		if !v.isIntegerType(value) {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected integer, got %T", value), path)
			return false
		}
	case FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected boolean, got %T", value), path)
			return false
		}
	case FieldTypeArray, FieldTypeSet:
		if !v.isArrayType(value) {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected array, got %T", value), path)
			return false
		}
	case FieldTypeObject, FieldTypeRecord:
		if !v.isObjectType(value) {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected object, got %T", value), path)
			return false
		}
	case FieldTypeDate:
		if !v.isDateType(value) {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected date, got %T", value), path)
			return false
		}
	}
	return true
}

// validateEnumValue validates that a value is one of the allowed values.
// Numbers compare by value so that 1 and 1.0 are the same member.
func (v *Validator) validateEnumValue(value any, allowedValues []any, path string) {
	for _, allowedValue := range allowedValues {
		if reflect.DeepEqual(value, allowedValue) {
			return
		}
		if a, ok := utils.ToFloat64(value); ok && v.isNumericType(value) {
			if b, ok := utils.ToFloat64(allowedValue); ok && v.isNumericType(allowedValue) && a == b {
				return
			}
		}
	}
	v.addIssue("ENUM_VIOLATION", fmt.Sprintf("Value must be one of: %v", allowedValues), path)
}

// validateRange enforces the inclusive minimum and maximum of numeric fields.
func (v *Validator) validateRange(value any, fieldDef *FieldDefinition, path string) {
	n, ok := utils.ToFloat64(value)
	if !ok {
		return
	}
	if fieldDef.Minimum != nil && n < *fieldDef.Minimum {
		v.addIssue("RANGE_VIOLATION", fmt.Sprintf("Value %v is less than minimum %v", n, *fieldDef.Minimum), path)
	}
	if fieldDef.Maximum != nil && n > *fieldDef.Maximum {
		v.addIssue("RANGE_VIOLATION", fmt.Sprintf("Value %v is greater than maximum %v", n, *fieldDef.Maximum), path)
	}
}

// validateArrayField validates the items of an array or set field.
func (v *Validator) validateArrayField(value any, fieldDef *FieldDefinition, path string) {
	rv := reflect.ValueOf(value)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	if fieldDef.ItemsType != nil {
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			itemFieldDef := &FieldDefinition{Type: *fieldDef.ItemsType}
			v.validateFieldValue(item, itemFieldDef, itemPath)
		}
	}

	if fieldDef.Type == FieldTypeSet {
		v.validateSetUniqueness(items, path)
	}
}

// validateSetUniqueness validates that all items in a set are unique.
func (v *Validator) validateSetUniqueness(items []any, path string) {
	seen := make(map[string]bool)
	for i, item := range items {
		key := fmt.Sprintf("%T:%v", item, item)
		if seen[key] {
			v.addIssue("SET_DUPLICATE", fmt.Sprintf("Duplicate value found in set at index %d", i), path)
		}
		seen[key] = true
	}
}

// isNumericType checks if a value is a numeric type.
func (v *Validator) isNumericType(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// isIntegerType checks if a value is an integer. Floats without a fractional part
// qualify, since JSON decoding yields float64 for every number.
func (v *Validator) isIntegerType(value any) bool {
	switch n := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == float64(int64(n))
	case float32:
		return n == float32(int64(n))
	}
	return false
}

// isArrayType checks if a value is an array or slice.
func (v *Validator) isArrayType(value any) bool {
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
}

// isObjectType checks if a value is a map with string keys.
func (v *Validator) isObjectType(value any) bool {
	_, ok := value.(map[string]any)
	return ok
}

// isDateType accepts time.Time values and RFC 3339 strings.
func (v *Validator) isDateType(value any) bool {
	switch t := value.(type) {
	case time.Time:
		return true
	case string:
		_, err := time.Parse(time.RFC3339Nano, t)
		return err == nil
	}
	return false
}

// buildPath constructs a dot-separated path string for error reporting.
func (v *Validator) buildPath(basePath, fieldName string) string {
	if basePath == "" {
		return fieldName
	}
	return basePath + "." + fieldName
}

// addIssue adds a new validation issue to the validator's list of issues.
func (v *Validator) addIssue(code, message, path string) {
	v.issues = append(v.issues, newIssue(code, message, path))
}
