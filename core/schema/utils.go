package schema

import "strings"

// FindField resolves a dotted path ("basicInfo.location") to its definition, or nil.
func (s *SchemaDefinition) FindField(path string) *FieldDefinition {
	if s == nil {
		return nil
	}
	fields := s.Fields
	var field *FieldDefinition
	for _, part := range strings.Split(path, ".") {
		next, ok := fields[part]
		if !ok || next == nil {
			return nil
		}
		field = next
		fields = next.Fields
	}
	return field
}

// Normalize fills empty field names from their map keys, recursively.
func (s *SchemaDefinition) Normalize() {
	if s == nil {
		return
	}
	normalizeFields(s.Fields)
}

func normalizeFields(fields map[string]*FieldDefinition) {
	for key, field := range fields {
		if field == nil {
			continue
		}
		if field.Name == "" {
			field.Name = key
		}
		normalizeFields(field.Fields)
	}
}
