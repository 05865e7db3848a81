package mongo

import (
	"fmt"
	"sort"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/query"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/asaidimu/go-anansi-bootstrap/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bsonTypes maps validator field types to $jsonSchema bsonType aliases. Enums carry
// no bsonType; their values constrain them.
var bsonTypes = map[schema.FieldType]string{
	schema.FieldTypeString:  "string",
	schema.FieldTypeNumber:  "double",
	schema.FieldTypeInteger: "long",
	schema.FieldTypeDecimal: "decimal",
	schema.FieldTypeBoolean: "bool",
	schema.FieldTypeArray:   "array",
	schema.FieldTypeSet:     "array",
	schema.FieldTypeObject:  "object",
	schema.FieldTypeRecord:  "object",
	schema.FieldTypeDate:    "date",
}

// jsonSchemaValidator converts a validator definition to the document passed as
// the validator option of createCollection.
func jsonSchemaValidator(s *schema.SchemaDefinition) bson.M {
	root := objectSchema(s.Fields)
	if s.Description != nil {
		root["description"] = *s.Description
	}
	if s.IsStrict() {
		properties := root["properties"].(bson.M)
		if _, ok := properties["_id"]; !ok {
			properties["_id"] = bson.M{}
		}
		root["additionalProperties"] = false
	}
	return bson.M{"$jsonSchema": root}
}

func objectSchema(fields map[string]*schema.FieldDefinition) bson.M {
	properties := bson.M{}
	var required []string
	for name, field := range fields {
		if field == nil {
			continue
		}
		properties[name] = fieldSchema(field)
		if field.IsRequired() {
			required = append(required, name)
		}
	}

	out := bson.M{"bsonType": "object", "properties": properties}
	if len(required) > 0 {
		sort.Strings(required)
		out["required"] = required
	}
	return out
}

func fieldSchema(field *schema.FieldDefinition) bson.M {
	var out bson.M
	if field.Type == schema.FieldTypeObject && len(field.Fields) > 0 {
		out = objectSchema(field.Fields)
	} else {
		out = bson.M{}
		if t, ok := bsonTypes[field.Type]; ok {
			out["bsonType"] = t
		}
	}

	if field.IsNullable() {
		if t, ok := out["bsonType"].(string); ok {
			out["bsonType"] = bson.A{t, "null"}
		}
	}
	if len(field.Values) > 0 {
		values := bson.A{}
		values = append(values, field.Values...)
		if field.IsNullable() {
			values = append(values, nil)
		}
		out["enum"] = values
	}
	if field.Minimum != nil {
		out["minimum"] = *field.Minimum
	}
	if field.Maximum != nil {
		out["maximum"] = *field.Maximum
	}
	if field.ItemsType != nil {
		if t, ok := bsonTypes[*field.ItemsType]; ok {
			out["items"] = bson.M{"bsonType": t}
		}
	}
	if field.Type == schema.FieldTypeSet {
		out["uniqueItems"] = true
	}
	if field.Description != nil {
		out["description"] = *field.Description
	}
	return out
}

// indexKeys converts a key pattern to the ordered document createIndexes expects.
func indexKeys(keys schema.KeyPattern) bson.D {
	d := make(bson.D, len(keys))
	for i, key := range keys {
		d[i] = bson.E{Key: key.Field, Value: int32(key.Direction)}
	}
	return d
}

// keyPattern converts the key document of a listed index back to a key pattern.
// Special index types such as text or hashed have no direction and are skipped.
func keyPattern(d bson.D) schema.KeyPattern {
	keys := make(schema.KeyPattern, 0, len(d))
	for _, e := range d {
		n, ok := numberOf(e.Value)
		if !ok {
			continue
		}
		dir := schema.Ascending
		if n < 0 {
			dir = schema.Descending
		}
		keys = append(keys, schema.IndexKey{Field: e.Key, Direction: dir})
	}
	return keys
}

var comparisonOperators = map[query.ComparisonOperator]string{
	query.ComparisonOperatorEq:  "$eq",
	query.ComparisonOperatorNeq: "$ne",
	query.ComparisonOperatorLt:  "$lt",
	query.ComparisonOperatorLte: "$lte",
	query.ComparisonOperatorGt:  "$gt",
	query.ComparisonOperatorGte: "$gte",
	query.ComparisonOperatorIn:  "$in",
	query.ComparisonOperatorNin: "$nin",
}

var logicalOperators = map[query.LogicalOperator]string{
	query.LogicalOperatorAnd: "$and",
	query.LogicalOperatorOr:  "$or",
	query.LogicalOperatorNor: "$nor",
}

// buildFilter translates a query filter into a MongoDB filter document. A nil
// filter matches every document.
func buildFilter(filter *query.QueryFilter) (bson.D, error) {
	if filter == nil {
		return bson.D{}, nil
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return translateFilter(filter)
}

func translateFilter(filter *query.QueryFilter) (bson.D, error) {
	if cond := filter.Condition; cond != nil {
		switch cond.Operator {
		case query.ComparisonOperatorExists:
			return bson.D{{Key: cond.Field, Value: bson.D{{Key: "$exists", Value: true}}}}, nil
		case query.ComparisonOperatorNotExists:
			return bson.D{{Key: cond.Field, Value: bson.D{{Key: "$exists", Value: false}}}}, nil
		case query.ComparisonOperatorIn, query.ComparisonOperatorNin:
			values, err := query.ListValues(cond.Value)
			if err != nil {
				return nil, err
			}
			return bson.D{{Key: cond.Field, Value: bson.D{{Key: comparisonOperators[cond.Operator], Value: bson.A(values)}}}}, nil
		}
		op, ok := comparisonOperators[cond.Operator]
		if !ok {
			return nil, fmt.Errorf("unsupported comparison operator: %s", cond.Operator)
		}
		return bson.D{{Key: cond.Field, Value: bson.D{{Key: op, Value: cond.Value}}}}, nil
	}

	members := make(bson.A, 0, len(filter.Group.Conditions))
	for i := range filter.Group.Conditions {
		member, err := translateFilter(&filter.Group.Conditions[i])
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return bson.D{{Key: logicalOperators[filter.Group.Operator], Value: members}}, nil
}

// normalizeDocument converts values to the BSON types the validator expects:
// integers to int64, numbers to float64 and RFC 3339 strings of date fields to
// time.Time. Go integers are widened to int64 even without a validator, since
// the encoder writes small ones as int32 and integer fields are declared long.
// Values that do not convert are left for the server to reject. The input
// document is not modified.
func normalizeDocument(doc schema.Document, s *schema.SchemaDefinition) schema.Document {
	out := utils.CloneDocument(doc)
	widenIntegers(out)
	if s != nil {
		normalizeFields(out, s.Fields)
	}
	return out
}

func widenIntegers(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case map[string]any:
		for key, item := range v {
			v[key] = widenIntegers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = widenIntegers(item)
		}
		return v
	}
	return value
}

func normalizeFields(doc map[string]any, fields map[string]*schema.FieldDefinition) {
	for name, field := range fields {
		value, ok := doc[name]
		if !ok || value == nil || field == nil {
			continue
		}
		doc[name] = normalizeValue(value, field)
	}
}

func normalizeValue(value any, field *schema.FieldDefinition) any {
	switch field.Type {
	case schema.FieldTypeInteger:
		if n, ok := numberOf(value); ok && n == float64(int64(n)) {
			return int64(n)
		}
	case schema.FieldTypeNumber:
		if n, ok := numberOf(value); ok {
			return n
		}
	case schema.FieldTypeDate:
		if s, ok := value.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
	case schema.FieldTypeObject:
		if nested, ok := value.(map[string]any); ok {
			normalizeFields(nested, field.Fields)
		}
	case schema.FieldTypeArray, schema.FieldTypeSet:
		if field.ItemsType == nil {
			return value
		}
		items, ok := value.([]any)
		if !ok {
			return value
		}
		item := &schema.FieldDefinition{Type: *field.ItemsType}
		for i := range items {
			if items[i] != nil {
				items[i] = normalizeValue(items[i], item)
			}
		}
	}
	return value
}

// fromBSON converts decoded BSON values to plain Go maps and slices.
func fromBSON(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = fromBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromBSON(item)
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	}
	return value
}

// numberOf reads any numeric value as a float64. Strings are not numbers here.
func numberOf(value any) (float64, bool) {
	if _, ok := value.(string); ok {
		return 0, false
	}
	return utils.ToFloat64(value)
}
