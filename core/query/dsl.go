// Package query defines the small filter language used to look up documents by
// their natural key. Drivers translate a QueryDSL into their native filter form.
package query

import (
	"fmt"
	"reflect"
)

// LogicalOperator combines the members of a filter group.
type LogicalOperator string

// Logical operators for combining filter conditions.
const (
	LogicalOperatorAnd LogicalOperator = "and"
	LogicalOperatorOr  LogicalOperator = "or"
	LogicalOperatorNor LogicalOperator = "nor"
)

// IsValid reports whether the operator is one of the supported logical operators.
func (o LogicalOperator) IsValid() bool {
	switch o {
	case LogicalOperatorAnd, LogicalOperatorOr, LogicalOperatorNor:
		return true
	}
	return false
}

// ComparisonOperator defines the set of operators that can be used in a filter condition.
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq        ComparisonOperator = "eq"
	ComparisonOperatorNeq       ComparisonOperator = "neq"
	ComparisonOperatorLt        ComparisonOperator = "lt"
	ComparisonOperatorLte       ComparisonOperator = "lte"
	ComparisonOperatorGt        ComparisonOperator = "gt"
	ComparisonOperatorGte       ComparisonOperator = "gte"
	ComparisonOperatorIn        ComparisonOperator = "in"
	ComparisonOperatorNin       ComparisonOperator = "nin"
	ComparisonOperatorExists    ComparisonOperator = "exists"
	ComparisonOperatorNotExists ComparisonOperator = "nexists"
)

var standardComparisonOperators = []ComparisonOperator{
	ComparisonOperatorEq,
	ComparisonOperatorNeq,
	ComparisonOperatorLt,
	ComparisonOperatorLte,
	ComparisonOperatorGt,
	ComparisonOperatorGte,
	ComparisonOperatorIn,
	ComparisonOperatorNin,
	ComparisonOperatorExists,
	ComparisonOperatorNotExists,
}

// IsStandard reports whether every driver is required to understand the operator.
func (o ComparisonOperator) IsStandard() bool {
	for _, op := range standardComparisonOperators {
		if op == o {
			return true
		}
	}
	return false
}

// GetStandardComparisonOperators returns a copy of the supported operators.
func GetStandardComparisonOperators() []ComparisonOperator {
	ops := make([]ComparisonOperator, len(standardComparisonOperators))
	copy(ops, standardComparisonOperators)
	return ops
}

// FilterValue represents the value used in a filter condition.
type FilterValue any

// FilterCondition defines a single condition for filtering documents.
type FilterCondition struct {
	Field    string             `json:"field"`
	Operator ComparisonOperator `json:"operator"`
	Value    FilterValue        `json:"value,omitempty"`
}

// FilterGroup combines multiple filters using a logical operator.
type FilterGroup struct {
	Operator   LogicalOperator `json:"operator"`
	Conditions []QueryFilter   `json:"conditions"`
}

// QueryFilter is a union type that holds either a single condition or a group.
type QueryFilter struct {
	Condition *FilterCondition `json:"condition,omitempty"`
	Group     *FilterGroup     `json:"group,omitempty"`
}

// PaginationOptions bounds the number of documents a query returns.
type PaginationOptions struct {
	Limit int `json:"limit"`
}

// QueryDSL is the top-level structure that represents a complete query.
type QueryDSL struct {
	Filters    *QueryFilter       `json:"filters,omitempty"`
	Pagination *PaginationOptions `json:"pagination,omitempty"`
}

// Validate checks that the filter tree is well formed: each node holds exactly one
// of a condition or a group, fields are named, operators are known and list
// operators carry a list.
func (f *QueryFilter) Validate() error {
	if f == nil {
		return nil
	}
	switch {
	case f.Condition != nil && f.Group != nil:
		return fmt.Errorf("filter holds both a condition and a group")
	case f.Condition != nil:
		return f.Condition.validate()
	case f.Group != nil:
		if !f.Group.Operator.IsValid() {
			return fmt.Errorf("unsupported logical operator '%s'", f.Group.Operator)
		}
		if len(f.Group.Conditions) == 0 {
			return fmt.Errorf("filter group '%s' has no conditions", f.Group.Operator)
		}
		for i := range f.Group.Conditions {
			if err := f.Group.Conditions[i].Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("filter holds neither a condition nor a group")
}

func (c *FilterCondition) validate() error {
	if c.Field == "" {
		return fmt.Errorf("filter condition has an empty field")
	}
	if !c.Operator.IsStandard() {
		return fmt.Errorf("unsupported comparison operator '%s' on field '%s'", c.Operator, c.Field)
	}
	if c.Operator == ComparisonOperatorIn || c.Operator == ComparisonOperatorNin {
		if _, err := ListValues(c.Value); err != nil {
			return fmt.Errorf("field '%s': %w", c.Field, err)
		}
	}
	return nil
}

// ListValues flattens the value of an in/nin condition into a slice.
func ListValues(v FilterValue) ([]any, error) {
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("list operator requires a list value, got %T", v)
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, nil
}
