package query

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/utils"
)

// Document is the in-memory form a filter is evaluated against.
type Document = map[string]any

// Match evaluates a filter against an in-memory document. A nil filter matches every
// document. Fields are dotted paths into nested objects. Ordering comparisons are
// defined for numbers, strings and times; comparing other types is an error.
func Match(filter *QueryFilter, doc Document) (bool, error) {
	if filter == nil {
		return true, nil
	}
	if filter.Condition != nil {
		return matchCondition(filter.Condition, doc)
	}
	if filter.Group == nil {
		return false, fmt.Errorf("empty or invalid filter structure")
	}

	switch filter.Group.Operator {
	case LogicalOperatorAnd:
		for i := range filter.Group.Conditions {
			passes, err := Match(&filter.Group.Conditions[i], doc)
			if err != nil || !passes {
				return false, err
			}
		}
		return true, nil
	case LogicalOperatorOr, LogicalOperatorNor:
		matched := false
		for i := range filter.Group.Conditions {
			passes, err := Match(&filter.Group.Conditions[i], doc)
			if err != nil {
				return false, err
			}
			if passes {
				matched = true
				break
			}
		}
		if filter.Group.Operator == LogicalOperatorNor {
			return !matched, nil
		}
		return matched, nil
	}
	return false, fmt.Errorf("unsupported logical operator '%s'", filter.Group.Operator)
}

func matchCondition(condition *FilterCondition, doc Document) (bool, error) {
	value, exists := utils.LookupPath(doc, condition.Field)

	switch condition.Operator {
	case ComparisonOperatorExists:
		return exists, nil
	case ComparisonOperatorNotExists:
		return !exists, nil
	case ComparisonOperatorEq:
		return exists && equalValues(value, condition.Value), nil
	case ComparisonOperatorNeq:
		return !exists || !equalValues(value, condition.Value), nil
	case ComparisonOperatorIn, ComparisonOperatorNin:
		candidates, err := ListValues(condition.Value)
		if err != nil {
			return false, err
		}
		found := false
		for _, candidate := range candidates {
			if exists && equalValues(value, candidate) {
				found = true
				break
			}
		}
		if condition.Operator == ComparisonOperatorNin {
			return !found, nil
		}
		return found, nil
	case ComparisonOperatorLt, ComparisonOperatorLte, ComparisonOperatorGt, ComparisonOperatorGte:
		if !exists {
			return false, nil
		}
		cmp, err := compareValues(value, condition.Value)
		if err != nil {
			return false, fmt.Errorf("field '%s': %w", condition.Field, err)
		}
		switch condition.Operator {
		case ComparisonOperatorLt:
			return cmp < 0, nil
		case ComparisonOperatorLte:
			return cmp <= 0, nil
		case ComparisonOperatorGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	}
	return false, fmt.Errorf("unsupported comparison operator '%s'", condition.Operator)
}

// equalValues compares numbers by value so that an int seed key matches the
// float64 a JSON driver decodes.
func equalValues(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		fa, _ := utils.ToFloat64(a)
		fb, _ := utils.ToFloat64(b)
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) (int, error) {
	if isNumber(a) && isNumber(b) {
		fa, _ := utils.ToFloat64(a)
		fb, _ := utils.ToFloat64(b)
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		}
		return 0, nil
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
