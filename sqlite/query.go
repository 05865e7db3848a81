package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/query"
)

// filterTranslator turns a query filter into a WHERE clause over the document
// column, collecting bound parameters as it goes.
type filterTranslator struct {
	params []any
}

// buildWhere translates a filter into SQL. A nil filter yields an empty clause.
func buildWhere(filter *query.QueryFilter) (string, []any, error) {
	if filter == nil {
		return "", nil, nil
	}
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}
	t := &filterTranslator{}
	clause, err := t.translate(filter)
	if err != nil {
		return "", nil, err
	}
	return clause, t.params, nil
}

// buildSelectSQL generates the lookup statement of FindDocument.
func buildSelectSQL(table string, dsl *query.QueryDSL) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`SELECT "id", "%s" FROM %s`, documentColumn, quoteIdentifier(table)))

	var params []any
	if dsl != nil {
		where, whereParams, err := buildWhere(dsl.Filters)
		if err != nil {
			return "", nil, fmt.Errorf("error building WHERE clause: %w", err)
		}
		if where != "" {
			sb.WriteString(" WHERE " + where)
			params = whereParams
		}
	}

	sb.WriteString(` ORDER BY "id"`)
	if dsl != nil && dsl.Pagination != nil && dsl.Pagination.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", dsl.Pagination.Limit))
	}
	return sb.String() + ";", params, nil
}

func (t *filterTranslator) translate(filter *query.QueryFilter) (string, error) {
	if filter.Condition != nil {
		return t.condition(filter.Condition)
	}

	clauses := make([]string, 0, len(filter.Group.Conditions))
	for i := range filter.Group.Conditions {
		clause, err := t.translate(&filter.Group.Conditions[i])
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}

	switch filter.Group.Operator {
	case query.LogicalOperatorAnd:
		return "(" + strings.Join(clauses, " AND ") + ")", nil
	case query.LogicalOperatorOr:
		return "(" + strings.Join(clauses, " OR ") + ")", nil
	case query.LogicalOperatorNor:
		return "NOT (" + strings.Join(clauses, " OR ") + ")", nil
	}
	return "", fmt.Errorf("unsupported logical operator '%s'", filter.Group.Operator)
}

func (t *filterTranslator) condition(cond *query.FilterCondition) (string, error) {
	accessor := fieldAccessor(cond.Field)

	switch cond.Operator {
	case query.ComparisonOperatorExists:
		return fieldType(cond.Field) + " IS NOT NULL", nil
	case query.ComparisonOperatorNotExists:
		return fieldType(cond.Field) + " IS NULL", nil
	case query.ComparisonOperatorEq:
		if cond.Value == nil {
			return fieldType(cond.Field) + " = 'null'", nil
		}
		return accessor + " = " + t.bind(cond.Value), nil
	case query.ComparisonOperatorNeq:
		return fmt.Sprintf("(%s IS NULL OR %s != %s)", fieldType(cond.Field), accessor, t.bind(cond.Value)), nil
	case query.ComparisonOperatorLt:
		return accessor + " < " + t.bind(cond.Value), nil
	case query.ComparisonOperatorLte:
		return accessor + " <= " + t.bind(cond.Value), nil
	case query.ComparisonOperatorGt:
		return accessor + " > " + t.bind(cond.Value), nil
	case query.ComparisonOperatorGte:
		return accessor + " >= " + t.bind(cond.Value), nil
	case query.ComparisonOperatorIn, query.ComparisonOperatorNin:
		values, err := query.ListValues(cond.Value)
		if err != nil {
			return "", err
		}
		if len(values) == 0 {
			if cond.Operator == query.ComparisonOperatorIn {
				return "1=0", nil // IN empty list is always false
			}
			return "1=1", nil // NOT IN empty list is always true
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = t.bind(v)
		}
		list := strings.Join(placeholders, ", ")
		if cond.Operator == query.ComparisonOperatorIn {
			return fmt.Sprintf("%s IN (%s)", accessor, list), nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", fieldType(cond.Field), accessor, list), nil
	}
	return "", fmt.Errorf("unsupported comparison operator for direct SQL: %s", cond.Operator)
}

// bind appends a parameter and returns its placeholder. Values are converted to
// what json_extract yields for the same stored value.
func (t *filterTranslator) bind(value any) string {
	t.params = append(t.params, prepareValue(value))
	return "?"
}

func prepareValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		if v {
			return 1
		}
		return 0
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	}
	// Objects and arrays come back from json_extract as their JSON text.
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
