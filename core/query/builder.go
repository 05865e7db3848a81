package query

// QueryBuilder provides a fluent API for building QueryDSL structures.
type QueryBuilder struct {
	query QueryDSL
}

// NewQueryBuilder creates a new, empty query builder instance.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		query: QueryDSL{},
	}
}

// Build returns the constructed QueryDSL object.
func (qb *QueryBuilder) Build() QueryDSL {
	return qb.query
}

// Clone creates a copy of the builder. The filter tree is shared, since builders
// only ever replace it rather than mutate it.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	newBuilder := &QueryBuilder{query: qb.query}
	if qb.query.Pagination != nil {
		p := *qb.query.Pagination
		newBuilder.query.Pagination = &p
	}
	return newBuilder
}

// Reset clears all configurations from the query builder.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.query = QueryDSL{}
	return qb
}

// Limit sets the maximum number of documents returned by the query.
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	if qb.query.Pagination == nil {
		qb.query.Pagination = &PaginationOptions{}
	}
	qb.query.Pagination.Limit = limit
	return qb
}

// Where begins a condition on a single field. The finished condition replaces
// any filter already set on the builder.
func (qb *QueryBuilder) Where(field string) *FilterConditionBuilder {
	return &FilterConditionBuilder{parent: qb, field: field}
}

// WhereGroup begins a group of conditions combined with a logical operator.
func (qb *QueryBuilder) WhereGroup(operator LogicalOperator) *FilterGroupBuilder {
	return &FilterGroupBuilder{root: qb, operator: operator}
}

// FilterConditionBuilder is used to build a single top-level condition.
type FilterConditionBuilder struct {
	parent *QueryBuilder
	field  string
}

// Eq adds an equality condition to the query.
func (b *FilterConditionBuilder) Eq(value FilterValue) *QueryBuilder {
	return b.add(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition to the query.
func (b *FilterConditionBuilder) Neq(value FilterValue) *QueryBuilder {
	return b.add(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition to the query.
func (b *FilterConditionBuilder) Lt(value FilterValue) *QueryBuilder {
	return b.add(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition to the query.
func (b *FilterConditionBuilder) Lte(value FilterValue) *QueryBuilder {
	return b.add(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition to the query.
func (b *FilterConditionBuilder) Gt(value FilterValue) *QueryBuilder {
	return b.add(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition to the query.
func (b *FilterConditionBuilder) Gte(value FilterValue) *QueryBuilder {
	return b.add(ComparisonOperatorGte, value)
}

// In checks that the field's value is one of values.
func (b *FilterConditionBuilder) In(values ...FilterValue) *QueryBuilder {
	return b.add(ComparisonOperatorIn, values)
}

// Nin checks that the field's value is none of values.
func (b *FilterConditionBuilder) Nin(values ...FilterValue) *QueryBuilder {
	return b.add(ComparisonOperatorNin, values)
}

// Exists checks that the field is present.
func (b *FilterConditionBuilder) Exists() *QueryBuilder {
	return b.add(ComparisonOperatorExists, true)
}

// NotExists checks that the field is absent.
func (b *FilterConditionBuilder) NotExists() *QueryBuilder {
	return b.add(ComparisonOperatorNotExists, true)
}

func (b *FilterConditionBuilder) add(operator ComparisonOperator, value FilterValue) *QueryBuilder {
	filter := QueryFilter{Condition: newCondition(b.field, operator, value)}
	b.parent.query.Filters = &filter
	return b.parent
}

// FilterGroupBuilder collects the members of a filter group. Nested groups keep a
// reference to the group that opened them.
type FilterGroupBuilder struct {
	root       *QueryBuilder
	parent     *FilterGroupBuilder
	operator   LogicalOperator
	conditions []QueryFilter
}

// Where adds a condition to the group.
func (g *FilterGroupBuilder) Where(field string) *FilterConditionBuilderInGroup {
	return &FilterConditionBuilderInGroup{group: g, field: field}
}

// WhereGroup opens a nested group. Close it with EndGroup.
func (g *FilterGroupBuilder) WhereGroup(operator LogicalOperator) *FilterGroupBuilder {
	return &FilterGroupBuilder{root: g.root, parent: g, operator: operator}
}

// EndGroup closes a nested group and returns the group that opened it. On a
// top-level group it is a no-op.
func (g *FilterGroupBuilder) EndGroup() *FilterGroupBuilder {
	if g.parent == nil {
		return g
	}
	g.parent.conditions = append(g.parent.conditions, g.filter())
	return g.parent
}

// End closes this group and every enclosing one, sets the result as the query
// filter and returns to the query builder.
func (g *FilterGroupBuilder) End() *QueryBuilder {
	current := g
	for current.parent != nil {
		current = current.EndGroup()
	}
	filter := current.filter()
	current.root.query.Filters = &filter
	return current.root
}

func (g *FilterGroupBuilder) filter() QueryFilter {
	return QueryFilter{Group: &FilterGroup{
		Operator:   g.operator,
		Conditions: g.conditions,
	}}
}

// FilterConditionBuilderInGroup is used to build a condition within a group.
type FilterConditionBuilderInGroup struct {
	group *FilterGroupBuilder
	field string
}

// Eq adds an equality condition to the group.
func (b *FilterConditionBuilderInGroup) Eq(value FilterValue) *FilterGroupBuilder {
	return b.add(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition to the group.
func (b *FilterConditionBuilderInGroup) Neq(value FilterValue) *FilterGroupBuilder {
	return b.add(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition to the group.
func (b *FilterConditionBuilderInGroup) Lt(value FilterValue) *FilterGroupBuilder {
	return b.add(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition to the group.
func (b *FilterConditionBuilderInGroup) Lte(value FilterValue) *FilterGroupBuilder {
	return b.add(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition to the group.
func (b *FilterConditionBuilderInGroup) Gt(value FilterValue) *FilterGroupBuilder {
	return b.add(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition to the group.
func (b *FilterConditionBuilderInGroup) Gte(value FilterValue) *FilterGroupBuilder {
	return b.add(ComparisonOperatorGte, value)
}

// In adds an "in" condition to the group.
func (b *FilterConditionBuilderInGroup) In(values ...FilterValue) *FilterGroupBuilder {
	return b.add(ComparisonOperatorIn, values)
}

// Nin adds a "not in" condition to the group.
func (b *FilterConditionBuilderInGroup) Nin(values ...FilterValue) *FilterGroupBuilder {
	return b.add(ComparisonOperatorNin, values)
}

// Exists adds an exists condition to the group.
func (b *FilterConditionBuilderInGroup) Exists() *FilterGroupBuilder {
	return b.add(ComparisonOperatorExists, true)
}

// NotExists adds a not-exists condition to the group.
func (b *FilterConditionBuilderInGroup) NotExists() *FilterGroupBuilder {
	return b.add(ComparisonOperatorNotExists, true)
}

func (b *FilterConditionBuilderInGroup) add(operator ComparisonOperator, value FilterValue) *FilterGroupBuilder {
	b.group.conditions = append(b.group.conditions, QueryFilter{Condition: newCondition(b.field, operator, value)})
	return b.group
}

func newCondition(field string, operator ComparisonOperator, value FilterValue) *FilterCondition {
	return &FilterCondition{Field: field, Operator: operator, Value: value}
}

// MatchAll builds a conjunction of equality conditions, one per key, in the given
// order, limited to one document. A single key yields a bare condition.
func MatchAll(keys []string, values map[string]any) QueryDSL {
	if len(keys) == 1 {
		return NewQueryBuilder().Where(keys[0]).Eq(values[keys[0]]).Limit(1).Build()
	}
	group := NewQueryBuilder().WhereGroup(LogicalOperatorAnd)
	for _, key := range keys {
		group = group.Where(key).Eq(values[key])
	}
	return group.End().Limit(1).Build()
}
