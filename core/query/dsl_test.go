package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComparisonOperator_IsStandard(t *testing.T) {
	tests := []struct {
		operator ComparisonOperator
		expected bool
	}{
		{ComparisonOperatorEq, true},
		{ComparisonOperatorNeq, true},
		{ComparisonOperatorLt, true},
		{ComparisonOperatorLte, true},
		{ComparisonOperatorGt, true},
		{ComparisonOperatorGte, true},
		{ComparisonOperatorIn, true},
		{ComparisonOperatorNin, true},
		{ComparisonOperatorExists, true},
		{ComparisonOperatorNotExists, true},
		{"contains", false},
		{"custom_op", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.operator), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.operator.IsStandard())
		})
	}
}

func TestGetStandardComparisonOperators(t *testing.T) {
	operators := GetStandardComparisonOperators()
	assert.Len(t, operators, 10)

	operators[0] = "mutated"
	assert.Equal(t, ComparisonOperatorEq, GetStandardComparisonOperators()[0])
}

func TestQueryFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  *QueryFilter
		wantErr string
	}{
		{name: "nil filter", filter: nil},
		{
			name:   "simple condition",
			filter: &QueryFilter{Condition: &FilterCondition{Field: "a", Operator: ComparisonOperatorEq, Value: 1}},
		},
		{
			name:    "empty node",
			filter:  &QueryFilter{},
			wantErr: "neither",
		},
		{
			name: "both set",
			filter: &QueryFilter{
				Condition: &FilterCondition{Field: "a", Operator: ComparisonOperatorEq},
				Group:     &FilterGroup{Operator: LogicalOperatorAnd},
			},
			wantErr: "both",
		},
		{
			name:    "empty field",
			filter:  &QueryFilter{Condition: &FilterCondition{Operator: ComparisonOperatorEq}},
			wantErr: "empty field",
		},
		{
			name:    "unknown operator",
			filter:  &QueryFilter{Condition: &FilterCondition{Field: "a", Operator: "like"}},
			wantErr: "unsupported comparison operator",
		},
		{
			name:    "in without list",
			filter:  &QueryFilter{Condition: &FilterCondition{Field: "a", Operator: ComparisonOperatorIn, Value: "x"}},
			wantErr: "list value",
		},
		{
			name:    "empty group",
			filter:  &QueryFilter{Group: &FilterGroup{Operator: LogicalOperatorOr}},
			wantErr: "no conditions",
		},
		{
			name: "unknown logical operator",
			filter: &QueryFilter{Group: &FilterGroup{Operator: "xor", Conditions: []QueryFilter{
				{Condition: &FilterCondition{Field: "a", Operator: ComparisonOperatorEq}},
			}}},
			wantErr: "unsupported logical operator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestQueryDSL_JSON(t *testing.T) {
	dsl := NewQueryBuilder().Where("userId").Eq(1).Limit(1).Build()
	data, err := json.Marshal(dsl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"filters":{"condition":{"field":"userId","operator":"eq","value":1}},"pagination":{"limit":1}}`, string(data))
}
