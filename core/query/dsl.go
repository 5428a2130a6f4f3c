// Package query defines a small filter language for narrowing document
// listings. Filters are evaluated in memory against a field lookup, which
// lets callers match on summary labels and content paths alike.
package query

import (
	"encoding/json"
	"fmt"
)

// LogicalOperator combines the members of a FilterGroup.
type LogicalOperator string

// Logical operators for combining filter conditions.
const (
	LogicalOperatorAnd LogicalOperator = "and"
	LogicalOperatorOr  LogicalOperator = "or"
	LogicalOperatorNot LogicalOperator = "not"
)

// ComparisonOperator defines the set of operators that can be used in a filter condition.
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq          ComparisonOperator = "eq"
	ComparisonOperatorNeq         ComparisonOperator = "neq"
	ComparisonOperatorLt          ComparisonOperator = "lt"
	ComparisonOperatorLte         ComparisonOperator = "lte"
	ComparisonOperatorGt          ComparisonOperator = "gt"
	ComparisonOperatorGte         ComparisonOperator = "gte"
	ComparisonOperatorIn          ComparisonOperator = "in"
	ComparisonOperatorNin         ComparisonOperator = "nin"
	ComparisonOperatorContains    ComparisonOperator = "contains"
	ComparisonOperatorNotContains ComparisonOperator = "ncontains"
	ComparisonOperatorStartsWith  ComparisonOperator = "startswith"
	ComparisonOperatorEndsWith    ComparisonOperator = "endswith"
	ComparisonOperatorExists      ComparisonOperator = "exists"
	ComparisonOperatorNotExists   ComparisonOperator = "nexists"
)

var standardOperators = map[ComparisonOperator]struct{}{
	ComparisonOperatorEq: {}, ComparisonOperatorNeq: {},
	ComparisonOperatorLt: {}, ComparisonOperatorLte: {},
	ComparisonOperatorGt: {}, ComparisonOperatorGte: {},
	ComparisonOperatorIn: {}, ComparisonOperatorNin: {},
	ComparisonOperatorContains: {}, ComparisonOperatorNotContains: {},
	ComparisonOperatorStartsWith: {}, ComparisonOperatorEndsWith: {},
	ComparisonOperatorExists: {}, ComparisonOperatorNotExists: {},
}

// IsStandard reports whether the operator is built in, as opposed to one
// registered on a Processor.
func (o ComparisonOperator) IsStandard() bool {
	_, ok := standardOperators[o]
	return ok
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

// QueryFilter is a union type that can represent either a single filter condition
// or a group of conditions.
type QueryFilter struct {
	Condition *FilterCondition `json:"condition,omitempty"`
	Group     *FilterGroup     `json:"group,omitempty"`
}

// ParseFilter decodes a JSON filter and checks its structure.
func ParseFilter(data []byte) (*QueryFilter, error) {
	var f QueryFilter
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	if err := f.Check(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Check verifies that every node holds exactly one of a condition or a group
// and that groups use a known logical operator. Comparison operators are not
// checked here since processors may register their own.
func (f *QueryFilter) Check() error {
	switch {
	case f.Condition != nil && f.Group != nil:
		return fmt.Errorf("filter node has both a condition and a group")
	case f.Condition != nil:
		if f.Condition.Field == "" {
			return fmt.Errorf("filter condition has no field")
		}
		if f.Condition.Operator == "" {
			return fmt.Errorf("filter condition on %q has no operator", f.Condition.Field)
		}
		return nil
	case f.Group != nil:
		switch f.Group.Operator {
		case LogicalOperatorAnd, LogicalOperatorOr, LogicalOperatorNot:
		default:
			return fmt.Errorf("unsupported logical operator: %s", f.Group.Operator)
		}
		for i := range f.Group.Conditions {
			if err := f.Group.Conditions[i].Check(); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("empty filter node")
}
