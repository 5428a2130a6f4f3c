package query

// FilterBuilder provides a fluent API for building a QueryFilter. Top-level
// conditions are combined with AND.
type FilterBuilder struct {
	filters []QueryFilter
}

// NewFilterBuilder creates a new, empty filter builder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

// Build returns the constructed filter, or nil when nothing was added.
func (fb *FilterBuilder) Build() *QueryFilter {
	switch len(fb.filters) {
	case 0:
		return nil
	case 1:
		f := fb.filters[0]
		return &f
	}
	return &QueryFilter{Group: &FilterGroup{
		Operator:   LogicalOperatorAnd,
		Conditions: append([]QueryFilter(nil), fb.filters...),
	}}
}

// Reset clears all conditions from the builder.
func (fb *FilterBuilder) Reset() *FilterBuilder {
	fb.filters = nil
	return fb
}

// Where begins the construction of a filter condition for a specific field.
func (fb *FilterBuilder) Where(field string) *ConditionBuilder[*FilterBuilder] {
	return &ConditionBuilder[*FilterBuilder]{field: field, done: func(f QueryFilter) *FilterBuilder {
		fb.filters = append(fb.filters, f)
		return fb
	}}
}

// WhereGroup begins a group of conditions combined with operator.
func (fb *FilterBuilder) WhereGroup(operator LogicalOperator) *GroupBuilder {
	return &GroupBuilder{root: fb, operator: operator}
}

// GroupBuilder is used to build a group of filter conditions.
type GroupBuilder struct {
	root       *FilterBuilder
	parent     *GroupBuilder
	operator   LogicalOperator
	conditions []QueryFilter
}

// Where adds a new condition to the current group.
func (gb *GroupBuilder) Where(field string) *ConditionBuilder[*GroupBuilder] {
	return &ConditionBuilder[*GroupBuilder]{field: field, done: func(f QueryFilter) *GroupBuilder {
		gb.conditions = append(gb.conditions, f)
		return gb
	}}
}

// WhereGroup opens a nested group inside the current one.
func (gb *GroupBuilder) WhereGroup(operator LogicalOperator) *GroupBuilder {
	return &GroupBuilder{root: gb.root, parent: gb, operator: operator}
}

// Close finishes a nested group and returns the enclosing one. It is a
// no-op on an outermost group.
func (gb *GroupBuilder) Close() *GroupBuilder {
	if gb.parent == nil {
		return gb
	}
	gb.parent.conditions = append(gb.parent.conditions, gb.filter())
	return gb.parent
}

// End finishes the group, and any groups enclosing it, and returns to the
// filter builder.
func (gb *GroupBuilder) End() *FilterBuilder {
	g := gb
	for g.parent != nil {
		g = g.Close()
	}
	g.root.filters = append(g.root.filters, g.filter())
	return g.root
}

func (gb *GroupBuilder) filter() QueryFilter {
	return QueryFilter{Group: &FilterGroup{Operator: gb.operator, Conditions: gb.conditions}}
}

// ConditionBuilder completes a single condition on a field and hands control
// back to whichever builder started it.
type ConditionBuilder[T any] struct {
	field string
	done  func(QueryFilter) T
}

// Eq adds an equality condition.
func (cb *ConditionBuilder[T]) Eq(value FilterValue) T {
	return cb.add(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition.
func (cb *ConditionBuilder[T]) Neq(value FilterValue) T {
	return cb.add(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition.
func (cb *ConditionBuilder[T]) Lt(value FilterValue) T {
	return cb.add(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition.
func (cb *ConditionBuilder[T]) Lte(value FilterValue) T {
	return cb.add(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition.
func (cb *ConditionBuilder[T]) Gt(value FilterValue) T {
	return cb.add(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition.
func (cb *ConditionBuilder[T]) Gte(value FilterValue) T {
	return cb.add(ComparisonOperatorGte, value)
}

// In checks that the field's value is within a set of values.
func (cb *ConditionBuilder[T]) In(values ...FilterValue) T {
	return cb.add(ComparisonOperatorIn, values)
}

// Nin checks that the field's value is not within a set of values.
func (cb *ConditionBuilder[T]) Nin(values ...FilterValue) T {
	return cb.add(ComparisonOperatorNin, values)
}

// Contains matches a substring, case-insensitively, or a list element.
func (cb *ConditionBuilder[T]) Contains(value FilterValue) T {
	return cb.add(ComparisonOperatorContains, value)
}

// NotContains negates Contains.
func (cb *ConditionBuilder[T]) NotContains(value FilterValue) T {
	return cb.add(ComparisonOperatorNotContains, value)
}

// StartsWith adds a case-insensitive prefix condition.
func (cb *ConditionBuilder[T]) StartsWith(value FilterValue) T {
	return cb.add(ComparisonOperatorStartsWith, value)
}

// EndsWith adds a case-insensitive suffix condition.
func (cb *ConditionBuilder[T]) EndsWith(value FilterValue) T {
	return cb.add(ComparisonOperatorEndsWith, value)
}

// Exists checks that the field is present and not null.
func (cb *ConditionBuilder[T]) Exists() T {
	return cb.add(ComparisonOperatorExists, nil)
}

// NotExists checks that the field is absent or null.
func (cb *ConditionBuilder[T]) NotExists() T {
	return cb.add(ComparisonOperatorNotExists, nil)
}

// Custom uses an operator registered on a Processor.
func (cb *ConditionBuilder[T]) Custom(operator ComparisonOperator, value FilterValue) T {
	return cb.add(operator, value)
}

func (cb *ConditionBuilder[T]) add(operator ComparisonOperator, value FilterValue) T {
	return cb.done(QueryFilter{Condition: &FilterCondition{
		Field:    cb.field,
		Operator: operator,
		Value:    value,
	}})
}
