package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// Lookup resolves a field name to a value. found is false when the field
// does not exist on the item being matched.
type Lookup func(field string) (value any, found bool)

// PredicateFunction performs custom filtering logic for a registered
// operator. value and found come from the item's Lookup.
type PredicateFunction func(value any, found bool, arg FilterValue) (bool, error)

// DataProcessor evaluates filters against in-memory items.
type DataProcessor struct {
	filterFunctions map[ComparisonOperator]PredicateFunction
	mu              sync.RWMutex
	logger          *zap.Logger
}

// NewDataProcessor creates a new DataProcessor instance.
func NewDataProcessor(logger *zap.Logger) *DataProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataProcessor{
		filterFunctions: make(map[ComparisonOperator]PredicateFunction),
		logger:          logger,
	}
}

// RegisterFilterFunction registers a Go function for a custom operator.
// Standard operators cannot be overridden.
func (p *DataProcessor) RegisterFilterFunction(operator ComparisonOperator, fn PredicateFunction) error {
	if operator.IsStandard() {
		return fmt.Errorf("operator %s is built in", operator)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filterFunctions[operator] = fn
	p.logger.Debug("Registered filter function", zap.String("operator", string(operator)))
	return nil
}

// Match reports whether the item behind lookup satisfies filter. A nil
// filter matches everything.
func (p *DataProcessor) Match(ctx context.Context, filter *QueryFilter, lookup Lookup) (bool, error) {
	if filter == nil {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.evaluate(filter, lookup)
}

// Apply keeps the items that match filter, preserving their order.
func Apply[T any](ctx context.Context, p *DataProcessor, filter *QueryFilter, items []T, lookup func(T) Lookup) ([]T, error) {
	if filter == nil {
		return items, nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		ok, err := p.Match(ctx, filter, lookup(item))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	p.logger.Debug("Filter applied", zap.Int("in", len(items)), zap.Int("out", len(out)))
	return out, nil
}

func (p *DataProcessor) evaluate(filter *QueryFilter, lookup Lookup) (bool, error) {
	if filter.Condition != nil {
		return p.evaluateCondition(filter.Condition, lookup)
	}
	if filter.Group == nil {
		return false, fmt.Errorf("empty or invalid filter structure")
	}

	switch filter.Group.Operator {
	case LogicalOperatorAnd:
		for i := range filter.Group.Conditions {
			passes, err := p.evaluate(&filter.Group.Conditions[i], lookup)
			if err != nil || !passes {
				return false, err
			}
		}
		return true, nil
	case LogicalOperatorOr:
		for i := range filter.Group.Conditions {
			passes, err := p.evaluate(&filter.Group.Conditions[i], lookup)
			if err != nil {
				return false, err
			}
			if passes {
				return true, nil
			}
		}
		return false, nil
	case LogicalOperatorNot:
		for i := range filter.Group.Conditions {
			passes, err := p.evaluate(&filter.Group.Conditions[i], lookup)
			if err != nil {
				return false, err
			}
			if passes {
				return false, nil
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unsupported logical operator: %s", filter.Group.Operator)
}

func (p *DataProcessor) evaluateCondition(c *FilterCondition, lookup Lookup) (bool, error) {
	value, found := lookup(c.Field)

	if !c.Operator.IsStandard() {
		fn, ok := p.filterFunctions[c.Operator]
		if !ok {
			return false, fmt.Errorf("unregistered filter function for operator: %s", c.Operator)
		}
		return fn(value, found, c.Value)
	}

	present := found && value != nil
	switch c.Operator {
	case ComparisonOperatorExists:
		return present, nil
	case ComparisonOperatorNotExists:
		return !present, nil
	case ComparisonOperatorNeq:
		return !present || !equal(value, c.Value), nil
	case ComparisonOperatorNin:
		return !present || !p.inList(value, c.Value), nil
	case ComparisonOperatorNotContains:
		return !present || !p.contains(value, c.Value), nil
	}

	if !present {
		return false, nil
	}
	switch c.Operator {
	case ComparisonOperatorEq:
		return equal(value, c.Value), nil
	case ComparisonOperatorLt:
		return c.Value != nil && compare(value, c.Value) < 0, nil
	case ComparisonOperatorLte:
		return c.Value != nil && compare(value, c.Value) <= 0, nil
	case ComparisonOperatorGt:
		return c.Value != nil && compare(value, c.Value) > 0, nil
	case ComparisonOperatorGte:
		return c.Value != nil && compare(value, c.Value) >= 0, nil
	case ComparisonOperatorIn:
		return p.inList(value, c.Value), nil
	case ComparisonOperatorContains:
		return p.contains(value, c.Value), nil
	case ComparisonOperatorStartsWith:
		return strings.HasPrefix(p.text(value), p.text(c.Value)), nil
	case ComparisonOperatorEndsWith:
		return strings.HasSuffix(p.text(value), p.text(c.Value)), nil
	}
	return false, fmt.Errorf("unsupported comparison operator: %s", c.Operator)
}

func (p *DataProcessor) inList(value, list any) bool {
	for _, candidate := range toList(list) {
		if equal(value, candidate) {
			return true
		}
	}
	return false
}

// contains matches list elements exactly and strings by folded substring.
func (p *DataProcessor) contains(value, needle any) bool {
	if l, ok := value.([]any); ok {
		for _, el := range l {
			if equal(el, needle) {
				return true
			}
		}
		return false
	}
	return strings.Contains(p.text(value), p.text(needle))
}

// Casers are stateful, so each call folds with its own.
func (p *DataProcessor) text(v any) string {
	if v == nil {
		return ""
	}
	return cases.Fold().String(fmt.Sprint(v))
}
