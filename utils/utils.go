package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Decode converts a JSON-shaped value, typically a map[string]any taken
// from a tool call or request, into a new instance of T.
//
// T must be a struct or a pointer to a struct. Values that are already
// json.RawMessage are embedded as they are.
//
// Example:
//
//	f, err := Decode[query.QueryFilter](map[string]any{
//		"condition": map[string]any{"field": "amount", "operator": "gt", "value": 10},
//	})
func Decode[T any](input any) (T, error) {
	var zero T

	if input == nil {
		return zero, fmt.Errorf("Decode: input cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("Decode: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	data, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("Decode: failed to marshal input: %w", err)
	}

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("Decode: failed to unmarshal into %s: %w", typ.Name(), err)
	}
	return result, nil
}
