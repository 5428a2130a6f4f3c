package query

import (
	"fmt"
	"strconv"
	"strings"
)

// ToFloat64 is a utility function that converts a value of various numeric types
// to a float64. It returns the converted float64 and a boolean indicating whether
// the conversion was successful.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// compare orders two values numerically when both convert to numbers and
// lexically otherwise.
func compare(a, b any) int {
	if af, ok := ToFloat64(a); ok {
		if bf, ok := ToFloat64(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return compare(a, b) == 0
}

// toList widens a condition value into a slice for in/nin.
func toList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []FilterValue:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}
