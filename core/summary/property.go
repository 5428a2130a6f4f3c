// Package summary parses the attributed property names a summary getter
// returns and orders the resulting values for display.
//
// A property name may carry a prefix of display attributes:
//
//	{position:1,sortable:true,default-sort:desc}Amount
//
// Without a prefix the property gets DefaultPosition, is not sortable and has
// no default sort. A malformed prefix falls back to those defaults and keeps
// the raw name as its label.
package summary

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultPosition places unattributed properties after attributed ones.
const DefaultPosition = 999

// SortDirection is the default sort a property requests.
type SortDirection string

const (
	SortNone SortDirection = ""
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Property is a parsed summary property name.
type Property struct {
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	Position    int           `json:"position"`
	Sortable    bool          `json:"sortable"`
	DefaultSort SortDirection `json:"defaultSort,omitempty"`
}

// ParseProperty parses an attributed property name.
func ParseProperty(raw string) Property {
	p := Property{Name: raw, Label: raw, Position: DefaultPosition}
	if !strings.HasPrefix(raw, "{") {
		return p
	}
	end := strings.IndexByte(raw, '}')
	if end < 0 {
		return p
	}

	parsed, err := parseAttributes(raw[1:end])
	if err != nil {
		return p
	}
	parsed.Name = raw
	parsed.Label = strings.TrimSpace(raw[end+1:])
	return parsed
}

func parseAttributes(body string) (Property, error) {
	p := Property{Position: DefaultPosition}
	if strings.TrimSpace(body) == "" {
		return p, nil
	}

	seen := map[string]bool{}
	for _, attr := range strings.Split(body, ",") {
		key, value, ok := strings.Cut(attr, ":")
		if !ok {
			return p, fmt.Errorf("attribute %q has no value", attr)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if seen[key] {
			return p, fmt.Errorf("attribute %q repeated", key)
		}
		seen[key] = true

		switch key {
		case "position":
			n, err := strconv.Atoi(value)
			if err != nil {
				return p, fmt.Errorf("position %q: %w", value, err)
			}
			p.Position = n
		case "sortable":
			switch value {
			case "true":
				p.Sortable = true
			case "false":
				p.Sortable = false
			default:
				return p, fmt.Errorf("sortable %q is not true or false", value)
			}
		case "default-sort":
			switch SortDirection(value) {
			case SortAsc, SortDesc:
				p.DefaultSort = SortDirection(value)
			default:
				return p, fmt.Errorf("unknown sort direction %q", value)
			}
		default:
			return p, fmt.Errorf("unknown attribute %q", key)
		}
	}
	return p, nil
}

// Value is one labelled scalar of a computed summary.
type Value struct {
	Property
	Value any `json:"value"`
}

// Summary is the derived, display-only digest of a document's content. When
// the getter failed, Error holds the captured failure and Values is empty.
type Summary struct {
	Values []Value `json:"values"`
	Error  string  `json:"error,omitempty"`
}

// Build turns a getter result into an ordered summary. Values must be
// scalars (string, number, boolean or null).
func Build(raw map[string]any) (Summary, error) {
	values := make([]Value, 0, len(raw))
	for name, v := range raw {
		switch v.(type) {
		case nil, string, bool, float64, float32, int, int64:
		default:
			return Summary{}, fmt.Errorf("summary property %q is not a scalar", name)
		}
		values = append(values, Value{Property: ParseProperty(name), Value: v})
	}
	sort.SliceStable(values, func(i, j int) bool {
		if values[i].Position != values[j].Position {
			return values[i].Position < values[j].Position
		}
		return values[i].Label < values[j].Label
	})
	return Summary{Values: values}, nil
}

// Failed records a summary computation error.
func Failed(err error) Summary {
	return Summary{Values: []Value{}, Error: err.Error()}
}

// Lookup returns the value labelled label.
func (s Summary) Lookup(label string) (Value, bool) {
	for _, v := range s.Values {
		if v.Label == label {
			return v, true
		}
	}
	return Value{}, false
}

// DefaultSort returns the first property, by position, that requests a
// default sort.
func (s Summary) DefaultSort() (Value, bool) {
	for _, v := range s.Values {
		if v.Sortable && v.DefaultSort != SortNone {
			return v, true
		}
	}
	return Value{}, false
}

// Text joins the summary values for display and indexing.
func (s Summary) Text() string {
	parts := make([]string, 0, len(s.Values))
	for _, v := range s.Values {
		if v.Value == nil {
			continue
		}
		parts = append(parts, fmt.Sprint(v.Value))
	}
	return strings.Join(parts, " · ")
}

// Compare orders two summary values of the same property. Numbers compare
// numerically, strings lexically, and nulls sort first.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
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

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
