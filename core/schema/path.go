package schema

import (
	"strconv"
	"strings"
)

// splitPath breaks a path into segments. "a.0.b" and "a[0].b" both yield
// [a 0 b]. It reports false for malformed bracket syntax.
func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, true
	}
	var segments []string
	for _, part := range strings.Split(path, ".") {
		name, rest, hasIndex := strings.Cut(part, "[")
		if name == "" && !hasIndex {
			return nil, false
		}
		if name != "" {
			segments = append(segments, name)
		}
		for hasIndex {
			idx, after, ok := strings.Cut(rest, "]")
			if !ok || idx == "" {
				return nil, false
			}
			segments = append(segments, idx)
			if after == "" {
				break
			}
			if !strings.HasPrefix(after, "[") {
				return nil, false
			}
			rest = after[1:]
		}
	}
	return segments, true
}

func parseIndex(seg string) (int, bool) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// ResolveAtPath returns the type definition found at path, with refs
// resolved. The empty path yields the root type. Any segment that cannot be
// resolved yields nil.
func ResolveAtPath(s *Schema, path string) *TypeDefinition {
	if s == nil {
		return nil
	}
	segments, ok := splitPath(path)
	if !ok {
		return nil
	}

	cur := s.Root()
	for _, seg := range segments {
		if cur == nil {
			return nil
		}
		switch cur.Kind {
		case KindStruct:
			next, ok := cur.Properties[seg]
			if !ok {
				return nil
			}
			cur = s.Resolve(next)
		case KindList:
			if _, ok := parseIndex(seg); !ok {
				return nil
			}
			cur = s.Resolve(cur.Items)
		default:
			return nil
		}
	}
	return cur
}

// ValueAtPath returns the value found at path inside content.
func ValueAtPath(content any, path string) (any, bool) {
	segments, ok := splitPath(path)
	if !ok {
		return nil, false
	}

	cur := content
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, ok := parseIndex(seg)
			if !ok || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
