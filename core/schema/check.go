package schema

import "fmt"

// Check reports structural problems in the schema itself: a missing root,
// dangling refs, ref cycles that never reach a concrete type, empty enums and
// nullable entries naming unknown properties.
func (s *Schema) Check() []Issue {
	var issues []Issue
	add := func(code, path, format string, args ...any) {
		issues = append(issues, Issue{Code: code, Message: fmt.Sprintf(format, args...), Path: path})
	}

	if s == nil || len(s.Types) == 0 {
		add("INVALID_SCHEMA", "types", "schema defines no types")
		return issues
	}
	if _, ok := s.Types[s.RootType]; !ok {
		add("UNKNOWN_TYPE", "rootType", "root type '%s' is not defined", s.RootType)
	}

	var check func(def *TypeDefinition, path string)
	check = func(def *TypeDefinition, path string) {
		if def == nil {
			add("INVALID_SCHEMA", path, "type definition is missing")
			return
		}
		switch def.Kind {
		case KindStruct:
			for _, name := range def.Nullable {
				if _, ok := def.Properties[name]; !ok {
					add("INVALID_SCHEMA", path+".nullable", "nullable entry '%s' is not a property", name)
				}
			}
			for _, name := range sortedKeys(def.Properties) {
				check(def.Properties[name], path+".properties."+name)
			}
		case KindList:
			check(def.Items, path+".items")
		case KindEnum:
			if len(def.Members) == 0 {
				add("INVALID_SCHEMA", path+".members", "enum has no members")
			}
			seen := map[string]bool{}
			for i, m := range def.Members {
				key := fmt.Sprintf("%T:%v", m.Value, m.Value)
				if _, isNum := toFloat(m.Value); !isNum {
					if _, isStr := m.Value.(string); !isStr {
						if _, isBool := m.Value.(bool); !isBool {
							add("INVALID_SCHEMA", fmt.Sprintf("%s.members[%d]", path, i), "enum member '%s' must have a scalar value", m.Name)
						}
					}
				}
				if seen[key] {
					add("INVALID_SCHEMA", fmt.Sprintf("%s.members[%d]", path, i), "duplicate enum value %v", m.Value)
				}
				seen[key] = true
			}
		case KindString, KindNumber, KindBoolean:
			if def.Format != "" {
				if _, ok := formatsByKind[def.Kind][def.Format]; !ok {
					add("INVALID_SCHEMA", path+".format", "format '%s' is not supported for %s", def.Format, def.Kind)
				}
			}
		case KindRef:
			if _, ok := s.Types[def.Ref]; !ok {
				add("UNKNOWN_TYPE", path, "referenced type '%s' is not defined", def.Ref)
			} else if s.Resolve(def) == nil {
				add("CIRCULAR_REFERENCE", path, "reference '%s' never reaches a concrete type", def.Ref)
			}
		case KindStringLiteral, KindNumberLiteral, KindBooleanLiteral, KindJSONObject, KindFile:
		default:
			add("UNKNOWN_TYPE", path, "unknown type kind '%s'", def.Kind)
		}
	}

	for _, name := range sortedKeys(s.Types) {
		check(s.Types[name], "types."+name)
	}
	return issues
}
