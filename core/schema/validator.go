package schema

import (
	"encoding/base64"
	"fmt"
	"math"
	"sort"

	"github.com/asaidimu/go-quire/core/ids"
)

// Validator walks content against a schema and accumulates issues. It never
// panics on malformed content; every problem becomes an Issue.
type Validator struct {
	schema *Schema
	issues []Issue
}

// NewValidator creates a validator for the given schema. The returned
// validator can be reused.
func NewValidator(s *Schema) *Validator {
	return &Validator{schema: s}
}

// Validate checks content against the schema and returns every issue found.
// An empty result means the content conforms.
func Validate(s *Schema, content any) []Issue {
	return NewValidator(s).Validate(content)
}

// Validate checks content against the validator's schema.
func (v *Validator) Validate(content any) []Issue {
	v.issues = make([]Issue, 0)

	if v.schema == nil || v.schema.Types == nil {
		v.addIssue("UNKNOWN_TYPE", "schema has no types", "")
		return v.issues
	}
	root, ok := v.schema.Types[v.schema.RootType]
	if !ok || root == nil {
		v.addIssue("UNKNOWN_TYPE", fmt.Sprintf("root type '%s' is not defined", v.schema.RootType), "")
		return v.issues
	}

	v.validateValue(content, root, "", 0)
	return v.issues
}

func (v *Validator) validateValue(value any, def *TypeDefinition, path string, hops int) {
	if def == nil {
		v.addIssue("UNKNOWN_TYPE", "type definition is missing", path)
		return
	}

	if def.Kind == KindRef {
		if hops > len(v.schema.Types) {
			v.addIssue("CIRCULAR_REFERENCE", fmt.Sprintf("reference '%s' never reaches a concrete type", def.Ref), path)
			return
		}
		target, ok := v.schema.Types[def.Ref]
		if !ok || target == nil {
			v.addIssue("UNKNOWN_TYPE", fmt.Sprintf("referenced type '%s' is not defined", def.Ref), path)
			return
		}
		v.validateValue(value, target, path, hops+1)
		return
	}

	if value == nil {
		v.addIssue("TYPE_MISMATCH", fmt.Sprintf("expected %s, got null", def.Kind), path)
		return
	}

	switch def.Kind {
	case KindStruct:
		v.validateStruct(value, def, path)
	case KindList:
		v.validateList(value, def, path)
	case KindEnum:
		v.validateEnum(value, def, path)
	case KindString:
		s, ok := value.(string)
		if !ok {
			v.typeMismatch("string", value, path)
			return
		}
		if def.Format != "" && !checkStringFormat(def.Format, s) {
			v.addIssue("FORMAT_MISMATCH", fmt.Sprintf("'%s' is not a valid %s", s, def.Format), path)
		}
	case KindNumber:
		n, ok := toFloat(value)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			v.typeMismatch("number", value, path)
			return
		}
		if def.Format == FormatInteger && n != math.Trunc(n) {
			v.addIssue("FORMAT_MISMATCH", fmt.Sprintf("%v is not an integer", value), path)
		}
	case KindBoolean:
		if _, ok := value.(bool); !ok {
			v.typeMismatch("boolean", value, path)
		}
	case KindStringLiteral, KindNumberLiteral, KindBooleanLiteral:
		if !literalEqual(def.Value, value) {
			v.addIssue("LITERAL_MISMATCH", fmt.Sprintf("expected literal %v, got %v", def.Value, value), path)
		}
	case KindJSONObject:
		if _, ok := value.(map[string]any); !ok {
			v.typeMismatch("object", value, path)
		}
	case KindFile:
		v.validateFile(value, path)
	default:
		v.addIssue("UNKNOWN_TYPE", fmt.Sprintf("unknown type kind '%s'", def.Kind), path)
	}
}

func (v *Validator) validateStruct(value any, def *TypeDefinition, path string) {
	obj, ok := value.(map[string]any)
	if !ok {
		v.typeMismatch("object", value, path)
		return
	}

	for _, name := range sortedKeys(def.Properties) {
		fieldPath := v.buildPath(path, name)
		fieldValue, exists := obj[name]
		if !exists || fieldValue == nil {
			if def.IsNullable(name) {
				continue
			}
			if !exists {
				v.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required field '%s' is missing", name), fieldPath)
			} else {
				v.addIssue("NULL_NOT_ALLOWED", fmt.Sprintf("Field '%s' may not be null", name), fieldPath)
			}
			continue
		}
		v.validateValue(fieldValue, def.Properties[name], fieldPath, 0)
	}

	for _, key := range sortedKeys(obj) {
		if _, known := def.Properties[key]; !known {
			v.addIssue("UNEXPECTED_FIELD", fmt.Sprintf("Unexpected field '%s' not defined in schema", key), v.buildPath(path, key))
		}
	}
}

func (v *Validator) validateList(value any, def *TypeDefinition, path string) {
	items, ok := value.([]any)
	if !ok {
		v.typeMismatch("list", value, path)
		return
	}
	for i, item := range items {
		v.validateValue(item, def.Items, fmt.Sprintf("%s[%d]", path, i), 0)
	}
}

func (v *Validator) validateEnum(value any, def *TypeDefinition, path string) {
	for _, m := range def.Members {
		if literalEqual(m.Value, value) {
			return
		}
	}
	allowed := make([]any, 0, len(def.Members))
	for _, m := range def.Members {
		allowed = append(allowed, m.Value)
	}
	v.addIssue("ENUM_VIOLATION", fmt.Sprintf("value %v is not one of %v", value, allowed), path)
}

// validateFile accepts either a persisted reference {id, name, mimeType} or a
// proto-file {name, mimeType, bytes} carrying base64 content.
func (v *Validator) validateFile(value any, path string) {
	node, ok := value.(map[string]any)
	if !ok {
		v.typeMismatch("file", value, path)
		return
	}
	if name, _ := node["name"].(string); name == "" {
		v.addIssue("INVALID_FILE", "file requires a non-empty 'name'", v.buildPath(path, "name"))
	}
	if _, ok := node["mimeType"].(string); !ok {
		v.addIssue("INVALID_FILE", "file requires a 'mimeType'", v.buildPath(path, "mimeType"))
	}

	id, hasID := node["id"]
	raw, hasBytes := node["bytes"]
	switch {
	case hasID:
		s, _ := id.(string)
		if !ids.Is(s, ids.File) {
			v.addIssue("INVALID_FILE", fmt.Sprintf("'%v' is not a file id", id), v.buildPath(path, "id"))
		}
	case hasBytes:
		s, ok := raw.(string)
		if !ok {
			v.addIssue("INVALID_FILE", "file bytes must be base64 text", v.buildPath(path, "bytes"))
		} else if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			v.addIssue("INVALID_FILE", "file bytes are not valid base64", v.buildPath(path, "bytes"))
		}
	default:
		v.addIssue("INVALID_FILE", "file requires either an 'id' or inline 'bytes'", path)
	}
}

func (v *Validator) typeMismatch(expected string, value any, path string) {
	v.addIssue("TYPE_MISMATCH", fmt.Sprintf("expected %s, got %s", expected, describe(value)), path)
}

// buildPath constructs a dot-separated path string for error reporting.
func (v *Validator) buildPath(basePath, fieldName string) string {
	if basePath == "" {
		return fieldName
	}
	return basePath + "." + fieldName
}

func (v *Validator) addIssue(code, message, path string) {
	v.issues = append(v.issues, Issue{Code: code, Message: message, Path: path})
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	}
	if _, ok := toFloat(value); ok {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}

// toFloat converts any Go numeric type to float64.
func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// literalEqual compares scalars, treating all numeric types alike.
func literalEqual(want, got any) bool {
	if wn, ok := toFloat(want); ok {
		gn, ok := toFloat(got)
		return ok && wn == gn
	}
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		return ok && w == g
	case bool:
		g, ok := got.(bool)
		return ok && w == g
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
