// Package schema defines the type model collections are described with and the
// tooling that walks content against it: validation, path resolution, file
// node extraction and text derivation for search.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the variants of a TypeDefinition.
type Kind string

const (
	KindStruct         Kind = "struct"
	KindList           Kind = "list"
	KindEnum           Kind = "enum"
	KindString         Kind = "string"
	KindNumber         Kind = "number"
	KindBoolean        Kind = "boolean"
	KindStringLiteral  Kind = "string_literal"
	KindNumberLiteral  Kind = "number_literal"
	KindBooleanLiteral Kind = "boolean_literal"
	KindJSONObject     Kind = "json_object"
	KindFile           Kind = "file"
	KindRef            Kind = "ref"
)

// Format refines a primitive type.
type Format string

const (
	FormatDate     Format = "date"     // calendar date, 2006-01-02
	FormatTime     Format = "time"     // wall-clock time, 15:04 or 15:04:05
	FormatDateTime Format = "datetime" // date and time, zone optional
	FormatInstant  Format = "instant"  // exact instant, zone required
	FormatEmail    Format = "email"
	FormatURI      Format = "uri"
	FormatUUID     Format = "uuid"
	FormatInteger  Format = "integer"
)

var formatsByKind = map[Kind]map[Format]struct{}{
	KindString: {
		FormatDate: {}, FormatTime: {}, FormatDateTime: {}, FormatInstant: {},
		FormatEmail: {}, FormatURI: {}, FormatUUID: {},
	},
	KindNumber:  {FormatInteger: {}},
	KindBoolean: {},
}

// EnumMember is a named literal value an enum accepts.
type EnumMember struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// TypeDefinition is a closed tagged variant. Only the fields belonging to
// Kind are meaningful; JSON decoding rejects the others.
type TypeDefinition struct {
	Kind        Kind
	Description string

	// struct
	Properties map[string]*TypeDefinition
	Nullable   []string

	// list
	Items *TypeDefinition

	// enum
	Members []EnumMember

	// string, number, boolean
	Format Format

	// string_literal, number_literal, boolean_literal
	Value any

	// json_object
	Tag string

	// ref
	Ref string
}

// allowedFields lists, per kind, the JSON keys beside "type" and "description".
var allowedFields = map[Kind][]string{
	KindStruct:         {"properties", "nullable"},
	KindList:           {"items"},
	KindEnum:           {"members"},
	KindString:         {"format"},
	KindNumber:         {"format"},
	KindBoolean:        {"format"},
	KindStringLiteral:  {"value"},
	KindNumberLiteral:  {"value"},
	KindBooleanLiteral: {"value"},
	KindJSONObject:     {"tag"},
	KindFile:           {},
	KindRef:            {"name"},
}

// UnmarshalJSON decodes a definition and enforces that only the fields of its
// declared kind are present.
func (t *TypeDefinition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var kind Kind
	kindRaw, ok := raw["type"]
	if !ok {
		return fmt.Errorf("type definition is missing 'type'")
	}
	if err := json.Unmarshal(kindRaw, &kind); err != nil {
		return fmt.Errorf("invalid 'type': %w", err)
	}
	allowed, ok := allowedFields[kind]
	if !ok {
		return fmt.Errorf("unknown type kind %q", kind)
	}

	permitted := map[string]bool{"type": true, "description": true}
	for _, f := range allowed {
		permitted[f] = true
	}
	for key := range raw {
		if !permitted[key] {
			return fmt.Errorf("field %q is not allowed on a %s type (mutual exclusivity violation)", key, kind)
		}
	}

	*t = TypeDefinition{Kind: kind}
	if d, ok := raw["description"]; ok {
		if err := json.Unmarshal(d, &t.Description); err != nil {
			return fmt.Errorf("invalid 'description': %w", err)
		}
	}

	switch kind {
	case KindStruct:
		t.Properties = map[string]*TypeDefinition{}
		if p, ok := raw["properties"]; ok {
			if err := json.Unmarshal(p, &t.Properties); err != nil {
				return fmt.Errorf("invalid struct properties: %w", err)
			}
		}
		if n, ok := raw["nullable"]; ok {
			if err := json.Unmarshal(n, &t.Nullable); err != nil {
				return fmt.Errorf("invalid nullable set: %w", err)
			}
		}
	case KindList:
		items, ok := raw["items"]
		if !ok {
			return fmt.Errorf("list type requires 'items'")
		}
		if err := json.Unmarshal(items, &t.Items); err != nil {
			return fmt.Errorf("invalid list items: %w", err)
		}
	case KindEnum:
		members, ok := raw["members"]
		if !ok {
			return fmt.Errorf("enum type requires 'members'")
		}
		if err := json.Unmarshal(members, &t.Members); err != nil {
			return fmt.Errorf("invalid enum members: %w", err)
		}
	case KindString, KindNumber, KindBoolean:
		if f, ok := raw["format"]; ok {
			if err := json.Unmarshal(f, &t.Format); err != nil {
				return fmt.Errorf("invalid format: %w", err)
			}
			if _, ok := formatsByKind[kind][t.Format]; !ok {
				return fmt.Errorf("format %q is not supported for %s", t.Format, kind)
			}
		}
	case KindStringLiteral, KindNumberLiteral, KindBooleanLiteral:
		v, ok := raw["value"]
		if !ok {
			return fmt.Errorf("%s type requires 'value'", kind)
		}
		if err := t.decodeLiteral(v); err != nil {
			return err
		}
	case KindJSONObject:
		if tag, ok := raw["tag"]; ok {
			if err := json.Unmarshal(tag, &t.Tag); err != nil {
				return fmt.Errorf("invalid json_object tag: %w", err)
			}
		}
	case KindRef:
		name, ok := raw["name"]
		if !ok {
			return fmt.Errorf("ref type requires 'name'")
		}
		if err := json.Unmarshal(name, &t.Ref); err != nil {
			return fmt.Errorf("invalid ref name: %w", err)
		}
	}
	return nil
}

func (t *TypeDefinition) decodeLiteral(raw json.RawMessage) error {
	switch t.Kind {
	case KindStringLiteral:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("string_literal value must be a string: %w", err)
		}
		t.Value = s
	case KindNumberLiteral:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("number_literal value must be a number: %w", err)
		}
		t.Value = n
	case KindBooleanLiteral:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("boolean_literal value must be a boolean: %w", err)
		}
		t.Value = b
	}
	return nil
}

// MarshalJSON writes only the fields that belong to the definition's kind.
func (t TypeDefinition) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": t.Kind}
	if t.Description != "" {
		m["description"] = t.Description
	}

	switch t.Kind {
	case KindStruct:
		props := t.Properties
		if props == nil {
			props = map[string]*TypeDefinition{}
		}
		m["properties"] = props
		if len(t.Nullable) > 0 {
			nullable := append([]string(nil), t.Nullable...)
			sort.Strings(nullable)
			m["nullable"] = nullable
		}
	case KindList:
		m["items"] = t.Items
	case KindEnum:
		m["members"] = t.Members
	case KindString, KindNumber, KindBoolean:
		if t.Format != "" {
			m["format"] = t.Format
		}
	case KindStringLiteral, KindNumberLiteral, KindBooleanLiteral:
		m["value"] = t.Value
	case KindJSONObject:
		if t.Tag != "" {
			m["tag"] = t.Tag
		}
	case KindRef:
		m["name"] = t.Ref
	case KindFile:
	default:
		return nil, fmt.Errorf("cannot marshal unknown type kind %q", t.Kind)
	}
	return json.Marshal(m)
}

// IsNullable reports whether the struct property name may be absent or null.
func (t *TypeDefinition) IsNullable(name string) bool {
	for _, n := range t.Nullable {
		if n == name {
			return true
		}
	}
	return false
}

// Schema is a set of named type definitions with a designated root.
type Schema struct {
	Types    map[string]*TypeDefinition `json:"types"`
	RootType string                     `json:"rootType"`
}

// Parse decodes a schema from JSON.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error unmarshaling schema: %w", err)
	}
	return &s, nil
}

// Root returns the root type with refs resolved, or nil.
func (s *Schema) Root() *TypeDefinition {
	if s == nil {
		return nil
	}
	return s.Resolve(s.Types[s.RootType])
}

// Resolve follows ref definitions until a concrete type is reached. It
// returns nil for unknown names and for ref cycles.
func (s *Schema) Resolve(t *TypeDefinition) *TypeDefinition {
	for hops := 0; t != nil && t.Kind == KindRef; hops++ {
		if hops > len(s.Types) {
			return nil
		}
		t = s.Types[t.Ref]
	}
	return t
}

// Equal reports whether two schemas have the same canonical JSON encoding.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	a, errA := json.Marshal(s)
	b, errB := json.Marshal(other)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// Constructors used by callers building schemas in code.

func Struct(props map[string]*TypeDefinition, nullable ...string) *TypeDefinition {
	return &TypeDefinition{Kind: KindStruct, Properties: props, Nullable: nullable}
}

func List(items *TypeDefinition) *TypeDefinition {
	return &TypeDefinition{Kind: KindList, Items: items}
}

func Enum(members ...EnumMember) *TypeDefinition {
	return &TypeDefinition{Kind: KindEnum, Members: members}
}

func Member(name string, value any) EnumMember {
	return EnumMember{Name: name, Value: value}
}

func String(format ...Format) *TypeDefinition {
	return primitive(KindString, format)
}

func Number(format ...Format) *TypeDefinition {
	return primitive(KindNumber, format)
}

func Boolean() *TypeDefinition {
	return &TypeDefinition{Kind: KindBoolean}
}

func primitive(kind Kind, format []Format) *TypeDefinition {
	t := &TypeDefinition{Kind: kind}
	if len(format) > 0 {
		t.Format = format[0]
	}
	return t
}

func StringLiteral(v string) *TypeDefinition {
	return &TypeDefinition{Kind: KindStringLiteral, Value: v}
}

func NumberLiteral(v float64) *TypeDefinition {
	return &TypeDefinition{Kind: KindNumberLiteral, Value: v}
}

func BooleanLiteral(v bool) *TypeDefinition {
	return &TypeDefinition{Kind: KindBooleanLiteral, Value: v}
}

func JSONObject(tag string) *TypeDefinition {
	return &TypeDefinition{Kind: KindJSONObject, Tag: tag}
}

func File() *TypeDefinition {
	return &TypeDefinition{Kind: KindFile}
}

func Ref(name string) *TypeDefinition {
	return &TypeDefinition{Kind: KindRef, Ref: name}
}

// Issue is a single validation finding. Path uses dotted property names and
// bracketed list indices, e.g. "items[2].amount".
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}
