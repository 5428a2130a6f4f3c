package schema

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// FileNode is a file-typed value found in content.
type FileNode struct {
	Path  string
	Value map[string]any
}

// ID returns the persisted file id, or "" for a proto-file.
func (n FileNode) ID() string {
	id, _ := n.Value["id"].(string)
	return id
}

// IsProto reports whether the node still carries inline bytes.
func (n FileNode) IsProto() bool {
	_, hasBytes := n.Value["bytes"]
	return hasBytes && n.ID() == ""
}

// ProtoFile is the decoded form of an inline file.
type ProtoFile struct {
	Name     string
	MimeType string
	Bytes    []byte
}

// DecodeProtoFile decodes the inline bytes of a proto-file node.
func DecodeProtoFile(node map[string]any) (*ProtoFile, error) {
	name, _ := node["name"].(string)
	mimeType, _ := node["mimeType"].(string)
	raw, ok := node["bytes"].(string)
	if !ok {
		return nil, fmt.Errorf("file %q has no inline bytes", name)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding bytes of file %q: %w", name, err)
	}
	return &ProtoFile{Name: name, MimeType: mimeType, Bytes: data}, nil
}

// FileReference builds the node persisted content holds for a stored file.
func FileReference(id, name, mimeType string) map[string]any {
	return map[string]any{"id": id, "name": name, "mimeType": mimeType}
}

// ExtractFileNodes returns every file node in content, located by walking the
// schema rather than guessing from the content's shape.
func ExtractFileNodes(s *Schema, content any) []FileNode {
	var nodes []FileNode
	_, _ = TransformFileNodes(s, content, func(path string, node map[string]any) (any, error) {
		nodes = append(nodes, FileNode{Path: path, Value: node})
		return node, nil
	})
	return nodes
}

// TransformFileNodes rebuilds content, replacing each file node with the
// value fn returns. Parts of content that do not match the schema are copied
// unchanged. The input is not modified.
func TransformFileNodes(s *Schema, content any, fn func(path string, node map[string]any) (any, error)) (any, error) {
	if s == nil {
		return content, nil
	}
	w := &walker{schema: s}
	return w.transform(content, s.Types[s.RootType], "", fn)
}

type walker struct {
	schema *Schema
}

func (w *walker) transform(value any, def *TypeDefinition, path string, fn func(string, map[string]any) (any, error)) (any, error) {
	def = w.schema.Resolve(def)
	if def == nil || value == nil {
		return value, nil
	}

	switch def.Kind {
	case KindFile:
		node, ok := value.(map[string]any)
		if !ok {
			return value, nil
		}
		return fn(path, node)
	case KindStruct:
		obj, ok := value.(map[string]any)
		if !ok {
			return value, nil
		}
		out := make(map[string]any, len(obj))
		for key, v := range obj {
			prop, known := def.Properties[key]
			if !known {
				out[key] = v
				continue
			}
			next, err := w.transform(v, prop, joinPath(path, key), fn)
			if err != nil {
				return nil, err
			}
			out[key] = next
		}
		return out, nil
	case KindList:
		items, ok := value.([]any)
		if !ok {
			return value, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			next, err := w.transform(item, def.Items, fmt.Sprintf("%s[%d]", path, i), fn)
			if err != nil {
				return nil, err
			}
			out[i] = next
		}
		return out, nil
	}
	return value, nil
}

// TextChunks derives the searchable text of content: strings, numbers, enum
// values and file names, in schema order.
func TextChunks(s *Schema, content any) []string {
	if s == nil {
		return nil
	}
	var chunks []string
	var visit func(value any, def *TypeDefinition)
	visit = func(value any, def *TypeDefinition) {
		def = s.Resolve(def)
		if def == nil || value == nil {
			return
		}
		switch def.Kind {
		case KindString, KindStringLiteral, KindEnum, KindNumber, KindNumberLiteral:
			if str, ok := value.(string); ok {
				if str != "" {
					chunks = append(chunks, str)
				}
			} else if n, ok := toFloat(value); ok {
				chunks = append(chunks, strconv.FormatFloat(n, 'f', -1, 64))
			}
		case KindFile:
			if node, ok := value.(map[string]any); ok {
				if name, _ := node["name"].(string); name != "" {
					chunks = append(chunks, name)
				}
			}
		case KindStruct:
			if obj, ok := value.(map[string]any); ok {
				for _, key := range sortedKeys(def.Properties) {
					visit(obj[key], def.Properties[key])
				}
			}
		case KindList:
			if items, ok := value.([]any); ok {
				for _, item := range items {
					visit(item, def.Items)
				}
			}
		}
	}
	visit(content, s.Types[s.RootType])
	return chunks
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}
