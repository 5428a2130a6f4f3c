// Package ids mints and inspects the kind-tagged identifiers used for every
// persisted entity. An id looks like "Document_3f0c…": the prefix before the
// first underscore names the entity kind and the remainder is opaque.
package ids

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Kind names the entity an id belongs to.
type Kind string

const (
	Collection        Kind = "Collection"
	CollectionVersion Kind = "CollectionVersion"
	Document          Kind = "Document"
	DocumentVersion   Kind = "DocumentVersion"
	File              Kind = "File"
	Conversation      Kind = "Conversation"
)

var known = map[Kind]struct{}{
	Collection:        {},
	CollectionVersion: {},
	Document:          {},
	DocumentVersion:   {},
	File:              {},
	Conversation:      {},
}

// Generator produces new ids for a kind.
type Generator interface {
	New(kind Kind) string
}

// UUIDGenerator tags random v4 UUIDs with the kind.
type UUIDGenerator struct{}

func (UUIDGenerator) New(kind Kind) string {
	return string(kind) + "_" + uuid.New().String()
}

// SequentialGenerator yields "Kind_1", "Kind_2", … and is meant for tests.
type SequentialGenerator struct {
	n atomic.Int64
}

func (g *SequentialGenerator) New(kind Kind) string {
	return fmt.Sprintf("%s_%d", kind, g.n.Add(1))
}

// New mints a random id of the given kind.
func New(kind Kind) string {
	return UUIDGenerator{}.New(kind)
}

// KindOf returns the kind encoded in id. It is the only sanctioned way of
// looking inside an id.
func KindOf(id string) (Kind, error) {
	prefix, rest, ok := strings.Cut(id, "_")
	if !ok || rest == "" {
		return "", fmt.Errorf("malformed id %q", id)
	}
	k := Kind(prefix)
	if _, ok := known[k]; !ok {
		return "", fmt.Errorf("unknown id kind %q in %q", prefix, id)
	}
	return k, nil
}

// Is reports whether id is a well formed id of the given kind.
func Is(id string, kind Kind) bool {
	k, err := KindOf(id)
	return err == nil && k == kind
}
