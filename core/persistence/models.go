package persistence

import (
	"encoding/json"
	"time"

	"github.com/asaidimu/go-quire/core/query"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/core/summary"
)

// CollectionSettings are the mutable, unversioned properties of a
// collection.
type CollectionSettings struct {
	Name         string `json:"name" yaml:"name" validate:"required,max=120"`
	Icon         string `json:"icon,omitempty" yaml:"icon,omitempty" validate:"max=64"`
	Category     string `json:"category,omitempty" yaml:"category,omitempty" validate:"max=120"`
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty" validate:"max=20000"`
}

// Collection is a named, schema-typed bucket of documents.
type Collection struct {
	ID                 string `json:"id" yaml:"id"`
	CollectionSettings `yaml:",inline"`
	LatestVersionID    string    `json:"latestVersionId" yaml:"latestVersionId"`
	CreatedAt          time.Time `json:"createdAt" yaml:"createdAt"`
}

// VersionSettings are the transformation units and hints attached to a
// collection version.
type VersionSettings struct {
	// Summary maps content to labelled scalars. Labels may carry the
	// {position:..,sortable:..,default-sort:..} prefix.
	Summary sandbox.Unit `json:"summary" yaml:"summary"`
	// BlockingKeys maps content to a list of strings used to detect
	// possible duplicates.
	BlockingKeys *sandbox.Unit `json:"blockingKeys,omitempty" yaml:"blockingKeys,omitempty"`
	// Migration maps the previous version's content to this version's.
	Migration *sandbox.Unit  `json:"migration,omitempty" yaml:"migration,omitempty"`
	Layout    map[string]any `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// CollectionVersion is an immutable schema revision of a collection.
type CollectionVersion struct {
	ID                string          `json:"id" yaml:"id"`
	CollectionID      string          `json:"collectionId" yaml:"collectionId"`
	PreviousVersionID string          `json:"previousVersionId,omitempty" yaml:"previousVersionId,omitempty"`
	Schema            *schema.Schema  `json:"schema" yaml:"schema"`
	Settings          VersionSettings `json:"settings" yaml:"settings"`
	CreatedAt         time.Time       `json:"createdAt" yaml:"createdAt"`
}

// RemoteOrigin records where an imported document came from.
type RemoteOrigin struct {
	Service  string `json:"service" yaml:"service"`
	RemoteID string `json:"remoteId" yaml:"remoteId"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Document is an entry of a collection. Its content lives in its versions.
type Document struct {
	ID              string        `json:"id" yaml:"id"`
	CollectionID    string        `json:"collectionId" yaml:"collectionId"`
	LatestVersionID string        `json:"latestVersionId" yaml:"latestVersionId"`
	Origin          *RemoteOrigin `json:"origin,omitempty" yaml:"origin,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" yaml:"createdAt"`
}

// DocumentVersion is a materialized revision of a document's content.
type DocumentVersion struct {
	ID                  string    `json:"id" yaml:"id"`
	DocumentID          string    `json:"documentId" yaml:"documentId"`
	PreviousVersionID   string    `json:"previousVersionId,omitempty" yaml:"previousVersionId,omitempty"`
	CollectionVersionID string    `json:"collectionVersionId" yaml:"collectionVersionId"`
	Content             any       `json:"content" yaml:"content"`
	CreatedAt           time.Time `json:"createdAt" yaml:"createdAt"`
}

// VersionRecord is the stored form of a document version. Delta is the
// RFC 6902 patch from the previous version's content (or from {} for the
// first version). Snapshot is set only on the latest version.
type VersionRecord struct {
	ID                  string
	DocumentID          string
	PreviousVersionID   string
	CollectionVersionID string
	Snapshot            json.RawMessage
	Delta               json.RawMessage
	CreatedAt           time.Time
}

// FileRecord describes a persisted file. Its bytes live in the BlobStore
// under Checksum.
type FileRecord struct {
	ID        string    `json:"id" yaml:"id"`
	Checksum  string    `json:"checksum" yaml:"checksum"`
	Name      string    `json:"name" yaml:"name"`
	MimeType  string    `json:"mimeType" yaml:"mimeType"`
	Size      int64     `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// DocumentView is a document with its latest version and derived summary.
type DocumentView struct {
	Document `yaml:",inline"`
	Latest   DocumentVersion `json:"latest" yaml:"latest"`
	Summary  summary.Summary `json:"summary" yaml:"summary"`
}

// CollectionView is a collection with its latest version.
type CollectionView struct {
	Collection `yaml:",inline"`
	Latest     CollectionVersion `json:"latest" yaml:"latest"`
}

// PossibleDuplicate is returned instead of a write when another document
// of the collection shares a blocking key.
type PossibleDuplicate struct {
	ExistingDocumentID string   `json:"existingDocumentId"`
	Keys               []string `json:"keys"`
}

// CreateOptions adjust CreateDocument.
type CreateOptions struct {
	// Force writes the document even when a possible duplicate exists.
	Force  bool
	Origin *RemoteOrigin
}

// CreateDocumentResult holds either the new document or a possible
// duplicate signal.
type CreateDocumentResult struct {
	Document          *DocumentView      `json:"document,omitempty"`
	PossibleDuplicate *PossibleDuplicate `json:"possibleDuplicate,omitempty"`
}

// ListOptions adjust ListDocuments.
type ListOptions struct {
	// SortBy is a summary label. Empty uses the summary's default-sort
	// property, then creation time.
	SortBy     string
	Descending bool
	// Filter fields name a summary label, or a content path when prefixed
	// with "content.".
	Filter *query.QueryFilter
	// Offset and Limit page the sorted result. Zero Limit means no limit.
	Offset int
	Limit  int
}
