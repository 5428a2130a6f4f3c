package persistence

import (
	"context"
	"io"

	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/core/search"
)

// PersistenceEventType defines the possible event types for persistence operations.
type PersistenceEventType string

const (
	DocumentCreateStart       PersistenceEventType = "document:create:start"
	DocumentCreateSuccess     PersistenceEventType = "document:create:success"
	DocumentCreateFailed      PersistenceEventType = "document:create:failed"
	DocumentDuplicate         PersistenceEventType = "document:create:duplicate"
	DocumentUpdateStart       PersistenceEventType = "document:update:start"
	DocumentUpdateSuccess     PersistenceEventType = "document:update:success"
	DocumentUpdateFailed      PersistenceEventType = "document:update:failed"
	DocumentDeleteStart       PersistenceEventType = "document:delete:start"
	DocumentDeleteSuccess     PersistenceEventType = "document:delete:success"
	DocumentDeleteFailed      PersistenceEventType = "document:delete:failed"
	MigrateStart              PersistenceEventType = "migrate:start"
	MigrateSuccess            PersistenceEventType = "migrate:success"
	MigrateFailed             PersistenceEventType = "migrate:failed"
	CollectionCreateStart     PersistenceEventType = "collection:create:start"
	CollectionCreateSuccess   PersistenceEventType = "collection:create:success"
	CollectionCreateFailed    PersistenceEventType = "collection:create:failed"
	CollectionUpdateStart     PersistenceEventType = "collection:update:start"
	CollectionUpdateSuccess   PersistenceEventType = "collection:update:success"
	CollectionUpdateFailed    PersistenceEventType = "collection:update:failed"
	CollectionVersionStart    PersistenceEventType = "collection:version:start"
	CollectionVersionSuccess  PersistenceEventType = "collection:version:success"
	CollectionVersionFailed   PersistenceEventType = "collection:version:failed"
	CollectionDeleteStart     PersistenceEventType = "collection:delete:start"
	CollectionDeleteSuccess   PersistenceEventType = "collection:delete:success"
	CollectionDeleteFailed    PersistenceEventType = "collection:delete:failed"
	SubscriptionRegister      PersistenceEventType = "subscription:register"
	SubscriptionUnregister    PersistenceEventType = "subscription:unregister"
)

// PersistenceEvent represents events emitted during persistence operations.
type PersistenceEvent struct {
	Type       PersistenceEventType `json:"type"`                 // The type of event (e.g., 'document:create:start').
	Timestamp  int64                `json:"timestamp"`            // Timestamp when the event occurred (Unix milliseconds).
	Operation  string               `json:"operation"`            // The operation being performed (e.g., 'create').
	Collection *string              `json:"collection,omitempty"` // Id of the collection affected (if applicable).
	Input      any                  `json:"input,omitempty"`      // Data passed to the operation (if applicable).
	Output     any                  `json:"output,omitempty"`     // Data returned by the operation (if applicable).
	Error      *string              `json:"error,omitempty"`      // Error message if the operation failed.
	Issues     []schema.Issue       `json:"issues,omitempty"`     // Issues that caused the operation to fail.
	Duration   *int64               `json:"duration,omitempty"`   // Duration of the operation in milliseconds.
}

type EventCallbackFunction func(ctx context.Context, event PersistenceEvent) error

// SubscriptionInfo describes a subscription configuration.
type SubscriptionInfo struct {
	Id          *string              `json:"id"`
	Event       PersistenceEventType `json:"event"`                 // The event subscribed to.
	Label       *string              `json:"label,omitempty"`       // Optional short identifier.
	Description *string              `json:"description,omitempty"` // Optional description.
	Unsubscribe func()               `json:"-"`
}

// RegisterSubscriptionOptions defines options for registering a subscription.
type RegisterSubscriptionOptions struct {
	Event       PersistenceEventType `json:"event"`
	Label       *string              `json:"label,omitempty"`
	Description *string              `json:"description,omitempty"`
	Callback    EventCallbackFunction
}

// PersistenceInterface is the versioned store: collections with schema
// version chains and documents with content version chains.
type PersistenceInterface interface {
	Open(ctx context.Context) error

	CreateCollection(ctx context.Context, settings CollectionSettings, s *schema.Schema, vs VersionSettings) (*CollectionView, error)
	UpdateCollectionSettings(ctx context.Context, id string, settings CollectionSettings) (*Collection, error)
	CreateCollectionVersion(ctx context.Context, collectionID, expectedLatestVersionID string, s *schema.Schema, vs VersionSettings) (*CollectionVersion, error)
	DeleteCollection(ctx context.Context, id, confirmation string) error
	GetCollection(ctx context.Context, id string) (*CollectionView, error)
	ListCollections(ctx context.Context) ([]Collection, error)
	CollectionVersions(ctx context.Context, collectionID string) ([]CollectionVersion, error)

	CreateDocument(ctx context.Context, collectionID string, content any, opts CreateOptions) (*CreateDocumentResult, error)
	CreateDocumentVersion(ctx context.Context, collectionID, documentID, expectedLatestVersionID string, content any) (*DocumentView, error)
	DeleteDocument(ctx context.Context, id, confirmation string) error
	GetDocument(ctx context.Context, id string) (*DocumentView, error)
	ListDocuments(ctx context.Context, collectionID string, opts ListOptions) ([]DocumentView, error)
	DocumentHistory(ctx context.Context, documentID string) ([]DocumentVersion, error)
	DocumentVersionContent(ctx context.Context, versionID string) (*DocumentVersion, error)
	FileContent(ctx context.Context, fileID string) (*FileRecord, []byte, error)

	Search(ctx context.Context, query string, opts search.Options) ([]search.Hit, error)
	ExportCollection(ctx context.Context, id string, w io.Writer) error

	RegisterSubscription(options RegisterSubscriptionOptions) string
	UnregisterSubscription(id string)
	Subscriptions() ([]SubscriptionInfo, error)
}
