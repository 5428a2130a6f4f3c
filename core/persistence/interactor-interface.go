package persistence

import (
	"context"

	"github.com/asaidimu/go-quire/core/search"
)

// DatabaseInteractor defines the storage operations the persistence layer
// needs. It can operate in either a non-transactional (default) or
// transactional mode.
// Note: This interface includes the transactional methods, but they only
// become truly active/meaningful on an instance returned by StartTransaction.
//
// Select methods return an error matching ErrNotFound for missing rows.
type DatabaseInteractor interface {
	InsertCollection(ctx context.Context, c *Collection) error
	UpdateCollectionSettings(ctx context.Context, id string, settings CollectionSettings) error
	// SetCollectionLatest moves the latest pointer from expected to next and
	// reports whether expected was still current.
	SetCollectionLatest(ctx context.Context, id, expected, next string) (bool, error)
	SelectCollection(ctx context.Context, id string) (*Collection, error)
	SelectCollections(ctx context.Context) ([]Collection, error)
	// DeleteCollection removes the collection with its versions, documents,
	// document versions and blocking keys.
	DeleteCollection(ctx context.Context, id string) error

	InsertCollectionVersion(ctx context.Context, v *CollectionVersion) error
	SelectCollectionVersion(ctx context.Context, id string) (*CollectionVersion, error)
	SelectCollectionVersions(ctx context.Context, collectionID string) ([]CollectionVersion, error)

	InsertDocument(ctx context.Context, d *Document) error
	SetDocumentLatest(ctx context.Context, id, expected, next string) (bool, error)
	SelectDocument(ctx context.Context, id string) (*Document, error)
	SelectDocuments(ctx context.Context, collectionID string) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error

	InsertDocumentVersion(ctx context.Context, r *VersionRecord) error
	// ClearSnapshot demotes a version to delta-only storage.
	ClearSnapshot(ctx context.Context, versionID string) error
	SelectVersionRecord(ctx context.Context, id string) (*VersionRecord, error)
	// SelectVersionChain returns every version of a document, oldest first.
	SelectVersionChain(ctx context.Context, documentID string) ([]VersionRecord, error)

	InsertFile(ctx context.Context, f *FileRecord) error
	SelectFile(ctx context.Context, id string) (*FileRecord, error)
	LinkFiles(ctx context.Context, versionID string, fileIDs []string) error
	SelectVersionFiles(ctx context.Context, versionID string) ([]FileRecord, error)

	ReplaceBlockingKeys(ctx context.Context, collectionID, documentID string, keys []string) error
	// FindByBlockingKeys returns the oldest other document of the collection
	// sharing any of keys, or "".
	FindByBlockingKeys(ctx context.Context, collectionID string, keys []string, excludeDocumentID string) (string, error)

	search.ShardStore

	// StartTransaction initiates a new database transaction.
	// It returns a *new* instance of DatabaseInteractor that operates
	// within the scope of that transaction.
	// The original interactor instance remains non-transactional.
	StartTransaction(ctx context.Context) (DatabaseInteractor, error)

	// Commit commits the transaction.
	// This method should only be called on a DatabaseInteractor instance
	// that was returned by StartTransaction.
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction.
	// This method should only be called on a DatabaseInteractor instance
	// that was returned by StartTransaction.
	Rollback(ctx context.Context) error
}
