package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/core/ids"
	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/core/search"
)

// CreateCollection creates a collection together with its first version.
func (p *Persistence) CreateCollection(ctx context.Context, settings CollectionSettings, s *schema.Schema, vs VersionSettings) (*CollectionView, error) {
	return withEventEmission(p, "create_collection", CollectionCreateStart, CollectionCreateSuccess, CollectionCreateFailed, "", settings,
		func() (*CollectionView, error) {
			issues := append(checkCollectionSettings(settings), checkVersion(p.sandbox, s, vs)...)
			if len(issues) > 0 {
				return nil, invalid("collection", issues)
			}

			at := p.timestamp()
			col := &Collection{
				ID:                 p.ids.New(ids.Collection),
				CollectionSettings: settings,
				CreatedAt:          at,
			}
			version := &CollectionVersion{
				ID:           p.ids.New(ids.CollectionVersion),
				CollectionID: col.ID,
				Schema:       s,
				Settings:     vs,
				CreatedAt:    at,
			}
			col.LatestVersionID = version.ID

			err := p.transact(ctx, func(ex *Executor) error {
				if err := ex.interactor.InsertCollection(ctx, col); err != nil {
					return fmt.Errorf("inserting collection: %w", err)
				}
				if err := ex.interactor.InsertCollectionVersion(ctx, version); err != nil {
					return fmt.Errorf("inserting collection version: %w", err)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			p.logger.Info("collection created", zap.String("collection", col.ID), zap.String("name", col.Name))
			return &CollectionView{Collection: *col, Latest: *version}, nil
		})
}

// UpdateCollectionSettings replaces the mutable properties of a collection.
// Settings are not versioned.
func (p *Persistence) UpdateCollectionSettings(ctx context.Context, id string, settings CollectionSettings) (*Collection, error) {
	return withEventEmission(p, "update_collection", CollectionUpdateStart, CollectionUpdateSuccess, CollectionUpdateFailed, id, settings,
		func() (*Collection, error) {
			if issues := checkCollectionSettings(settings); len(issues) > 0 {
				return nil, invalid("collection settings", issues)
			}
			var updated *Collection
			err := p.transact(ctx, func(ex *Executor) error {
				col, err := ex.interactor.SelectCollection(ctx, id)
				if err != nil {
					return err
				}
				if err := ex.interactor.UpdateCollectionSettings(ctx, id, settings); err != nil {
					return fmt.Errorf("updating collection %s: %w", id, err)
				}
				col.CollectionSettings = settings
				updated = col
				return nil
			})
			return updated, err
		})
}

// CreateCollectionVersion appends a schema version to the collection. When
// the schema changes and the version carries a migration, every document is
// migrated in the same transaction; any failure discards the version and all
// migrated content.
func (p *Persistence) CreateCollectionVersion(ctx context.Context, collectionID, expectedLatestVersionID string, s *schema.Schema, vs VersionSettings) (*CollectionVersion, error) {
	return withEventEmission(p, "create_collection_version", CollectionVersionStart, CollectionVersionSuccess, CollectionVersionFailed, collectionID, expectedLatestVersionID,
		func() (*CollectionVersion, error) {
			if issues := checkVersion(p.sandbox, s, vs); len(issues) > 0 {
				return nil, invalid("collection version", issues)
			}

			version := &CollectionVersion{
				ID:                p.ids.New(ids.CollectionVersion),
				CollectionID:      collectionID,
				PreviousVersionID: expectedLatestVersionID,
				Schema:            s,
				Settings:          vs,
				CreatedAt:         p.timestamp(),
			}

			var migrated []migratedDocument
			err := p.transact(ctx, func(ex *Executor) error {
				col, previous, err := ex.latestCollection(ctx, collectionID)
				if err != nil {
					return err
				}
				if col.LatestVersionID != expectedLatestVersionID {
					return &ConflictError{ID: collectionID, Expected: expectedLatestVersionID, Actual: col.LatestVersionID}
				}

				if err := ex.interactor.InsertCollectionVersion(ctx, version); err != nil {
					return fmt.Errorf("inserting collection version: %w", err)
				}
				ok, err := ex.interactor.SetCollectionLatest(ctx, collectionID, expectedLatestVersionID, version.ID)
				if err != nil {
					return fmt.Errorf("promoting collection version: %w", err)
				}
				if !ok {
					return &ConflictError{ID: collectionID, Expected: expectedLatestVersionID}
				}

				if vs.Migration != nil && !s.Equal(previous.Schema) {
					migrated, err = p.migrate(ctx, ex, col, version)
					return err
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			if len(migrated) > 0 {
				ix := p.search.Index(search.Documents)
				for _, m := range migrated {
					sum := p.computeSummary(ctx, m.documentID, vs, m.content)
					ix.Upsert(search.Entry{ID: m.documentID, Scope: collectionID, Chunks: indexChunks(s, m.content, sum)})
				}
				p.flushSearch(ctx)
			}
			return version, nil
		})
}

// DeleteCollection removes the collection, its versions and every document
// with its history. confirmation must equal ConfirmDeletion.
func (p *Persistence) DeleteCollection(ctx context.Context, id, confirmation string) error {
	_, err := withEventEmission(p, "delete_collection", CollectionDeleteStart, CollectionDeleteSuccess, CollectionDeleteFailed, id, nil,
		func() (struct{}, error) {
			if confirmation != ConfirmDeletion {
				return struct{}{}, fmt.Errorf("deleting collection %s: %w", id, ErrConfirmationRequired)
			}
			err := p.transact(ctx, func(ex *Executor) error {
				if _, err := ex.interactor.SelectCollection(ctx, id); err != nil {
					return err
				}
				return ex.interactor.DeleteCollection(ctx, id)
			})
			if err != nil {
				return struct{}{}, err
			}

			removed := p.search.Index(search.Documents).RemoveScope(id)
			p.flushSearch(ctx)
			p.logger.Info("collection deleted", zap.String("collection", id), zap.Int("documents", len(removed)))
			return struct{}{}, nil
		})
	return err
}

// GetCollection returns a collection with its latest version.
func (p *Persistence) GetCollection(ctx context.Context, id string) (*CollectionView, error) {
	col, version, err := p.read().latestCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CollectionView{Collection: *col, Latest: *version}, nil
}

// ListCollections returns every collection ordered by name.
func (p *Persistence) ListCollections(ctx context.Context) ([]Collection, error) {
	return p.interactor.SelectCollections(ctx)
}

// CollectionVersions returns the version chain of a collection, oldest
// first.
func (p *Persistence) CollectionVersions(ctx context.Context, collectionID string) ([]CollectionVersion, error) {
	if _, err := p.interactor.SelectCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	return p.interactor.SelectCollectionVersions(ctx, collectionID)
}
