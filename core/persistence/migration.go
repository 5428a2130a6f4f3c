package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/core/ids"
)

type migratedDocument struct {
	documentID string
	content    any
}

// migrate rewrites every document of col into version, inside the caller's
// transaction. The first failing document aborts the whole migration.
func (p *Persistence) migrate(ctx context.Context, ex *Executor, col *Collection, version *CollectionVersion) ([]migratedDocument, error) {
	return withEventEmission(p, "migrate_collection", MigrateStart, MigrateSuccess, MigrateFailed, col.ID, version.ID,
		func() ([]migratedDocument, error) {
			docs, err := ex.interactor.SelectDocuments(ctx, col.ID)
			if err != nil {
				return nil, fmt.Errorf("listing documents of %s: %w", col.ID, err)
			}

			out := make([]migratedDocument, 0, len(docs))
			for i := range docs {
				doc := &docs[i]
				m, err := p.migrateDocument(ctx, ex, doc, version)
				if err != nil {
					p.logger.Warn("migration aborted",
						zap.String("collection", col.ID),
						zap.String("version", version.ID),
						zap.String("document", doc.ID),
						zap.Error(err))
					return nil, err
				}
				out = append(out, *m)
			}
			p.logger.Info("collection migrated",
				zap.String("collection", col.ID),
				zap.String("version", version.ID),
				zap.Int("documents", len(out)))
			return out, nil
		})
}

func (p *Persistence) migrateDocument(ctx context.Context, ex *Executor, doc *Document, version *CollectionVersion) (*migratedDocument, error) {
	prev, err := ex.latestRecord(ctx, doc)
	if err != nil {
		return nil, err
	}
	current, err := decodeContent(prev.Snapshot)
	if err != nil {
		return nil, err
	}

	next, err := p.sandbox.Run(ctx, *version.Settings.Migration, current)
	if err != nil {
		return nil, &MigrationError{DocumentID: doc.ID, Err: err}
	}
	prepared, err := p.prepareContent(ctx, ex, version.Schema, next)
	if err != nil {
		return nil, &MigrationError{DocumentID: doc.ID, Err: err}
	}

	rec := newRecord(p.ids.New(ids.DocumentVersion), doc.ID, version.ID, p.timestamp())
	if err := ex.appendVersion(ctx, doc, prev, rec, prepared.raw); err != nil {
		return nil, err
	}
	if err := ex.interactor.LinkFiles(ctx, rec.ID, prepared.fileIDs); err != nil {
		return nil, fmt.Errorf("linking files of %s: %w", rec.ID, err)
	}
	keys, _ := p.computeBlockingKeys(ctx, doc.ID, version.Settings, prepared.value)
	if err := ex.interactor.ReplaceBlockingKeys(ctx, doc.CollectionID, doc.ID, keys); err != nil {
		return nil, fmt.Errorf("storing blocking keys of %s: %w", doc.ID, err)
	}
	return &migratedDocument{documentID: doc.ID, content: prepared.value}, nil
}
