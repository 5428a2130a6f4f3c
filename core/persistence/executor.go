package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Executor runs version-chain operations against one interactor, which is
// usually a transaction. It owns the snapshot and delta storage layout: the
// latest version of a document carries a snapshot, every version carries its
// forward delta.
type Executor struct {
	interactor DatabaseInteractor
	logger     *zap.Logger
	// staged file bytes, written to the blob store only once the
	// transaction body has succeeded
	staged []stagedBlob
}

type stagedBlob struct {
	checksum string
	name     string
	data     []byte
}

// stageBlob queues data for the blob store.
func (e *Executor) stageBlob(checksum, name string, data []byte) {
	for _, b := range e.staged {
		if b.checksum == checksum {
			return
		}
	}
	e.staged = append(e.staged, stagedBlob{checksum: checksum, name: name, data: data})
}

func NewExecutor(interactor DatabaseInteractor, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		interactor: interactor,
		logger:     logger,
	}
}

// latestCollection loads a collection and its latest version.
func (e *Executor) latestCollection(ctx context.Context, collectionID string) (*Collection, *CollectionVersion, error) {
	col, err := e.interactor.SelectCollection(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}
	version, err := e.interactor.SelectCollectionVersion(ctx, col.LatestVersionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, unexpected("collection %s has no latest version %s", col.ID, col.LatestVersionID)
	}
	if err != nil {
		return nil, nil, err
	}
	return col, version, nil
}

// latestRecord loads the latest version record of a document and checks it
// still carries its snapshot.
func (e *Executor) latestRecord(ctx context.Context, doc *Document) (*VersionRecord, error) {
	rec, err := e.interactor.SelectVersionRecord(ctx, doc.LatestVersionID)
	if errors.Is(err, ErrNotFound) {
		return nil, unexpected("document %s has no latest version %s", doc.ID, doc.LatestVersionID)
	}
	if err != nil {
		return nil, err
	}
	if len(rec.Snapshot) == 0 {
		return nil, unexpected("latest version %s of document %s has no snapshot", rec.ID, doc.ID)
	}
	return rec, nil
}

// appendVersion stores rec as the new latest version of doc. prev is the
// current latest record, nil for the first version. The previous snapshot is
// cleared and the latest pointer moved only if it still equals prev.
func (e *Executor) appendVersion(ctx context.Context, doc *Document, prev *VersionRecord, rec *VersionRecord, content json.RawMessage) error {
	var base json.RawMessage
	if prev != nil {
		base = prev.Snapshot
		rec.PreviousVersionID = prev.ID
	}
	delta, err := computeDelta(base, content)
	if err != nil {
		return err
	}
	rec.Delta = delta
	rec.Snapshot = content

	if err := e.interactor.InsertDocumentVersion(ctx, rec); err != nil {
		return fmt.Errorf("inserting version %s: %w", rec.ID, err)
	}
	if prev == nil {
		return nil
	}

	ok, err := e.interactor.SetDocumentLatest(ctx, doc.ID, prev.ID, rec.ID)
	if err != nil {
		return fmt.Errorf("promoting version %s: %w", rec.ID, err)
	}
	if !ok {
		actual := ""
		if current, err := e.interactor.SelectDocument(ctx, doc.ID); err == nil {
			actual = current.LatestVersionID
		}
		return &ConflictError{ID: doc.ID, Expected: prev.ID, Actual: actual}
	}
	if err := e.interactor.ClearSnapshot(ctx, prev.ID); err != nil {
		return fmt.Errorf("demoting version %s: %w", prev.ID, err)
	}
	doc.LatestVersionID = rec.ID
	e.logger.Debug("document version promoted",
		zap.String("document", doc.ID),
		zap.String("previous", prev.ID),
		zap.String("latest", rec.ID),
		zap.Int("deltaBytes", len(delta)))
	return nil
}

// history reconstructs every version of a document, oldest first.
func (e *Executor) history(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	records, err := e.interactor.SelectVersionChain(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chain := chainIndex(records)

	out := make([]DocumentVersion, 0, len(records))
	for _, rec := range records {
		raw, err := reconstruct(chain, rec.ID)
		if err != nil {
			return nil, err
		}
		v, err := versionFromRecord(rec, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// versionContent reconstructs one version. The latest version is read from
// its snapshot.
func (e *Executor) versionContent(ctx context.Context, versionID string) (*DocumentVersion, error) {
	rec, err := e.interactor.SelectVersionRecord(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if len(rec.Snapshot) > 0 {
		return versionFromRecord(*rec, rec.Snapshot)
	}
	records, err := e.interactor.SelectVersionChain(ctx, rec.DocumentID)
	if err != nil {
		return nil, err
	}
	raw, err := reconstruct(chainIndex(records), versionID)
	if err != nil {
		return nil, err
	}
	return versionFromRecord(*rec, raw)
}

func versionFromRecord(rec VersionRecord, raw json.RawMessage) (*DocumentVersion, error) {
	content, err := decodeContent(raw)
	if err != nil {
		return nil, err
	}
	return &DocumentVersion{
		ID:                  rec.ID,
		DocumentID:          rec.DocumentID,
		PreviousVersionID:   rec.PreviousVersionID,
		CollectionVersionID: rec.CollectionVersionID,
		Content:             content,
		CreatedAt:           rec.CreatedAt,
	}, nil
}

func newRecord(id, documentID, collectionVersionID string, at time.Time) *VersionRecord {
	return &VersionRecord{
		ID:                  id,
		DocumentID:          documentID,
		CollectionVersionID: collectionVersionID,
		CreatedAt:           at,
	}
}
