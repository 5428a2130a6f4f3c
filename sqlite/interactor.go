// Package sqlite provides a concrete implementation of the persistence.DatabaseInteractor
// interface for SQLite databases. It handles the specifics of connecting to, querying,
// and managing a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/search"
)

// SQLiteInteractor is a concrete implementation of the persistence.DatabaseInteractor
// interface for SQLite. It can operate in both transactional and
// non-transactional modes.
type SQLiteInteractor struct {
	db     *sqlx.DB
	tx     *sqlx.Tx
	logger *zap.Logger
}

// Ensure SQLiteInteractor implements the persistence.DatabaseInteractor interface.
var _ persistence.DatabaseInteractor = (*SQLiteInteractor)(nil)

// NewSQLiteInteractor creates a new instance of the SQLiteInteractor. It can be
// configured to operate in transactional mode by providing a non-nil *sqlx.Tx.
func NewSQLiteInteractor(db *sqlx.DB, logger *zap.Logger, tx *sqlx.Tx) *SQLiteInteractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteInteractor{
		db:     db,
		tx:     tx,
		logger: logger,
	}
}

// runner returns the database connection pool or the active transaction.
func (i *SQLiteInteractor) runner() sqlx.ExtContext {
	if i.tx != nil {
		return i.tx
	}
	return i.db
}

func (i *SQLiteInteractor) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	i.logger.Debug("Executing SQL", zap.String("sql", query), zap.Any("params", args))
	result, err := i.runner().ExecContext(ctx, query, args...)
	if err != nil {
		i.logger.Error("Failed to execute statement", zap.Error(err), zap.String("sql", query))
	}
	return result, err
}

func (i *SQLiteInteractor) namedExec(ctx context.Context, query string, arg any) error {
	i.logger.Debug("Executing SQL", zap.String("sql", query))
	if _, err := sqlx.NamedExecContext(ctx, i.runner(), query, arg); err != nil {
		i.logger.Error("Failed to execute statement", zap.Error(err), zap.String("sql", query))
		return err
	}
	return nil
}

// get loads one row into dest. A missing row is reported as kind id not
// found.
func (i *SQLiteInteractor) get(ctx context.Context, dest any, kind, id, query string) error {
	i.logger.Debug("Executing SQL SELECT", zap.String("sql", query), zap.String("id", id))
	err := sqlx.GetContext(ctx, i.runner(), dest, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, persistence.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to select %s %s: %w", kind, id, err)
	}
	return nil
}

func (i *SQLiteInteractor) selectRows(ctx context.Context, dest any, query string, args ...any) error {
	i.logger.Debug("Executing SQL SELECT", zap.String("sql", query), zap.Any("params", args))
	if err := sqlx.SelectContext(ctx, i.runner(), dest, query, args...); err != nil {
		i.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", query))
		return fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	return nil
}

// conditional runs a compare-and-set update and reports whether it applied.
func (i *SQLiteInteractor) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := i.exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (i *SQLiteInteractor) InsertCollection(ctx context.Context, c *persistence.Collection) error {
	return i.namedExec(ctx, insertCollectionSQL, collectionToRow(c))
}

func (i *SQLiteInteractor) UpdateCollectionSettings(ctx context.Context, id string, s persistence.CollectionSettings) error {
	ok, err := i.conditional(ctx, updateCollectionSettingsSQL, s.Name, s.Icon, s.Category, s.Instructions, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("collection %s: %w", id, persistence.ErrNotFound)
	}
	return nil
}

func (i *SQLiteInteractor) SetCollectionLatest(ctx context.Context, id, expected, next string) (bool, error) {
	return i.conditional(ctx, setCollectionLatestSQL, next, id, expected)
}

func (i *SQLiteInteractor) SelectCollection(ctx context.Context, id string) (*persistence.Collection, error) {
	var row collectionRow
	if err := i.get(ctx, &row, "collection", id, selectCollectionSQL); err != nil {
		return nil, err
	}
	c := row.toModel()
	return &c, nil
}

func (i *SQLiteInteractor) SelectCollections(ctx context.Context) ([]persistence.Collection, error) {
	var rows []collectionRow
	if err := i.selectRows(ctx, &rows, selectCollectionsSQL); err != nil {
		return nil, err
	}
	out := make([]persistence.Collection, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (i *SQLiteInteractor) DeleteCollection(ctx context.Context, id string) error {
	for _, stmt := range deleteCollectionSQL {
		if _, err := i.exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete collection %s: %w", id, err)
		}
	}
	return nil
}

func (i *SQLiteInteractor) InsertCollectionVersion(ctx context.Context, v *persistence.CollectionVersion) error {
	row, err := collectionVersionToRow(v)
	if err != nil {
		return err
	}
	return i.namedExec(ctx, insertCollectionVersionSQL, row)
}

func (i *SQLiteInteractor) SelectCollectionVersion(ctx context.Context, id string) (*persistence.CollectionVersion, error) {
	var row collectionVersionRow
	if err := i.get(ctx, &row, "collection version", id, selectCollectionVersionSQL); err != nil {
		return nil, err
	}
	return row.toModel()
}

func (i *SQLiteInteractor) SelectCollectionVersions(ctx context.Context, collectionID string) ([]persistence.CollectionVersion, error) {
	var rows []collectionVersionRow
	if err := i.selectRows(ctx, &rows, selectCollectionVersionsSQL, collectionID); err != nil {
		return nil, err
	}
	out := make([]persistence.CollectionVersion, 0, len(rows))
	for _, row := range rows {
		v, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func (i *SQLiteInteractor) InsertDocument(ctx context.Context, d *persistence.Document) error {
	row, err := documentToRow(d)
	if err != nil {
		return err
	}
	return i.namedExec(ctx, insertDocumentSQL, row)
}

func (i *SQLiteInteractor) SetDocumentLatest(ctx context.Context, id, expected, next string) (bool, error) {
	return i.conditional(ctx, setDocumentLatestSQL, next, id, expected)
}

func (i *SQLiteInteractor) SelectDocument(ctx context.Context, id string) (*persistence.Document, error) {
	var row documentRow
	if err := i.get(ctx, &row, "document", id, selectDocumentSQL); err != nil {
		return nil, err
	}
	d, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (i *SQLiteInteractor) SelectDocuments(ctx context.Context, collectionID string) ([]persistence.Document, error) {
	var rows []documentRow
	if err := i.selectRows(ctx, &rows, selectDocumentsSQL, collectionID); err != nil {
		return nil, err
	}
	out := make([]persistence.Document, 0, len(rows))
	for _, row := range rows {
		d, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (i *SQLiteInteractor) DeleteDocument(ctx context.Context, id string) error {
	for _, stmt := range deleteDocumentSQL {
		if _, err := i.exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", id, err)
		}
	}
	return nil
}

func (i *SQLiteInteractor) InsertDocumentVersion(ctx context.Context, r *persistence.VersionRecord) error {
	return i.namedExec(ctx, insertVersionSQL, versionToRow(r))
}

func (i *SQLiteInteractor) ClearSnapshot(ctx context.Context, versionID string) error {
	_, err := i.exec(ctx, clearSnapshotSQL, versionID)
	return err
}

func (i *SQLiteInteractor) SelectVersionRecord(ctx context.Context, id string) (*persistence.VersionRecord, error) {
	var row versionRow
	if err := i.get(ctx, &row, "document version", id, selectVersionSQL); err != nil {
		return nil, err
	}
	rec := row.toModel()
	return &rec, nil
}

func (i *SQLiteInteractor) SelectVersionChain(ctx context.Context, documentID string) ([]persistence.VersionRecord, error) {
	var rows []versionRow
	if err := i.selectRows(ctx, &rows, selectVersionChainSQL, documentID); err != nil {
		return nil, err
	}
	out := make([]persistence.VersionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (i *SQLiteInteractor) InsertFile(ctx context.Context, f *persistence.FileRecord) error {
	return i.namedExec(ctx, insertFileSQL, fileRow{
		ID:        f.ID,
		Checksum:  f.Checksum,
		Name:      f.Name,
		MimeType:  f.MimeType,
		Size:      f.Size,
		CreatedAt: f.CreatedAt.UTC(),
	})
}

func (i *SQLiteInteractor) SelectFile(ctx context.Context, id string) (*persistence.FileRecord, error) {
	var row fileRow
	if err := i.get(ctx, &row, "file", id, selectFileSQL); err != nil {
		return nil, err
	}
	f := row.toModel()
	return &f, nil
}

func (i *SQLiteInteractor) LinkFiles(ctx context.Context, versionID string, fileIDs []string) error {
	for _, fileID := range fileIDs {
		if _, err := i.exec(ctx, linkFileSQL, versionID, fileID); err != nil {
			return fmt.Errorf("failed to link file %s to %s: %w", fileID, versionID, err)
		}
	}
	return nil
}

func (i *SQLiteInteractor) SelectVersionFiles(ctx context.Context, versionID string) ([]persistence.FileRecord, error) {
	var rows []fileRow
	if err := i.selectRows(ctx, &rows, selectVersionFilesSQL, versionID); err != nil {
		return nil, err
	}
	out := make([]persistence.FileRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (i *SQLiteInteractor) ReplaceBlockingKeys(ctx context.Context, collectionID, documentID string, keys []string) error {
	if _, err := i.exec(ctx, deleteBlockingKeysSQL, documentID); err != nil {
		return fmt.Errorf("failed to clear blocking keys of %s: %w", documentID, err)
	}
	for _, key := range keys {
		if _, err := i.exec(ctx, insertBlockingKeySQL, collectionID, documentID, key); err != nil {
			return fmt.Errorf("failed to store blocking key of %s: %w", documentID, err)
		}
	}
	return nil
}

func (i *SQLiteInteractor) FindByBlockingKeys(ctx context.Context, collectionID string, keys []string, excludeDocumentID string) (string, error) {
	if len(keys) == 0 {
		return "", nil
	}
	query, args, err := sqlx.In(findByBlockingKeysSQL, collectionID, excludeDocumentID, keys)
	if err != nil {
		return "", fmt.Errorf("failed to expand blocking key query: %w", err)
	}
	query = i.runner().Rebind(query)

	var ids []string
	if err := i.selectRows(ctx, &ids, query, args...); err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func (i *SQLiteInteractor) LoadShards(ctx context.Context, index string) ([]search.Shard, error) {
	var rows []shardRow
	if err := i.selectRows(ctx, &rows, loadShardsSQL, index); err != nil {
		return nil, err
	}
	out := make([]search.Shard, 0, len(rows))
	for _, row := range rows {
		out = append(out, search.Shard{Index: row.IndexName, Key: row.ShardKey, Data: row.Data})
	}
	return out, nil
}

func (i *SQLiteInteractor) SaveShards(ctx context.Context, shards []search.Shard) error {
	now := time.Now().UTC()
	for _, s := range shards {
		if _, err := i.exec(ctx, saveShardSQL, s.Index, s.Key, s.Data, now); err != nil {
			return fmt.Errorf("failed to save shard %s/%d: %w", s.Index, s.Key, err)
		}
	}
	return nil
}

func (i *SQLiteInteractor) DeleteShards(ctx context.Context, index string, fromKey int) error {
	if _, err := i.exec(ctx, deleteShardsSQL, index, fromKey); err != nil {
		return fmt.Errorf("failed to delete shards %s/%d+: %w", index, fromKey, err)
	}
	return nil
}

// StartTransaction begins a new database transaction and returns a new SQLiteInteractor
// that is scoped to that transaction.
func (i *SQLiteInteractor) StartTransaction(ctx context.Context) (persistence.DatabaseInteractor, error) {
	if i.tx != nil {
		return nil, fmt.Errorf("cannot start a new transaction from an existing transactional interactor")
	}

	tx, err := i.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	i.logger.Debug("Transaction initiated, returning new transactional interactor")
	return NewSQLiteInteractor(i.db, i.logger, tx), nil
}

// Commit commits the current transaction.
func (i *SQLiteInteractor) Commit(ctx context.Context) error {
	if i.tx == nil {
		return fmt.Errorf("commit not applicable: not in a transactional context")
	}
	i.logger.Debug("Committing transaction")
	return i.tx.Commit()
}

// Rollback rolls back the current transaction.
func (i *SQLiteInteractor) Rollback(ctx context.Context) error {
	if i.tx == nil {
		return fmt.Errorf("rollback not applicable: not in a transactional context")
	}
	i.logger.Debug("Rolling back transaction")
	return i.tx.Rollback()
}
