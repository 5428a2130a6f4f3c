package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/core/search"
)

var epoch = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedCollection(t *testing.T, i *SQLiteInteractor) (*persistence.Collection, *persistence.CollectionVersion) {
	t.Helper()
	ctx := context.Background()
	col := &persistence.Collection{
		ID:                 "Collection_1",
		CollectionSettings: persistence.CollectionSettings{Name: "Expenses", Icon: "receipt"},
		LatestVersionID:    "CollectionVersion_1",
		CreatedAt:          epoch,
	}
	version := &persistence.CollectionVersion{
		ID:           "CollectionVersion_1",
		CollectionID: col.ID,
		Schema: &schema.Schema{
			RootType: "Expense",
			Types: map[string]*schema.TypeDefinition{
				"Expense": schema.Struct(map[string]*schema.TypeDefinition{"title": schema.String()}),
			},
		},
		Settings:  persistence.VersionSettings{Summary: sandbox.Unit{Source: "x", Compiled: "module.exports = function (d) { return {}; };"}},
		CreatedAt: epoch,
	}
	require.NoError(t, i.InsertCollection(ctx, col))
	require.NoError(t, i.InsertCollectionVersion(ctx, version))
	return col, version
}

func seedDocument(t *testing.T, i *SQLiteInteractor, id, versionID string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, i.InsertDocument(ctx, &persistence.Document{
		ID: id, CollectionID: "Collection_1", LatestVersionID: versionID, CreatedAt: at,
	}))
	require.NoError(t, i.InsertDocumentVersion(ctx, &persistence.VersionRecord{
		ID:                  versionID,
		DocumentID:          id,
		CollectionVersionID: "CollectionVersion_1",
		Snapshot:            json.RawMessage(`{"title":"Coffee"}`),
		Delta:               json.RawMessage(`[{"op":"add","path":"/title","value":"Coffee"}]`),
		CreatedAt:           at,
	}))
}

func TestCollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	i := NewSQLiteInteractor(newTestDB(t), nil, nil)
	col, version := seedCollection(t, i)

	got, err := i.SelectCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, *col, *got)

	gotVersion, err := i.SelectCollectionVersion(ctx, version.ID)
	require.NoError(t, err)
	assert.True(t, version.Schema.Equal(gotVersion.Schema))
	assert.Equal(t, version.Settings, gotVersion.Settings)

	_, err = i.SelectCollection(ctx, "Collection_missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestSetLatestIsConditional(t *testing.T) {
	ctx := context.Background()
	i := NewSQLiteInteractor(newTestDB(t), nil, nil)
	seedCollection(t, i)
	seedDocument(t, i, "Document_1", "DocumentVersion_1", epoch)

	tests := []struct {
		name     string
		expected string
		next     string
		applied  bool
	}{
		{name: "current expected", expected: "DocumentVersion_1", next: "DocumentVersion_2", applied: true},
		{name: "stale expected", expected: "DocumentVersion_1", next: "DocumentVersion_3", applied: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := i.SetDocumentLatest(ctx, "Document_1", tt.expected, tt.next)
			require.NoError(t, err)
			assert.Equal(t, tt.applied, ok)
		})
	}

	doc, err := i.SelectDocument(ctx, "Document_1")
	require.NoError(t, err)
	assert.Equal(t, "DocumentVersion_2", doc.LatestVersionID)
}

func TestClearSnapshot(t *testing.T) {
	ctx := context.Background()
	i := NewSQLiteInteractor(newTestDB(t), nil, nil)
	seedCollection(t, i)
	seedDocument(t, i, "Document_1", "DocumentVersion_1", epoch)

	require.NoError(t, i.ClearSnapshot(ctx, "DocumentVersion_1"))

	rec, err := i.SelectVersionRecord(ctx, "DocumentVersion_1")
	require.NoError(t, err)
	assert.Empty(t, rec.Snapshot)
	assert.JSONEq(t, `[{"op":"add","path":"/title","value":"Coffee"}]`, string(rec.Delta))
}

func TestFindByBlockingKeys(t *testing.T) {
	ctx := context.Background()
	i := NewSQLiteInteractor(newTestDB(t), nil, nil)
	seedCollection(t, i)
	seedDocument(t, i, "Document_1", "DocumentVersion_1", epoch)
	seedDocument(t, i, "Document_2", "DocumentVersion_2", epoch.Add(time.Minute))
	require.NoError(t, i.ReplaceBlockingKeys(ctx, "Collection_1", "Document_1", []string{"coffee|2024-03-01"}))
	require.NoError(t, i.ReplaceBlockingKeys(ctx, "Collection_1", "Document_2", []string{"coffee|2024-03-01", "tea"}))

	tests := []struct {
		name    string
		keys    []string
		exclude string
		want    string
	}{
		{name: "oldest match wins", keys: []string{"coffee|2024-03-01"}, want: "Document_1"},
		{name: "excluded document skipped", keys: []string{"coffee|2024-03-01"}, exclude: "Document_1", want: "Document_2"},
		{name: "any shared key matches", keys: []string{"juice", "tea"}, want: "Document_2"},
		{name: "no match", keys: []string{"juice"}, want: ""},
		{name: "no keys", keys: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := i.FindByBlockingKeys(ctx, "Collection_1", tt.keys, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	require.NoError(t, i.ReplaceBlockingKeys(ctx, "Collection_1", "Document_2", nil))
	got, err := i.FindByBlockingKeys(ctx, "Collection_1", []string{"tea"}, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	i := NewSQLiteInteractor(newTestDB(t), nil, nil)
	seedCollection(t, i)

	tx, err := i.StartTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument(ctx, &persistence.Document{
		ID: "Document_1", CollectionID: "Collection_1", LatestVersionID: "DocumentVersion_1", CreatedAt: epoch,
	}))
	require.NoError(t, tx.Rollback(ctx))

	_, err = i.SelectDocument(ctx, "Document_1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	_, err = tx.StartTransaction(ctx)
	assert.Error(t, err)
	assert.Error(t, i.Commit(ctx))
}

func TestDeleteCollectionCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	i := NewSQLiteInteractor(db, nil, nil)
	seedCollection(t, i)
	seedDocument(t, i, "Document_1", "DocumentVersion_1", epoch)
	require.NoError(t, i.InsertFile(ctx, &persistence.FileRecord{
		ID: "File_1", Checksum: "abc", Name: "receipt.png", MimeType: "image/png", Size: 3, CreatedAt: epoch,
	}))
	require.NoError(t, i.LinkFiles(ctx, "DocumentVersion_1", []string{"File_1"}))
	require.NoError(t, i.ReplaceBlockingKeys(ctx, "Collection_1", "Document_1", []string{"k"}))

	files, err := i.SelectVersionFiles(ctx, "DocumentVersion_1")
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, i.DeleteCollection(ctx, "Collection_1"))

	for _, table := range []string{"collections", "collection_versions", "documents", "document_versions", "document_version_files", "document_blocking_keys"} {
		t.Run(table, func(t *testing.T) {
			var n int
			require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM "+table))
			assert.Zero(t, n)
		})
	}

	// File rows outlive documents; their bytes are content addressed.
	_, err = i.SelectFile(ctx, "File_1")
	assert.NoError(t, err)
}

func TestShardsUpsert(t *testing.T) {
	ctx := context.Background()
	i := NewSQLiteInteractor(newTestDB(t), nil, nil)

	require.NoError(t, i.SaveShards(ctx, []search.Shard{
		{Index: search.Documents, Key: 1, Data: []byte(`[]`)},
		{Index: search.Documents, Key: 0, Data: []byte(`[{"id":"a"}]`)},
		{Index: search.Conversations, Key: 0, Data: []byte(`[]`)},
	}))
	require.NoError(t, i.SaveShards(ctx, []search.Shard{
		{Index: search.Documents, Key: 1, Data: []byte(`[{"id":"b"}]`)},
	}))

	shards, err := i.LoadShards(ctx, search.Documents)
	require.NoError(t, err)
	require.Len(t, shards, 2)
	assert.Equal(t, 0, shards[0].Key)
	assert.Equal(t, `[{"id":"b"}]`, string(shards[1].Data))

	require.NoError(t, i.DeleteShards(ctx, search.Documents, 1))
	shards, err = i.LoadShards(ctx, search.Documents)
	require.NoError(t, err)
	require.Len(t, shards, 1)
	assert.Equal(t, 0, shards[0].Key)

	others, err := i.LoadShards(ctx, search.Conversations)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}
