package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp(t *testing.T) {
	db := openMemory(t)

	require.NoError(t, MigrateUp(db))

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	for _, table := range []string{
		"collections", "collection_versions", "documents", "document_versions",
		"files", "document_version_files", "document_blocking_keys", "search_shards",
	} {
		t.Run(table, func(t *testing.T) {
			var name string
			err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
			require.NoError(t, err)
			assert.Equal(t, table, name)
		})
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := openMemory(t)

	require.NoError(t, MigrateUp(db))
	require.NoError(t, MigrateUp(db))
}

func TestVersionBeforeMigrating(t *testing.T) {
	db := openMemory(t)

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}
