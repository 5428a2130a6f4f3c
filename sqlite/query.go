package sqlite

// Statements use ? placeholders; sqlx.In expands the slice arguments of the
// blocking key lookup.
const (
	insertCollectionSQL = `INSERT INTO collections (id, name, icon, category, instructions, latest_version_id, created_at)
VALUES (:id, :name, :icon, :category, :instructions, :latest_version_id, :created_at)`

	updateCollectionSettingsSQL = `UPDATE collections SET name = ?, icon = ?, category = ?, instructions = ? WHERE id = ?`

	setCollectionLatestSQL = `UPDATE collections SET latest_version_id = ? WHERE id = ? AND latest_version_id = ?`

	selectCollectionSQL = `SELECT id, name, icon, category, instructions, latest_version_id, created_at
FROM collections WHERE id = ?`

	selectCollectionsSQL = `SELECT id, name, icon, category, instructions, latest_version_id, created_at
FROM collections ORDER BY name, id`

	insertCollectionVersionSQL = `INSERT INTO collection_versions (id, collection_id, previous_version_id, schema, settings, created_at)
VALUES (:id, :collection_id, :previous_version_id, :schema, :settings, :created_at)`

	selectCollectionVersionSQL = `SELECT id, collection_id, previous_version_id, schema, settings, created_at
FROM collection_versions WHERE id = ?`

	selectCollectionVersionsSQL = `SELECT id, collection_id, previous_version_id, schema, settings, created_at
FROM collection_versions WHERE collection_id = ? ORDER BY created_at, rowid`

	insertDocumentSQL = `INSERT INTO documents (id, collection_id, latest_version_id, origin, created_at)
VALUES (:id, :collection_id, :latest_version_id, :origin, :created_at)`

	setDocumentLatestSQL = `UPDATE documents SET latest_version_id = ? WHERE id = ? AND latest_version_id = ?`

	selectDocumentSQL = `SELECT id, collection_id, latest_version_id, origin, created_at
FROM documents WHERE id = ?`

	selectDocumentsSQL = `SELECT id, collection_id, latest_version_id, origin, created_at
FROM documents WHERE collection_id = ? ORDER BY created_at, rowid`

	insertVersionSQL = `INSERT INTO document_versions (id, document_id, previous_version_id, collection_version_id, snapshot, delta, created_at)
VALUES (:id, :document_id, :previous_version_id, :collection_version_id, :snapshot, :delta, :created_at)`

	clearSnapshotSQL = `UPDATE document_versions SET snapshot = NULL WHERE id = ?`

	selectVersionSQL = `SELECT id, document_id, previous_version_id, collection_version_id, snapshot, delta, created_at
FROM document_versions WHERE id = ?`

	selectVersionChainSQL = `SELECT id, document_id, previous_version_id, collection_version_id, snapshot, delta, created_at
FROM document_versions WHERE document_id = ? ORDER BY created_at, rowid`

	insertFileSQL = `INSERT INTO files (id, checksum, name, mime_type, size, created_at)
VALUES (:id, :checksum, :name, :mime_type, :size, :created_at)`

	selectFileSQL = `SELECT id, checksum, name, mime_type, size, created_at FROM files WHERE id = ?`

	linkFileSQL = `INSERT OR IGNORE INTO document_version_files (version_id, file_id) VALUES (?, ?)`

	selectVersionFilesSQL = `SELECT f.id, f.checksum, f.name, f.mime_type, f.size, f.created_at
FROM files f JOIN document_version_files l ON l.file_id = f.id
WHERE l.version_id = ? ORDER BY f.created_at, f.id`

	deleteBlockingKeysSQL = `DELETE FROM document_blocking_keys WHERE document_id = ?`

	insertBlockingKeySQL = `INSERT OR IGNORE INTO document_blocking_keys (collection_id, document_id, blocking_key) VALUES (?, ?, ?)`

	findByBlockingKeysSQL = `SELECT k.document_id
FROM document_blocking_keys k JOIN documents d ON d.id = k.document_id
WHERE k.collection_id = ? AND k.document_id <> ? AND k.blocking_key IN (?)
ORDER BY d.created_at, d.rowid LIMIT 1`

	loadShardsSQL = `SELECT index_name, shard_key, data FROM search_shards WHERE index_name = ? ORDER BY shard_key`

	saveShardSQL = `INSERT INTO search_shards (index_name, shard_key, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (index_name, shard_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

	deleteShardsSQL = `DELETE FROM search_shards WHERE index_name = ? AND shard_key >= ?`
)

// deleteDocumentSQL removes a document bottom-up. Each statement takes the
// document id.
var deleteDocumentSQL = []string{
	`DELETE FROM document_blocking_keys WHERE document_id = ?`,
	`DELETE FROM document_version_files WHERE version_id IN (SELECT id FROM document_versions WHERE document_id = ?)`,
	`DELETE FROM document_versions WHERE document_id = ?`,
	`DELETE FROM documents WHERE id = ?`,
}

// deleteCollectionSQL removes a collection bottom-up. Each statement takes
// the collection id.
var deleteCollectionSQL = []string{
	`DELETE FROM document_blocking_keys WHERE collection_id = ?`,
	`DELETE FROM document_version_files WHERE version_id IN (
		SELECT v.id FROM document_versions v JOIN documents d ON d.id = v.document_id WHERE d.collection_id = ?)`,
	`DELETE FROM document_versions WHERE document_id IN (SELECT id FROM documents WHERE collection_id = ?)`,
	`DELETE FROM documents WHERE collection_id = ?`,
	`DELETE FROM collection_versions WHERE collection_id = ?`,
	`DELETE FROM collections WHERE id = ?`,
}
