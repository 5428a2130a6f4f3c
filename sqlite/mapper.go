package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/schema"
)

// Row types mirror the tables one to one. JSON columns hold the encoded
// schema, version settings and remote origin.

type collectionRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Icon            string    `db:"icon"`
	Category        string    `db:"category"`
	Instructions    string    `db:"instructions"`
	LatestVersionID string    `db:"latest_version_id"`
	CreatedAt       time.Time `db:"created_at"`
}

func collectionToRow(c *persistence.Collection) collectionRow {
	return collectionRow{
		ID:              c.ID,
		Name:            c.Name,
		Icon:            c.Icon,
		Category:        c.Category,
		Instructions:    c.Instructions,
		LatestVersionID: c.LatestVersionID,
		CreatedAt:       c.CreatedAt.UTC(),
	}
}

func (r collectionRow) toModel() persistence.Collection {
	return persistence.Collection{
		ID: r.ID,
		CollectionSettings: persistence.CollectionSettings{
			Name:         r.Name,
			Icon:         r.Icon,
			Category:     r.Category,
			Instructions: r.Instructions,
		},
		LatestVersionID: r.LatestVersionID,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type collectionVersionRow struct {
	ID                string    `db:"id"`
	CollectionID      string    `db:"collection_id"`
	PreviousVersionID string    `db:"previous_version_id"`
	Schema            string    `db:"schema"`
	Settings          string    `db:"settings"`
	CreatedAt         time.Time `db:"created_at"`
}

func collectionVersionToRow(v *persistence.CollectionVersion) (collectionVersionRow, error) {
	s, err := json.Marshal(v.Schema)
	if err != nil {
		return collectionVersionRow{}, fmt.Errorf("failed to encode schema of %s: %w", v.ID, err)
	}
	settings, err := json.Marshal(v.Settings)
	if err != nil {
		return collectionVersionRow{}, fmt.Errorf("failed to encode settings of %s: %w", v.ID, err)
	}
	return collectionVersionRow{
		ID:                v.ID,
		CollectionID:      v.CollectionID,
		PreviousVersionID: v.PreviousVersionID,
		Schema:            string(s),
		Settings:          string(settings),
		CreatedAt:         v.CreatedAt.UTC(),
	}, nil
}

func (r collectionVersionRow) toModel() (*persistence.CollectionVersion, error) {
	s, err := schema.Parse([]byte(r.Schema))
	if err != nil {
		return nil, fmt.Errorf("collection version %s: %w", r.ID, err)
	}
	var settings persistence.VersionSettings
	if err := json.Unmarshal([]byte(r.Settings), &settings); err != nil {
		return nil, fmt.Errorf("collection version %s: failed to decode settings: %w", r.ID, err)
	}
	return &persistence.CollectionVersion{
		ID:                r.ID,
		CollectionID:      r.CollectionID,
		PreviousVersionID: r.PreviousVersionID,
		Schema:            s,
		Settings:          settings,
		CreatedAt:         r.CreatedAt.UTC(),
	}, nil
}

type documentRow struct {
	ID              string         `db:"id"`
	CollectionID    string         `db:"collection_id"`
	LatestVersionID string         `db:"latest_version_id"`
	Origin          sql.NullString `db:"origin"`
	CreatedAt       time.Time      `db:"created_at"`
}

func documentToRow(d *persistence.Document) (documentRow, error) {
	row := documentRow{
		ID:              d.ID,
		CollectionID:    d.CollectionID,
		LatestVersionID: d.LatestVersionID,
		CreatedAt:       d.CreatedAt.UTC(),
	}
	if d.Origin != nil {
		raw, err := json.Marshal(d.Origin)
		if err != nil {
			return documentRow{}, fmt.Errorf("failed to encode origin of %s: %w", d.ID, err)
		}
		row.Origin = sql.NullString{String: string(raw), Valid: true}
	}
	return row, nil
}

func (r documentRow) toModel() (persistence.Document, error) {
	doc := persistence.Document{
		ID:              r.ID,
		CollectionID:    r.CollectionID,
		LatestVersionID: r.LatestVersionID,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.Origin.Valid {
		doc.Origin = &persistence.RemoteOrigin{}
		if err := json.Unmarshal([]byte(r.Origin.String), doc.Origin); err != nil {
			return persistence.Document{}, fmt.Errorf("document %s: failed to decode origin: %w", r.ID, err)
		}
	}
	return doc, nil
}

type versionRow struct {
	ID                  string         `db:"id"`
	DocumentID          string         `db:"document_id"`
	PreviousVersionID   string         `db:"previous_version_id"`
	CollectionVersionID string         `db:"collection_version_id"`
	Snapshot            sql.NullString `db:"snapshot"`
	Delta               string         `db:"delta"`
	CreatedAt           time.Time      `db:"created_at"`
}

func versionToRow(r *persistence.VersionRecord) versionRow {
	row := versionRow{
		ID:                  r.ID,
		DocumentID:          r.DocumentID,
		PreviousVersionID:   r.PreviousVersionID,
		CollectionVersionID: r.CollectionVersionID,
		Delta:               string(r.Delta),
		CreatedAt:           r.CreatedAt.UTC(),
	}
	if len(r.Snapshot) > 0 {
		row.Snapshot = sql.NullString{String: string(r.Snapshot), Valid: true}
	}
	return row
}

func (r versionRow) toModel() persistence.VersionRecord {
	rec := persistence.VersionRecord{
		ID:                  r.ID,
		DocumentID:          r.DocumentID,
		PreviousVersionID:   r.PreviousVersionID,
		CollectionVersionID: r.CollectionVersionID,
		Delta:               json.RawMessage(r.Delta),
		CreatedAt:           r.CreatedAt.UTC(),
	}
	if r.Snapshot.Valid {
		rec.Snapshot = json.RawMessage(r.Snapshot.String)
	}
	return rec
}

type fileRow struct {
	ID        string    `db:"id"`
	Checksum  string    `db:"checksum"`
	Name      string    `db:"name"`
	MimeType  string    `db:"mime_type"`
	Size      int64     `db:"size"`
	CreatedAt time.Time `db:"created_at"`
}

func (r fileRow) toModel() persistence.FileRecord {
	return persistence.FileRecord{
		ID:        r.ID,
		Checksum:  r.Checksum,
		Name:      r.Name,
		MimeType:  r.MimeType,
		Size:      r.Size,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type shardRow struct {
	IndexName string `db:"index_name"`
	ShardKey  int    `db:"shard_key"`
	Data      []byte `db:"data"`
}
