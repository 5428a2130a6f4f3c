package persistence_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/core/search"
)

const addCurrency = `module.exports = function (e) { e.currency = "EUR"; return e; };`

func TestCreateCollectionValidation(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	tests := []struct {
		name     string
		settings persistence.CollectionSettings
		schema   *schema.Schema
		version  persistence.VersionSettings
		wantPath string
	}{
		{
			name:     "missing name",
			settings: persistence.CollectionSettings{},
			schema:   expensesSchema(),
			version:  expensesSettings(),
			wantPath: "name",
		},
		{
			name:     "missing summary",
			settings: persistence.CollectionSettings{Name: "Expenses"},
			schema:   expensesSchema(),
			version:  persistence.VersionSettings{},
			wantPath: "summary",
		},
		{
			name:     "summary does not compile",
			settings: persistence.CollectionSettings{Name: "Expenses"},
			schema:   expensesSchema(),
			version:  persistence.VersionSettings{Summary: unit(`module.exports = function (`)},
			wantPath: "summary",
		},
		{
			name:     "root is not a struct",
			settings: persistence.CollectionSettings{Name: "Expenses"},
			schema: &schema.Schema{
				RootType: "Title",
				Types:    map[string]*schema.TypeDefinition{"Title": schema.String()},
			},
			version:  expensesSettings(),
			wantPath: "rootType",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreateCollection(ctx, tt.settings, tt.schema, tt.version)
			var verr *persistence.ValidationError
			require.ErrorAs(t, err, &verr)

			var paths []string
			for _, issue := range verr.Issues {
				paths = append(paths, issue.Path)
			}
			assert.Contains(t, paths, tt.wantPath)
		})
	}

	cols, err := p.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestMigrationAddsCurrency(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	coffee := createDocument(t, p, col.ID, map[string]any{"title": "Coffee", "amount": 3.5})
	plumber := createDocument(t, p, col.ID, map[string]any{"title": "Plumber", "amount": 90.0})

	version, err := p.CreateCollectionVersion(ctx, col.ID, col.LatestVersionID, expensesWithCurrency(),
		persistence.VersionSettings{
			Summary:      unit(expenseSummary),
			BlockingKeys: unitPtr(expenseBlockingKeys),
			Migration:    unitPtr(addCurrency),
		})
	require.NoError(t, err)
	assert.Equal(t, col.LatestVersionID, version.PreviousVersionID)

	for _, id := range []string{coffee.ID, plumber.ID} {
		t.Run(id, func(t *testing.T) {
			doc, err := p.GetDocument(ctx, id)
			require.NoError(t, err)
			content := doc.Latest.Content.(map[string]any)
			assert.Equal(t, "EUR", content["currency"])
			assert.Equal(t, version.ID, doc.Latest.CollectionVersionID)
			assert.Empty(t, schema.Validate(version.Schema, content))

			history, err := p.DocumentHistory(ctx, id)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.NotContains(t, history[0].Content, "currency")
		})
	}

	got, err := p.GetCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, version.ID, got.LatestVersionID)

	versions, err := p.CollectionVersions(ctx, col.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	hits, err := p.Search(ctx, "plumber", search.Options{Scope: col.ID})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, plumber.ID, hits[0].ID)

	// New writes validate against the migrated schema.
	_, err = p.CreateDocument(ctx, col.ID, map[string]any{"title": "Tea", "amount": 2.0}, persistence.CreateOptions{})
	assert.ErrorIs(t, err, persistence.ErrValidation)
}

func TestFailedMigrationLeavesNothingBehind(t *testing.T) {
	tests := []struct {
		name      string
		migration string
		sandbox   bool
	}{
		{name: "throws on one document", migration: `module.exports = function (e) { if (e.amount > 50) throw new Error("too big"); e.currency = "EUR"; return e; };`, sandbox: true},
		{name: "result does not validate", migration: `module.exports = function (e) { if (e.amount > 50) return e; e.currency = "EUR"; return e; };`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			p := newTestPersistence(t)
			col := createExpenses(t, p)
			createDocument(t, p, col.ID, map[string]any{"title": "Coffee", "amount": 3.5})
			big := createDocument(t, p, col.ID, map[string]any{"title": "Plumber", "amount": 90.0})

			_, err := p.CreateCollectionVersion(ctx, col.ID, col.LatestVersionID, expensesWithCurrency(),
				persistence.VersionSettings{Summary: unit(expenseSummary), Migration: unitPtr(tt.migration)})

			var merr *persistence.MigrationError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, big.ID, merr.DocumentID)
			if tt.sandbox {
				_, ok := sandbox.AsFailure(err)
				assert.True(t, ok)
			} else {
				assert.NotEmpty(t, merr.Issues())
			}

			got, err := p.GetCollection(ctx, col.ID)
			require.NoError(t, err)
			assert.Equal(t, col.LatestVersionID, got.LatestVersionID)

			docs, err := p.ListDocuments(ctx, col.ID, persistence.ListOptions{})
			require.NoError(t, err)
			for _, d := range docs {
				history, err := p.DocumentHistory(ctx, d.ID)
				require.NoError(t, err)
				assert.Len(t, history, 1)
				assert.NotContains(t, d.Latest.Content, "currency")
			}
		})
	}
}

func TestCollectionVersionConflict(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)

	_, err := p.CreateCollectionVersion(ctx, col.ID, col.LatestVersionID, expensesSchema(), expensesSettings())
	require.NoError(t, err)

	_, err = p.CreateCollectionVersion(ctx, col.ID, col.LatestVersionID, expensesSchema(), expensesSettings())
	var cerr *persistence.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, col.LatestVersionID, cerr.Expected)
	assert.NotEqual(t, cerr.Expected, cerr.Actual)
}

func TestUpdateCollectionSettings(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)

	updated, err := p.UpdateCollectionSettings(ctx, col.ID, persistence.CollectionSettings{Name: "Household", Category: "home"})
	require.NoError(t, err)
	assert.Equal(t, "Household", updated.Name)

	got, err := p.GetCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, "home", got.Category)
	assert.Equal(t, col.LatestVersionID, got.LatestVersionID)

	_, err = p.UpdateCollectionSettings(ctx, col.ID, persistence.CollectionSettings{Name: strings.Repeat("x", 121)})
	assert.ErrorIs(t, err, persistence.ErrValidation)
}

func TestDeleteCollection(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	doc := createDocument(t, p, col.ID, map[string]any{"title": "Plumber", "amount": 90.0})

	require.ErrorIs(t, p.DeleteCollection(ctx, col.ID, ""), persistence.ErrConfirmationRequired)
	require.NoError(t, p.DeleteCollection(ctx, col.ID, persistence.ConfirmDeletion))

	_, err := p.GetCollection(ctx, col.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = p.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	hits, err := p.Search(ctx, "plumber", search.Options{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.ErrorIs(t, p.DeleteCollection(ctx, col.ID, persistence.ConfirmDeletion), persistence.ErrNotFound)
}

func TestExportCollection(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	doc := createDocument(t, p, col.ID, map[string]any{"title": "Coffee", "amount": 3.5})
	_, err := p.CreateDocumentVersion(ctx, col.ID, doc.ID, doc.LatestVersionID, map[string]any{"title": "Coffee", "amount": 4.0})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.ExportCollection(ctx, col.ID, &buf))

	var out struct {
		Collection struct {
			Name string `yaml:"name"`
		} `yaml:"collection"`
		Versions  []map[string]any `yaml:"versions"`
		Documents []struct {
			History []struct {
				Content map[string]any `yaml:"content"`
			} `yaml:"history"`
		} `yaml:"documents"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "Expenses", out.Collection.Name)
	assert.Len(t, out.Versions, 1)
	require.Len(t, out.Documents, 1)
	require.Len(t, out.Documents[0].History, 2)
	assert.Equal(t, 3.5, out.Documents[0].History[0].Content["amount"])
	assert.Equal(t, 4, out.Documents[0].History[1].Content["amount"])
}
