package persistence_test

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-quire/blob"
	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/query"
	"github.com/asaidimu/go-quire/core/search"
)

func TestExpensesDuplicateScenario(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	coffee := map[string]any{"title": "Coffee", "amount": 3.5}

	first := createDocument(t, p, col.ID, coffee)

	docs, err := p.ListDocuments(ctx, col.ID, persistence.ListOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	title, ok := docs[0].Summary.Lookup("title")
	require.True(t, ok)
	assert.Equal(t, "Coffee", title.Value)

	res, err := p.CreateDocument(ctx, col.ID, coffee, persistence.CreateOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.Document)
	require.NotNil(t, res.PossibleDuplicate)
	assert.Equal(t, first.ID, res.PossibleDuplicate.ExistingDocumentID)
	assert.Equal(t, []string{"coffee|3.5"}, res.PossibleDuplicate.Keys)

	docs, err = p.ListDocuments(ctx, col.ID, persistence.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 1, "a reported duplicate must not be written")

	res, err = p.CreateDocument(ctx, col.ID, coffee, persistence.CreateOptions{Force: true})
	require.NoError(t, err)
	require.NotNil(t, res.Document)

	docs, err = p.ListDocuments(ctx, col.ID, persistence.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestCreateDocumentValidation(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)

	tests := []struct {
		name     string
		content  map[string]any
		wantCode string
	}{
		{name: "missing field", content: map[string]any{"title": "Coffee"}, wantCode: "REQUIRED_FIELD_MISSING"},
		{name: "wrong type", content: map[string]any{"title": "Coffee", "amount": "cheap"}, wantCode: "TYPE_MISMATCH"},
		{name: "unknown field", content: map[string]any{"title": "Coffee", "amount": 1, "mood": "good"}, wantCode: "UNEXPECTED_FIELD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreateDocument(ctx, col.ID, tt.content, persistence.CreateOptions{})
			require.ErrorIs(t, err, persistence.ErrValidation)

			var verr *persistence.ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Issues)
			assert.Equal(t, tt.wantCode, verr.Issues[0].Code)
		})
	}

	_, err := p.CreateDocument(ctx, "Collection_missing", map[string]any{}, persistence.CreateOptions{})
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestDocumentHistoryReconstructsEveryVersion(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)

	contents := []map[string]any{
		{"title": "Coffee", "amount": 3.5},
		{"title": "Coffee", "amount": 4.0},
		{"title": "Coffee and cake", "amount": 7.25},
	}
	doc := createDocument(t, p, col.ID, contents[0])
	latest := doc.LatestVersionID
	for _, c := range contents[1:] {
		view, err := p.CreateDocumentVersion(ctx, col.ID, doc.ID, latest, c)
		require.NoError(t, err)
		assert.Equal(t, latest, view.Latest.PreviousVersionID)
		latest = view.LatestVersionID
	}

	history, err := p.DocumentHistory(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, history, len(contents))
	for i, v := range history {
		t.Run(v.ID, func(t *testing.T) {
			assert.Equal(t, contents[i], v.Content)

			single, err := p.DocumentVersionContent(ctx, v.ID)
			require.NoError(t, err)
			assert.Equal(t, contents[i], single.Content)
		})
	}

	got, err := p.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, latest, got.Latest.ID)
	assert.Equal(t, contents[2], got.Latest.Content)
}

func TestConcurrentVersionsConflict(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	doc := createDocument(t, p, col.ID, map[string]any{"title": "Coffee", "amount": 3.5})

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.CreateDocumentVersion(ctx, col.ID, doc.ID, doc.LatestVersionID,
				map[string]any{"title": "Coffee", "amount": float64(4 + i)})
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, persistence.ErrConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	history, err := p.DocumentHistory(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestFailingGettersNeverBlockWrites(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{name: "throws", code: `module.exports = function () { throw new Error("boom"); };`},
		{name: "loops", code: `module.exports = function () { for (;;) {} };`},
		{name: "not serializable", code: `module.exports = function () { var a = {}; a.self = a; return a; };`},
		{name: "wrong shape", code: `module.exports = function () { return 42; };`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			p := newTestPersistence(t)
			col, err := p.CreateCollection(ctx, persistence.CollectionSettings{Name: "Broken"}, expensesSchema(),
				persistence.VersionSettings{Summary: unit(tt.code), BlockingKeys: unitPtr(tt.code)})
			require.NoError(t, err)

			content := map[string]any{"title": "Coffee", "amount": 3.5}
			first := createDocument(t, p, col.ID, content)
			assert.NotEmpty(t, first.Summary.Error)
			assert.Empty(t, first.Summary.Values)

			// Duplicate detection is off when the getter fails.
			second := createDocument(t, p, col.ID, content)
			assert.NotEqual(t, first.ID, second.ID)
		})
	}
}

func TestProtoFilesAreExtracted(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	receipt := []byte("PNG receipt bytes")

	doc := createDocument(t, p, col.ID, map[string]any{
		"title":  "Taxi",
		"amount": 12.0,
		"receipt": map[string]any{
			"name":     "receipt.png",
			"mimeType": "image/png",
			"bytes":    base64.StdEncoding.EncodeToString(receipt),
		},
	})

	content := doc.Latest.Content.(map[string]any)
	ref := content["receipt"].(map[string]any)
	assert.NotContains(t, ref, "bytes")
	assert.Equal(t, "receipt.png", ref["name"])
	fileID := ref["id"].(string)

	rec, data, err := p.FileContent(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, receipt, data)
	assert.Equal(t, "image/png", rec.MimeType)
	assert.Equal(t, int64(len(receipt)), rec.Size)

	// A new version may keep the persisted reference.
	_, err = p.CreateDocumentVersion(ctx, col.ID, doc.ID, doc.LatestVersionID, map[string]any{
		"title": "Taxi", "amount": 13.0, "receipt": ref,
	})
	require.NoError(t, err)

	_, err = p.CreateDocument(ctx, col.ID, map[string]any{
		"title": "Bus", "amount": 2.0,
		"receipt": map[string]any{"id": "File_missing", "name": "x.png", "mimeType": "image/png"},
	}, persistence.CreateOptions{})
	assert.ErrorIs(t, err, persistence.ErrValidation)

	_, _, err = p.FileContent(ctx, "File_missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRejectedWritesLeaveNoFileBytes(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	p := newTestPersistence(t, persistence.WithBlobStore(blobs))
	col := createExpenses(t, p)
	createDocument(t, p, col.ID, map[string]any{"title": "Coffee", "amount": 3.5})

	receipt := func(data string) map[string]any {
		return map[string]any{
			"name":     "receipt.png",
			"mimeType": "image/png",
			"bytes":    base64.StdEncoding.EncodeToString([]byte(data)),
		}
	}

	tests := []struct {
		name    string
		content map[string]any
		check   func(t *testing.T, res *persistence.CreateDocumentResult, err error)
	}{
		{
			name:    "reported duplicate",
			content: map[string]any{"title": "Coffee", "amount": 3.5, "receipt": receipt("duplicate bytes")},
			check: func(t *testing.T, res *persistence.CreateDocumentResult, err error) {
				require.NoError(t, err)
				require.NotNil(t, res.PossibleDuplicate)
			},
		},
		{
			name:    "invalid content",
			content: map[string]any{"title": "Coffee", "amount": "lots", "receipt": receipt("invalid bytes")},
			check: func(t *testing.T, res *persistence.CreateDocumentResult, err error) {
				assert.ErrorIs(t, err, persistence.ErrValidation)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.CreateDocument(ctx, col.ID, tt.content, persistence.CreateOptions{})
			tt.check(t, res, err)
			assert.Zero(t, blobs.Len())
		})
	}

	createDocument(t, p, col.ID, map[string]any{"title": "Taxi", "amount": 12.0, "receipt": receipt("taxi bytes")})
	assert.Equal(t, 1, blobs.Len())
}

func TestDeleteDocumentRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	doc := createDocument(t, p, col.ID, map[string]any{"title": "Plumber visit", "amount": 80.0})

	err := p.DeleteDocument(ctx, doc.ID, "yes")
	require.ErrorIs(t, err, persistence.ErrConfirmationRequired)

	require.NoError(t, p.DeleteDocument(ctx, doc.ID, persistence.ConfirmDeletion))

	_, err = p.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = p.DocumentHistory(ctx, doc.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	hits, err := p.Search(ctx, "plumber", search.Options{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	doc := createDocument(t, p, col.ID, map[string]any{"title": "Emergency plumber", "amount": 120.0})
	createDocument(t, p, col.ID, map[string]any{"title": "Groceries", "amount": 40.0})

	hits, err := p.Search(ctx, "plumber", search.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, doc.ID, hits[0].ID)
	assert.Equal(t, col.ID, hits[0].Scope)
	assert.Contains(t, hits[0].Excerpt, "<mark>plumber</mark>")

	hits, err = p.Search(ctx, "plumber", search.Options{Scope: "Collection_other"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := newTestPersistenceOn(t, store)
	col := createExpenses(t, p)
	doc := createDocument(t, p, col.ID, map[string]any{"title": "Emergency plumber", "amount": 120.0})

	// A fresh service over the same store rehydrates from the flushed shards.
	svc := search.NewService(store)
	require.NoError(t, svc.Open(ctx))
	hits := svc.Search(search.Documents, "plumber", search.Options{})
	require.Len(t, hits, 1)
	assert.Equal(t, doc.ID, hits[0].ID)
}

func TestListDocumentsOrdering(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	for _, c := range []map[string]any{
		{"title": "Bread", "amount": 2.0},
		{"title": "Coffee", "amount": 3.5},
		{"title": "Apples", "amount": 5.0},
	} {
		createDocument(t, p, col.ID, c)
	}

	tests := []struct {
		name string
		opts persistence.ListOptions
		want []string
	}{
		{name: "default sort property", opts: persistence.ListOptions{}, want: []string{"Apples", "Coffee", "Bread"}},
		{name: "explicit label", opts: persistence.ListOptions{SortBy: "title"}, want: []string{"Apples", "Bread", "Coffee"}},
		{name: "explicit label descending", opts: persistence.ListOptions{SortBy: "title", Descending: true}, want: []string{"Coffee", "Bread", "Apples"}},
		{name: "unknown label falls back", opts: persistence.ListOptions{SortBy: "nope"}, want: []string{"Apples", "Coffee", "Bread"}},
		{name: "offset and limit", opts: persistence.ListOptions{Offset: 1, Limit: 1}, want: []string{"Coffee"}},
		{name: "offset past end", opts: persistence.ListOptions{Offset: 5}, want: nil},
		{
			name: "summary filter",
			opts: persistence.ListOptions{Filter: query.NewFilterBuilder().Where("amount").Lt(4).Build()},
			want: []string{"Coffee", "Bread"},
		},
		{
			name: "content filter",
			opts: persistence.ListOptions{Filter: query.NewFilterBuilder().Where("content.title").StartsWith("a").Build()},
			want: []string{"Apples"},
		},
		{
			name: "filter with sort and limit",
			opts: persistence.ListOptions{
				Filter: query.NewFilterBuilder().WhereGroup(query.LogicalOperatorNot).Where("title").Eq("Coffee").End().Build(),
				SortBy: "title",
				Limit:  1,
			},
			want: []string{"Apples"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := p.ListDocuments(ctx, col.ID, tt.opts)
			require.NoError(t, err)
			var titles []string
			for _, d := range docs {
				v, _ := d.Summary.Lookup("title")
				titles = append(titles, v.Value.(string))
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestListDocumentsRejectsBadFilters(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)
	createDocument(t, p, col.ID, map[string]any{"title": "Bread", "amount": 2.0})

	filters := map[string]*query.QueryFilter{
		"empty node":          {},
		"unregistered custom": query.NewFilterBuilder().Where("title").Custom("soundex", "brd").Build(),
	}
	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			_, err := p.ListDocuments(ctx, col.ID, persistence.ListOptions{Filter: f})
			assert.ErrorIs(t, err, persistence.ErrValidation)
		})
	}
}

func TestEventsAreEmitted(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	col := createExpenses(t, p)

	var (
		mu     sync.Mutex
		events []persistence.PersistenceEvent
	)
	id := p.RegisterSubscription(persistence.RegisterSubscriptionOptions{
		Event: persistence.DocumentCreateSuccess,
		Callback: func(_ context.Context, e persistence.PersistenceEvent) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
			return nil
		},
	})
	subs, err := p.Subscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 1)

	createDocument(t, p, col.ID, map[string]any{"title": "Coffee", "amount": 3.5})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)

	p.UnregisterSubscription(id)
	subs, err = p.Subscriptions()
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = p.CreateDocument(ctx, col.ID, map[string]any{"title": "Tea", "amount": 2.0}, persistence.CreateOptions{})
	require.NoError(t, err)
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}
