package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/asaidimu/go-quire/core/ids"
	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/metrics"
	"github.com/asaidimu/go-quire/sqlite"
)

const summaryCode = `module.exports = function (e) { return { "{position:1,sortable:true}title": e.title, "{position:2,default-sort:desc,sortable:true}amount": e.amount }; };`

func newTestServer(t *testing.T) (*httptest.Server, *persistence.Persistence) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p, err := persistence.NewPersistence(sqlite.NewSQLiteInteractor(db, logger, nil),
		persistence.WithLogger(logger),
		persistence.WithIDGenerator(&ids.SequentialGenerator{}),
		persistence.WithRecorder(m),
	)
	require.NoError(t, err)
	require.NoError(t, p.Open(context.Background()))

	ts := httptest.NewServer(New(p, reg, logger).Routes())
	t.Cleanup(ts.Close)
	return ts, p
}

func seed(t *testing.T, p *persistence.Persistence) (*persistence.CollectionView, *persistence.DocumentView) {
	t.Helper()
	ctx := context.Background()
	col, err := p.CreateCollection(ctx, persistence.CollectionSettings{Name: "Expenses"},
		&schema.Schema{
			RootType: "Expense",
			Types: map[string]*schema.TypeDefinition{
				"Expense": schema.Struct(map[string]*schema.TypeDefinition{
					"title":   schema.String(),
					"amount":  schema.Number(),
					"receipt": schema.File(),
				}, "receipt"),
			},
		},
		persistence.VersionSettings{Summary: sandbox.Unit{Source: summaryCode, Compiled: summaryCode}})
	require.NoError(t, err)

	res, err := p.CreateDocument(ctx, col.ID, map[string]any{
		"title":  "Plumber",
		"amount": 90.0,
		"receipt": map[string]any{
			"name":     "invoice.txt",
			"mimeType": "text/plain",
			"bytes":    base64.StdEncoding.EncodeToString([]byte("pipes fixed")),
		},
	}, persistence.CreateOptions{})
	require.NoError(t, err)
	_, err = p.CreateDocument(ctx, col.ID, map[string]any{"title": "Coffee", "amount": 3.5}, persistence.CreateOptions{})
	require.NoError(t, err)
	return col, res.Document
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestRoutes(t *testing.T) {
	ts, p := newTestServer(t)
	col, doc := seed(t, p)
	receipt := doc.Latest.Content.(map[string]any)["receipt"].(map[string]any)

	filter := url.QueryEscape(`{"condition":{"field":"amount","operator":"lt","value":10}}`)
	tests := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{name: "health", path: "/healthz", status: http.StatusOK, contains: "ok"},
		{name: "collections", path: "/v1/collections", status: http.StatusOK, contains: "Expenses"},
		{name: "collection", path: "/v1/collections/" + col.ID, status: http.StatusOK, contains: col.LatestVersionID},
		{name: "missing collection", path: "/v1/collections/Collection_404", status: http.StatusNotFound},
		{name: "document", path: "/v1/documents/" + doc.ID, status: http.StatusOK, contains: "Plumber"},
		{name: "history", path: "/v1/documents/" + doc.ID + "/history", status: http.StatusOK, contains: doc.LatestVersionID},
		{name: "filtered list", path: "/v1/collections/" + col.ID + "/documents?filter=" + filter, status: http.StatusOK, contains: "Coffee"},
		{name: "bad filter", path: "/v1/collections/" + col.ID + "/documents?filter=%7B%7D", status: http.StatusBadRequest},
		{name: "search", path: "/v1/search?q=plumber", status: http.StatusOK, contains: doc.ID},
		{name: "file", path: "/v1/files/" + receipt["id"].(string), status: http.StatusOK, contains: "pipes fixed"},
		{name: "missing file", path: "/v1/files/File_404", status: http.StatusNotFound},
		{name: "metrics", path: "/metrics", status: http.StatusOK, contains: "quire_store_writes_total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, ts, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.contains != "" {
				assert.Contains(t, string(body), tt.contains)
			}
		})
	}
}

func TestListDocumentsPaging(t *testing.T) {
	ts, p := newTestServer(t)
	col, _ := seed(t, p)

	_, body := get(t, ts, "/v1/collections/"+col.ID+"/documents?limit=1")
	var docs []persistence.DocumentView
	require.NoError(t, json.Unmarshal(body, &docs))
	require.Len(t, docs, 1)
	title, _ := docs[0].Summary.Lookup("title")
	assert.Equal(t, "Plumber", title.Value)
}
