package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/query"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/core/search"
	"github.com/asaidimu/go-quire/utils"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	store  persistence.PersistenceInterface
	logger *zap.Logger
}

// NewHandlers creates handlers over store.
func NewHandlers(store persistence.PersistenceInterface, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{store: store, logger: logger}
}

// ListCollections handles the list_collections tool
func (h *Handlers) ListCollections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cols, err := h.store.ListCollections(ctx)
	if err != nil {
		return h.failure("list collections", err), nil
	}
	return jsonResult(map[string]any{"collections": cols, "count": len(cols)})
}

// GetCollection handles the get_collection tool
func (h *Handlers) GetCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("collection_id")
	if err != nil {
		return mcp.NewToolResultError("collection_id argument is required and must be a string"), nil
	}
	col, err := h.store.GetCollection(ctx, id)
	if err != nil {
		return h.failure("get collection", err), nil
	}
	return jsonResult(col)
}

// CreateCollection handles the create_collection tool
func (h *Handlers) CreateCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required and must be a string"), nil
	}
	s, vs, errResult := versionArguments(request)
	if errResult != nil {
		return errResult, nil
	}
	settings := persistence.CollectionSettings{
		Name:         name,
		Icon:         request.GetString("icon", ""),
		Category:     request.GetString("category", ""),
		Instructions: request.GetString("instructions", ""),
	}
	col, err := h.store.CreateCollection(ctx, settings, s, vs)
	if err != nil {
		return h.failure("create collection", err), nil
	}
	return jsonResult(col)
}

// CreateCollectionVersion handles the create_collection_version tool
func (h *Handlers) CreateCollectionVersion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("collection_id")
	if err != nil {
		return mcp.NewToolResultError("collection_id argument is required and must be a string"), nil
	}
	expected, err := request.RequireString("expected_version_id")
	if err != nil {
		return mcp.NewToolResultError("expected_version_id argument is required and must be a string"), nil
	}
	s, vs, errResult := versionArguments(request)
	if errResult != nil {
		return errResult, nil
	}
	if code := request.GetString("migration", ""); code != "" {
		u := sandbox.FromSource(code)
		vs.Migration = &u
	}
	version, err := h.store.CreateCollectionVersion(ctx, id, expected, s, vs)
	if err != nil {
		return h.failure("create collection version", err), nil
	}
	return jsonResult(version)
}

// DeleteCollection handles the delete_collection tool
func (h *Handlers) DeleteCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("collection_id")
	if err != nil {
		return mcp.NewToolResultError("collection_id argument is required and must be a string"), nil
	}
	if err := h.store.DeleteCollection(ctx, id, request.GetString("confirmation", "")); err != nil {
		return h.failure("delete collection", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("collection %s deleted", id)), nil
}

// CreateDocument handles the create_document tool
func (h *Handlers) CreateDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("collection_id")
	if err != nil {
		return mcp.NewToolResultError("collection_id argument is required and must be a string"), nil
	}
	content, ok := arguments(request)["content"]
	if !ok {
		return mcp.NewToolResultError("content argument is required"), nil
	}
	res, err := h.store.CreateDocument(ctx, id, content, persistence.CreateOptions{Force: request.GetBool("force", false)})
	if err != nil {
		return h.failure("create document", err), nil
	}
	if res.PossibleDuplicate != nil {
		return jsonResult(map[string]any{
			"possibleDuplicate": res.PossibleDuplicate,
			"message": fmt.Sprintf("nothing was written: document %s looks like the same entry. Ask the user, then call again with force=true to create it anyway.",
				res.PossibleDuplicate.ExistingDocumentID),
		})
	}
	return jsonResult(res.Document)
}

// UpdateDocument handles the update_document tool
func (h *Handlers) UpdateDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var ids [3]string
	for i, name := range []string{"collection_id", "document_id", "expected_version_id"} {
		v, err := request.RequireString(name)
		if err != nil {
			return mcp.NewToolResultError(name + " argument is required and must be a string"), nil
		}
		ids[i] = v
	}
	content, ok := arguments(request)["content"]
	if !ok {
		return mcp.NewToolResultError("content argument is required"), nil
	}
	doc, err := h.store.CreateDocumentVersion(ctx, ids[0], ids[1], ids[2], content)
	if err != nil {
		return h.failure("update document", err), nil
	}
	return jsonResult(doc)
}

// GetDocument handles the get_document tool
func (h *Handlers) GetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id argument is required and must be a string"), nil
	}
	doc, err := h.store.GetDocument(ctx, id)
	if err != nil {
		return h.failure("get document", err), nil
	}
	return jsonResult(doc)
}

// ListDocuments handles the list_documents tool
func (h *Handlers) ListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("collection_id")
	if err != nil {
		return mcp.NewToolResultError("collection_id argument is required and must be a string"), nil
	}
	opts := persistence.ListOptions{
		SortBy:     request.GetString("sort_by", ""),
		Descending: request.GetBool("descending", false),
		Offset:     request.GetInt("offset", 0),
		Limit:      request.GetInt("limit", 0),
	}
	if raw, ok := arguments(request)["filter"]; ok && raw != nil {
		f, err := utils.Decode[*query.QueryFilter](raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid filter: %v", err)), nil
		}
		if err := f.Check(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts.Filter = f
	}
	docs, err := h.store.ListDocuments(ctx, id, opts)
	if err != nil {
		return h.failure("list documents", err), nil
	}

	type entry struct {
		ID              string `json:"id"`
		LatestVersionID string `json:"latestVersionId"`
		Summary         any    `json:"summary"`
	}
	out := make([]entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, entry{ID: d.ID, LatestVersionID: d.LatestVersionID, Summary: d.Summary})
	}
	return jsonResult(map[string]any{"documents": out, "count": len(out)})
}

// DocumentHistory handles the document_history tool
func (h *Handlers) DocumentHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id argument is required and must be a string"), nil
	}
	history, err := h.store.DocumentHistory(ctx, id)
	if err != nil {
		return h.failure("document history", err), nil
	}
	return jsonResult(map[string]any{"versions": history, "count": len(history)})
}

// DeleteDocument handles the delete_document tool
func (h *Handlers) DeleteDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id argument is required and must be a string"), nil
	}
	if err := h.store.DeleteDocument(ctx, id, request.GetString("confirmation", "")); err != nil {
		return h.failure("delete document", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("document %s deleted", id)), nil
}

// Search handles the search_documents tool
func (h *Handlers) Search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	hits, err := h.store.Search(ctx, q, search.Options{
		Scope: request.GetString("collection_id", ""),
		Limit: request.GetInt("limit", 10),
	})
	if err != nil {
		return h.failure("search", err), nil
	}
	return jsonResult(map[string]any{"hits": hits, "count": len(hits)})
}

// failure turns an error into a tool result the assistant can act on.
// Validation issues are listed so the content can be corrected.
func (h *Handlers) failure(action string, err error) *mcp.CallToolResult {
	var verr *persistence.ValidationError
	var cerr *persistence.ConflictError
	var merr *persistence.MigrationError
	switch {
	case errors.As(err, &merr):
		if f, ok := sandbox.AsFailure(merr.Err); ok {
			return mcp.NewToolResultError(fmt.Sprintf("%s: migration failed on document %s (%s): %s", action, merr.DocumentID, f.Kind, f.Message))
		}
		return issuesResult(action+": migration of document "+merr.DocumentID+" does not validate", merr.Issues())
	case errors.As(err, &verr):
		return issuesResult(action+": "+verr.Subject+" is invalid", verr.Issues)
	case errors.As(err, &cerr):
		return mcp.NewToolResultError(fmt.Sprintf("%s: the latest version is now %s, not %s. Read it again before writing.", action, cerr.Actual, cerr.Expected))
	case errors.Is(err, persistence.ErrConfirmationRequired):
		return mcp.NewToolResultError(fmt.Sprintf("%s: ask the user to confirm, then pass confirmation=%q", action, persistence.ConfirmDeletion))
	case errors.Is(err, persistence.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
	}
	h.logger.Error("tool call failed", zap.String("action", action), zap.Error(err))
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err))
}

func issuesResult(message string, issues []schema.Issue) *mcp.CallToolResult {
	data, err := json.Marshal(issues)
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	return mcp.NewToolResultError(message + ": " + string(data))
}

func versionArguments(request mcp.CallToolRequest) (*schema.Schema, persistence.VersionSettings, *mcp.CallToolResult) {
	var vs persistence.VersionSettings
	raw, ok := arguments(request)["schema"]
	if !ok {
		return nil, vs, mcp.NewToolResultError("schema argument is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, vs, mcp.NewToolResultError(fmt.Sprintf("invalid schema: %v", err))
	}
	s, err := schema.Parse(data)
	if err != nil {
		return nil, vs, mcp.NewToolResultError(fmt.Sprintf("invalid schema: %v", err))
	}
	summary, err := request.RequireString("summary")
	if err != nil {
		return nil, vs, mcp.NewToolResultError("summary argument is required and must be a string")
	}
	vs.Summary = sandbox.FromSource(summary)
	if code := request.GetString("blocking_keys", ""); code != "" {
		u := sandbox.FromSource(code)
		vs.BlockingKeys = &u
	}
	return s, vs, nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
