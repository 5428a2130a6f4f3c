// Package mcp exposes the versioned store to assistants as Model Context
// Protocol tools served over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/core/persistence"
)

type props = map[string]any

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func object(description string) map[string]any {
	return map[string]any{"type": "object", "description": description}
}

const guestCodeHelp = "CommonJS JavaScript whose module.exports is a function of the document content"

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, store persistence.PersistenceInterface, logger *zap.Logger) *Handlers {
	h := NewHandlers(store, logger)

	server.AddTool(mcp.Tool{
		Name:        "list_collections",
		Description: "List every collection with its name, category and latest schema version id.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: props{}},
	}, h.ListCollections)

	server.AddTool(mcp.Tool{
		Name:        "get_collection",
		Description: "Get a collection with its latest schema and settings. Read the instructions before writing documents.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props{"collection_id": str("Collection id")},
			Required:   []string{"collection_id"},
		},
	}, h.GetCollection)

	server.AddTool(mcp.Tool{
		Name:        "create_collection",
		Description: "Create a collection with a schema and a summary getter.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: props{
				"name":          str("Display name"),
				"icon":          str("Optional icon name"),
				"category":      str("Optional category"),
				"instructions":  str("Optional instructions for writing documents"),
				"schema":        object("Schema with rootType and types"),
				"summary":       str("Summary getter, " + guestCodeHelp + " returning an object of labelled values"),
				"blocking_keys": str("Optional blocking-keys getter, " + guestCodeHelp + " returning an array of strings"),
			},
			Required: []string{"name", "schema", "summary"},
		},
	}, h.CreateCollection)

	server.AddTool(mcp.Tool{
		Name:        "create_collection_version",
		Description: "Change a collection's schema. Existing documents are migrated all-or-nothing; a failed migration changes nothing.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: props{
				"collection_id":       str("Collection id"),
				"expected_version_id": str("The latest collection version id you read"),
				"schema":              object("New schema with rootType and types"),
				"summary":             str("Summary getter, " + guestCodeHelp),
				"blocking_keys":       str("Optional blocking-keys getter"),
				"migration":           str("Optional migration, " + guestCodeHelp + " returning the migrated content"),
			},
			Required: []string{"collection_id", "expected_version_id", "schema", "summary"},
		},
	}, h.CreateCollectionVersion)

	server.AddTool(mcp.Tool{
		Name:        "delete_collection",
		Description: "Delete a collection with all its documents. Requires confirmation set to " + persistence.ConfirmDeletion + " after the user agreed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: props{
				"collection_id": str("Collection id"),
				"confirmation":  str("Must be " + persistence.ConfirmDeletion),
			},
			Required: []string{"collection_id"},
		},
	}, h.DeleteCollection)

	server.AddTool(mcp.Tool{
		Name:        "create_document",
		Description: "Create a document. If a similar document exists the result names it instead of writing; ask the user, then call again with force set to true to write anyway.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: props{
				"collection_id": str("Collection id"),
				"content":       object("Document content matching the collection schema. Files are {name, mimeType, bytes} with base64 bytes."),
				"force":         map[string]any{"type": "boolean", "description": "Write even when a possible duplicate exists", "default": false},
			},
			Required: []string{"collection_id", "content"},
		},
	}, h.CreateDocument)

	server.AddTool(mcp.Tool{
		Name:        "update_document",
		Description: "Write a new version of a document. Fails with a conflict if expected_version_id is no longer the latest.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: props{
				"collection_id":       str("Collection id"),
				"document_id":         str("Document id"),
				"expected_version_id": str("The latest document version id you read"),
				"content":             object("Full new content"),
			},
			Required: []string{"collection_id", "document_id", "expected_version_id", "content"},
		},
	}, h.UpdateDocument)

	server.AddTool(mcp.Tool{
		Name:        "get_document",
		Description: "Get a document's latest content and summary.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props{"document_id": str("Document id")},
			Required:   []string{"document_id"},
		},
	}, h.GetDocument)

	server.AddTool(mcp.Tool{
		Name:        "list_documents",
		Description: "List a collection's documents with their summaries.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: props{
				"collection_id": str("Collection id"),
				"sort_by":       str("Optional sortable summary label"),
				"descending":    map[string]any{"type": "boolean", "description": "Reverse the sort"},
				"filter":        object("Optional filter: {condition:{field,operator,value}} or {group:{operator,conditions}}. Fields are summary labels or content.<path>."),
				"offset":        map[string]any{"type": "number", "description": "Documents to skip"},
				"limit":         map[string]any{"type": "number", "description": "Maximum documents to return"},
			},
			Required: []string{"collection_id"},
		},
	}, h.ListDocuments)

	server.AddTool(mcp.Tool{
		Name:        "document_history",
		Description: "Get every version of a document, oldest first.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props{"document_id": str("Document id")},
			Required:   []string{"document_id"},
		},
	}, h.DocumentHistory)

	server.AddTool(mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document with its history. Requires confirmation set to " + persistence.ConfirmDeletion + " after the user agreed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: props{
				"document_id":  str("Document id"),
				"confirmation": str("Must be " + persistence.ConfirmDeletion),
			},
			Required: []string{"document_id"},
		},
	}, h.DeleteDocument)

	server.AddTool(mcp.Tool{
		Name:        "search_documents",
		Description: "Full-text search over document content and summaries.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: props{
				"query":         str("Search terms"),
				"collection_id": str("Optional collection to search in"),
				"limit":         map[string]any{"type": "number", "description": "Maximum hits (default: 10)", "default": 10},
			},
			Required: []string{"query"},
		},
	}, h.Search)

	return h
}
