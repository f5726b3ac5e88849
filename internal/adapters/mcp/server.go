// Package mcpadapter exposes document listing and grounded chat as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const (
	serverName          = "doc-chat-service"
	defaultListLimit    = 50
	maxListLimit        = 200
	contentPreviewRunes = 2000
)

type Services struct {
	Documents ports.DocumentReader
	Chat      ports.ChatService
}

type Options struct {
	Version      string
	DefaultLimit int
	MaxLimit     int
}

type tools struct {
	services     Services
	defaultLimit int
	maxLimit     int
}

// New builds an MCP server with list_documents, get_document and ask_document registered.
func New(services Services, opts Options) *server.MCPServer {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	t := newTools(services, opts)

	s := server.NewMCPServer(serverName, opts.Version, server.WithToolCapabilities(false))
	s.AddTool(listDocumentsTool(), t.listDocuments)
	s.AddTool(getDocumentTool(), t.getDocument)
	s.AddTool(askDocumentTool(), t.askDocument)
	return s
}

func newTools(services Services, opts Options) *tools {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultListLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = maxListLimit
	}
	return &tools{services: services, defaultLimit: opts.DefaultLimit, maxLimit: opts.MaxLimit}
}

func listDocumentsTool() mcp.Tool {
	return mcp.NewTool("list_documents",
		mcp.WithDescription("List uploaded documents, newest first, with their ingestion status"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum documents to return"),
		),
	)
}

func getDocumentTool() mcp.Tool {
	return mcp.NewTool("get_document",
		mcp.WithDescription("Get one document's metadata, status and extracted text"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document id returned by upload or list_documents"),
		),
	)
}

func askDocumentTool() mcp.Tool {
	return mcp.NewTool("ask_document",
		mcp.WithDescription("Ask a question answered from one completed document, or a general question when document_id is omitted"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question in any language"),
		),
		mcp.WithString("document_id",
			mcp.Description("Completed document to ground the answer in"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Upper bound on answer length"),
		),
	)
}

func (t *tools) listDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", t.defaultLimit)
	if limit <= 0 {
		limit = t.defaultLimit
	}
	if limit > t.maxLimit {
		limit = t.maxLimit
	}

	docs, err := t.services.Documents.List(ctx, limit)
	if err != nil {
		return toolError("list_documents", err), nil
	}

	type item struct {
		ID        string                `json:"document_id"`
		Filename  string                `json:"filename"`
		Status    domain.DocumentStatus `json:"status"`
		PageCount *int                  `json:"page_count,omitempty"`
		Error     string                `json:"error_message,omitempty"`
	}
	items := make([]item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, item{ID: doc.ID, Filename: doc.Filename, Status: doc.Status, PageCount: doc.PageCount, Error: doc.Error})
	}
	return jsonResult(map[string]any{"total": len(items), "documents": items})
}

func (t *tools) getDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("document_id is required"), nil
	}

	doc, err := t.services.Documents.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return toolError("get_document", err), nil
	}

	view := *doc
	if content, ok := doc.ReadableContent(); ok {
		preview := truncate(content, contentPreviewRunes)
		view.ExtractedContent = &preview
	}
	return jsonResult(view)
}

func (t *tools) askDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	req := domain.ChatRequest{
		Question:  question,
		MaxTokens: request.GetInt("max_tokens", 0),
	}
	if id := strings.TrimSpace(request.GetString("document_id", "")); id != "" {
		req.DocumentID = &id
	}

	answer, err := t.services.Chat.Answer(ctx, req)
	if err != nil {
		return toolError("ask_document", err), nil
	}
	return jsonResult(answer)
}

// toolError reports domain failures as tool results so the agent can read them.
func toolError(tool string, err error) *mcp.CallToolResult {
	code := domain.ErrorCode(err)
	if code == "internal_error" {
		slog.Error("mcp_tool_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal_error: internal server error")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", code, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
