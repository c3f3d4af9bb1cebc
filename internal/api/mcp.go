package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/yomark/internal/index"
	"github.com/kalambet/yomark/internal/manager"
	"github.com/kalambet/yomark/internal/recall"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Manager        *manager.Manager
	Coordinator    *recall.Coordinator
	Index          *index.Index
	Storages       []string
	CurrentStorage string
}

// NewMCPServer creates an MCP server with all yomark tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"yomark",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("yomark — personal bookmark manager with hybrid lexical and semantic recall."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_bookmark",
			mcp.WithDescription("Save a bookmark into the collection."),
			mcp.WithString("url", mcp.Description("The bookmark URL"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Title for the bookmark"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Optional longer description")),
			mcp.WithArray("keywords", mcp.Description("Up to 4 recall keywords")),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
			mcp.WithString("folder", mcp.Description("Folder path, e.g. dev/golang")),
			mcp.WithString("storage", mcp.Description("Storage location name (default: current)")),
		),
		mcpAddBookmark(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Search bookmarks with hybrid lexical and semantic scoring. Returns ranked matches with snippets."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("scope", mcp.Description("Search scope: all, current, or a storage name (default all)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("list_bookmarks",
			mcp.WithDescription("List bookmarks, optionally filtered by storage and folder."),
			mcp.WithString("storage", mcp.Description("Storage location name (default: all)")),
			mcp.WithString("folder", mcp.Description("Folder path filter")),
			mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted bookmarks")),
		),
		mcpListBookmarks(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_bookmark",
			mcp.WithDescription("Soft-delete a bookmark. It can be restored until it is hard-deleted."),
			mcp.WithString("id", mcp.Description("Bookmark ID"), mcp.Required()),
			mcp.WithString("storage", mcp.Description("Storage location name (default: search all)")),
		),
		mcpDeleteBookmark(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"yomark://storages",
			"Storage Locations",
			mcp.WithResourceDescription("Configured storage locations and their record counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStorages(deps),
	)

	return s
}

func mcpAddBookmark(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		storage := req.GetString("storage", "")
		if storage == "" {
			storage = deps.CurrentStorage
		}

		rec, err := deps.Manager.Create(ctx, manager.CreateParams{
			URL:             url,
			Title:           title,
			StorageLocation: storage,
			Description:     req.GetString("description", ""),
			Keywords:        req.GetStringSlice("keywords", nil),
			Tags:            req.GetStringSlice("tags", nil),
			FolderPath:      req.GetString("folder", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Saved bookmark %s (%s)", rec.ID, rec.Title)), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		result, err := deps.Coordinator.Query(ctx, recall.Request{
			Text:  query,
			Scope: req.GetString("scope", ""),
			Limit: req.GetInt("limit", 0),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}

		if len(result.Results) == 0 {
			return mcpText("[]"), nil
		}

		type resultSummary struct {
			ID             string   `json:"id"`
			Title          string   `json:"title"`
			URL            string   `json:"url"`
			Score          float64  `json:"score"`
			Snippet        string   `json:"snippet,omitempty"`
			MatchedFields  []string `json:"matched_fields,omitempty"`
			Mode           string   `json:"mode"`
			FallbackReason string   `json:"fallback_reason,omitempty"`
		}

		summaries := make([]resultSummary, len(result.Results))
		for i, item := range result.Results {
			summaries[i] = resultSummary{
				ID:             item.Bookmark.ID,
				Title:          item.Bookmark.Title,
				URL:            item.Bookmark.URL,
				Score:          item.Score,
				Snippet:        item.Snippet,
				MatchedFields:  item.MatchedFields,
				Mode:           result.Mode,
				FallbackReason: result.FallbackReason,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpListBookmarks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		records := deps.Manager.List(
			req.GetString("storage", ""),
			req.GetBool("include_deleted", false),
			req.GetString("folder", ""),
		)

		type bookmarkSummary struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			URL     string `json:"url"`
			Folder  string `json:"folder,omitempty"`
			Storage string `json:"storage"`
			Deleted bool   `json:"deleted,omitempty"`
		}

		summaries := make([]bookmarkSummary, len(records))
		for i, rec := range records {
			summaries[i] = bookmarkSummary{
				ID:      rec.ID,
				Title:   rec.Title,
				URL:     rec.URL,
				Folder:  rec.FolderPath,
				Storage: rec.StorageLocation,
				Deleted: rec.Deleted,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal bookmarks: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpDeleteBookmark(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rec, err := deps.Manager.SoftDelete(ctx, req.GetString("storage", ""), id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to delete: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Deleted bookmark %s (%s). Restore with the REST API or CLI if this was a mistake.", rec.ID, rec.Title)), nil
	}
}

func mcpResourceStorages(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type storageSummary struct {
			Name    string `json:"name"`
			Current bool   `json:"current"`
			Total   int    `json:"total"`
			Active  int    `json:"active"`
			Deleted int    `json:"deleted"`
		}

		summaries := make([]storageSummary, len(deps.Storages))
		for i, name := range deps.Storages {
			stats := deps.Index.StorageStats(name)
			summaries[i] = storageSummary{
				Name:    name,
				Current: name == deps.CurrentStorage,
				Total:   stats.Total,
				Active:  stats.Active,
				Deleted: stats.Deleted,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal storages: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
