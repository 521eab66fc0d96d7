// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tagshelf tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/session"
	"github.com/starford/tagshelf/internal/tagservice"
	"github.com/starford/tagshelf/internal/transfer"
)

const defaultSearchLimit = 50

// Server wraps the MCP server with tagshelf tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *tagservice.Service
	client *http.Client
}

// New creates a new MCP server with all tagshelf tools registered.
func New(svc *tagservice.Service, version string) *Server {
	s := &Server{svc: svc, client: newHTTPClient()}

	s.mcp = server.NewMCPServer(
		"Tagshelf",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_libraries",
		mcp.WithDescription("List tag libraries with their group, category and tag counts. The active library is marked."),
	), s.listLibraries)

	s.mcp.AddTool(mcp.NewTool("switch_library",
		mcp.WithDescription("Make another library the active one. Give either its id or its name."),
		mcp.WithString("id", mcp.Description("Library id")),
		mcp.WithString("name", mcp.Description("Library name (case-insensitive)")),
	), s.switchLibrary)

	s.mcp.AddTool(mcp.NewTool("search_tags",
		mcp.WithDescription("Search tags of the active library. Every whitespace-separated term must match the "+
			"tag name, keyword or a subtitle."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithString("group_id", mcp.Description("Only tags of this group")),
		mcp.WithString("category_id", mcp.Description("Only tags of this category")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tags returned (default 50)")),
	), s.searchTags)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List the groups of the active library with their categories and ids."),
		mcp.WithString("group_id", mcp.Description("Only this group")),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("add_tag",
		mcp.WithDescription("Add a tag to a category of the active library. Tag names are unique within a category."),
		mcp.WithString("category_id", mcp.Required(), mcp.Description("Target category id (see list_categories)")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Tag name")),
		mcp.WithString("keyword", mcp.Description("Text inserted when the tag is used")),
		mcp.WithArray("subtitles", mcp.Description("Extra search terms"), mcp.WithStringItems()),
	), s.addTag)

	s.mcp.AddTool(mcp.NewTool("export_library",
		mcp.WithDescription("Export the active library as a document. With a path, the document is written to the "+
			"exchange directory instead of being returned."),
		mcp.WithString("format", mcp.Description("json (default) or yaml"), mcp.Enum("json", "yaml")),
		mcp.WithString("path", mcp.Description("Exchange-relative file path ending in .json, .yaml or .yml")),
	), s.exportLibrary)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Import a library document into the active library. Give exactly one of content, url "+
			"or path. Read the contract first via get_document_contract or the "+DocumentContractURI+" resource."),
		mcp.WithString("content", mcp.Description("Document text, JSON or YAML")),
		mcp.WithString("url", mcp.Description("http(s) or data: URL of the document")),
		mcp.WithString("path", mcp.Description("Exchange-relative path of the document")),
		mcp.WithString("mode", mcp.Description("merge (default) or replace"), mcp.Enum("merge", "replace")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the library document format contract. "+
			"Call this before writing documents for import_document."),
	), s.getDocumentContract)

	// Resource: document format contract.
	s.mcp.AddResource(
		mcp.NewResource(DocumentContractURI, "Document Format Contract",
			mcp.WithResourceDescription("Portable library document format accepted by import_document."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listLibraries(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	libs, err := s.svc.ListLibraries(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(libs)
}

func (s *Server) switchLibrary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	name := strings.TrimSpace(req.GetString("name", ""))
	if id == "" && name == "" {
		return mcp.NewToolResultError("id or name is required"), nil
	}
	if id == "" {
		libs, err := s.svc.ListLibraries(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		for _, l := range libs {
			if strings.EqualFold(l.Name, name) {
				id = l.ID
				break
			}
		}
		if id == "" {
			return mcp.NewToolResultError(fmt.Sprintf("library %q not found", name)), nil
		}
	}
	if err := s.svc.SwitchLibrary(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.Status(ctx))
}

func (s *Server) searchTags(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.svc.Session().State() != session.StateReady {
		return mcp.NewToolResultError("no active library"), nil
	}
	tags := s.svc.Search(query, session.Filter{
		GroupID:    req.GetString("group_id", ""),
		CategoryID: req.GetString("category_id", ""),
	})
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	return jsonResult(tags)
}

type groupListing struct {
	models.Group
	Categories []models.Category `json:"categories"`
}

func (s *Server) listCategories(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.svc.Session().State() != session.StateReady {
		return mcp.NewToolResultError("no active library"), nil
	}
	only := req.GetString("group_id", "")
	ws := s.svc.Snapshot()
	out := []groupListing{}
	for _, g := range ws.Groups {
		if only != "" && g.ID != only {
			continue
		}
		out = append(out, groupListing{Group: g, Categories: ws.CategoriesByGroup(g.ID)})
	}
	return jsonResult(out)
}

func (s *Server) addTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	categoryID, err := req.RequireString("category_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tag, err := s.svc.AddTag(ctx, models.Tag{
		Name:      name,
		Keyword:   req.GetString("keyword", ""),
		Subtitles: req.GetStringSlice("subtitles", nil),
	}, categoryID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tag)
}

func (s *Server) exportLibrary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if path := req.GetString("path", ""); path != "" {
		file, err := s.svc.ExportFile(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(file)
	}

	format := transfer.Format(req.GetString("format", string(transfer.FormatJSON)))
	if format != transfer.FormatJSON && format != transfer.FormatYAML {
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", format)), nil
	}
	doc, err := s.svc.Export(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := transfer.Encode(doc, format)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) importDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := transfer.ParseMode(req.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	content := req.GetString("content", "")
	rawURL := req.GetString("url", "")
	path := req.GetString("path", "")
	given := 0
	for _, v := range []string{content, rawURL, path} {
		if v != "" {
			given++
		}
	}
	if given != 1 {
		return mcp.NewToolResultError("give exactly one of content, url or path"), nil
	}

	var res *tagservice.ImportResult
	switch {
	case path != "":
		res, err = s.svc.ImportFile(ctx, path, mode)
	case rawURL != "":
		var data []byte
		if data, err = fetchDocument(s.client, rawURL); err == nil {
			source := rawURL
			if strings.HasPrefix(rawURL, "data:") {
				source = "data-uri"
			}
			res, err = s.svc.ImportData(ctx, data, mode, source)
		}
	default:
		res, err = s.svc.ImportData(ctx, []byte(content), mode, "mcp")
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getDocumentContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentContract), nil
}

func (s *Server) readDocumentContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DocumentContractURI,
			MIMEType: "text/markdown",
			Text:     DocumentContract,
		},
	}, nil
}
