// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the blog's feed, search and draft slot to LLM clients over
// stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/draft"
	"github.com/starford/scribe/internal/editor"
	"github.com/starford/scribe/internal/feed"
	"github.com/starford/scribe/internal/markdown"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/reconcile"
	"github.com/starford/scribe/internal/search"
)

const (
	contractURI     = "scribe://post-format"
	defaultListSize = 10
	maxListSize     = 50
)

// Backend is the part of the blog API the tools call.
type Backend interface {
	feed.Fetcher
	search.Searcher
	reconcile.PostWriter
	GetPost(ctx context.Context, id models.PostID) (models.Post, error)
}

// Server wraps the MCP server with the blog tools.
type Server struct {
	mcp      *server.MCPServer
	api      Backend
	drafts   *draft.Store
	uploader editor.Uploader
	logger   *slog.Logger
}

// New creates a new MCP server with all tools registered. uploader may be
// nil, which leaves upload_image unregistered.
func New(api Backend, drafts *draft.Store, uploader editor.Uploader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{api: api, drafts: drafts, uploader: uploader, logger: logger}

	s.mcp = server.NewMCPServer(
		"Scribe",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List published posts, newest first."),
		mcp.WithNumber("page", mcp.Description("Zero-based page index (default 0)")),
		mcp.WithNumber("size", mcp.Description("Page size (default 10, max 50)")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Search posts by keyword on the blog backend."),
		mcp.WithString("keyword", mcp.Required(), mcp.Description("Search keyword")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the title and Markdown body of a post."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Post id")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("get_draft",
		mcp.WithDescription("Read the draft currently held in the local draft slot."),
	), s.getDraft)

	s.mcp.AddTool(mcp.NewTool("save_draft",
		mcp.WithDescription("Replace the local draft. Content follows the post format "+
			"contract (get_post_format tool or the "+contractURI+" resource). "+
			"Frontmatter title or a leading '# ' heading is used when title is omitted."),
		mcp.WithString("title", mcp.Description("Post title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body")),
	), s.saveDraft)

	s.mcp.AddTool(mcp.NewTool("clear_draft",
		mcp.WithDescription("Delete the local draft."),
	), s.clearDraft)

	s.mcp.AddTool(mcp.NewTool("publish_draft",
		mcp.WithDescription("Publish the local draft as a new post and clear the slot. "+
			"Fails while the body still contains uploading:// placeholders."),
	), s.publishDraft)

	s.mcp.AddTool(mcp.NewTool("get_post_format",
		mcp.WithDescription("Returns the post format contract. "+
			"Call this before writing a draft to ensure correct structure."),
	), s.getPostFormat)

	if uploader != nil {
		s.mcp.AddTool(mcp.NewTool("upload_image",
			mcp.WithDescription("Upload an image from an http(s) URL or a base64 data URI. "+
				"Returns a markdownImage snippet ready to paste into the draft body."),
			mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/...;base64,... URI")),
			mcp.WithString("filename", mcp.Description("Optional file name")),
			mcp.WithBoolean("append", mcp.Description("Append the image to the local draft body")),
		), s.uploadImage)
	}

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Post Format Contract",
			mcp.WithResourceDescription("Markdown format a post body must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func textJSON(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := req.GetInt("page", 0)
	size := req.GetInt("size", defaultListSize)
	if page < 0 {
		return mcp.NewToolResultError("page must be >= 0"), nil
	}
	if size <= 0 || size > maxListSize {
		size = defaultListSize
	}
	items, err := s.api.FetchPostsPage(ctx, page, size)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return textJSON(map[string]any{
		"posts":   items,
		"page":    page,
		"hasMore": len(items) == size,
	}), nil
}

func (s *Server) searchPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword, err := req.RequireString("keyword")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return mcp.NewToolResultError("keyword is blank"), nil
	}
	items, err := s.api.SearchPosts(ctx, keyword, 0, search.DefaultPageSize)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no posts found"), nil
	}
	return textJSON(items), nil
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.api.GetPost(ctx, models.PostID(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read post %d: %v", id, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("# %s\n\n%s", p.Title, p.Content)), nil
}

func (s *Server) getDraft(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, ok, err := s.drafts.Load()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultText("no draft"), nil
	}
	return textJSON(draftView{Draft: d, Images: markdown.Images(d.Body)}), nil
}

// draftView is the get_draft reply: the draft plus the images it references.
type draftView struct {
	models.Draft
	Images []markdown.Image `json:"images,omitempty"`
}

func (s *Server) saveDraft(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d := markdown.Parse([]byte(content)).Draft()
	if title := req.GetString("title", ""); title != "" {
		d.Title = title
	}
	written, err := s.drafts.Save(d)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !written {
		return mcp.NewToolResultText("draft unchanged"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("draft saved: %q", d.Title)), nil
}

func (s *Server) clearDraft(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.drafts.Clear(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("draft cleared"), nil
}

func (s *Server) publishDraft(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, ok, err := s.drafts.Load()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("no draft to publish"), nil
	}
	if n := editor.CountPlaceholders(d.Body); n > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("draft has %d pending upload(s)", n)), nil
	}

	recon := reconcile.New(reconcile.Deps{
		Writer: s.api,
		Logger: s.logger,
		OnCreated: func(models.Post) {
			if err := s.drafts.Clear(); err != nil {
				s.logger.Warn("mcp: clear draft failed", slog.String("error", err.Error()))
			}
		},
	})
	p, err := recon.Create(ctx, d, models.StatusPublished)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return mcp.NewToolResultError("draft is not publishable: " + err.Error()), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("published: %s (id %s)", p.Title, p.ID)), nil
}

func (s *Server) getPostFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}
