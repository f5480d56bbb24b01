package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/scribe/internal/blogapi"
	"github.com/starford/scribe/internal/draft"
	"github.com/starford/scribe/internal/localstore"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Backend, *draft.Store) {
	t.Helper()
	b := testutil.NewBackend(t)
	api, err := blogapi.New(b.URL(),
		blogapi.WithTokenSource(blogapi.StaticToken(testutil.Token)),
		blogapi.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}
	drafts := draft.NewStore(localstore.NewMemory(), draft.DefaultKey, testutil.Logger())
	return New(api, drafts, api, testutil.Logger()), b, drafts
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so dispatch to the
	// handlers directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_posts":      srv.listPosts,
		"search_posts":    srv.searchPosts,
		"read_post":       srv.readPost,
		"get_draft":       srv.getDraft,
		"save_draft":      srv.saveDraft,
		"clear_draft":     srv.clearDraft,
		"publish_draft":   srv.publishDraft,
		"get_post_format": srv.getPostFormat,
		"upload_image":    srv.uploadImage,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListPosts(t *testing.T) {
	srv, b, _ := testServer(t)
	b.AddPosts(3)

	r := callTool(t, srv, "list_posts", map[string]any{"size": 2})
	if r.IsError {
		t.Fatalf("list_posts: %s", resultText(r))
	}
	var out struct {
		Posts   []models.PostSummary `json:"posts"`
		HasMore bool                 `json:"hasMore"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Posts) != 2 || !out.HasMore || out.Posts[0].Title != "post 3" {
		t.Errorf("list = %+v", out)
	}
}

func TestSearchPosts(t *testing.T) {
	srv, b, _ := testServer(t)
	b.AddPost("Go channels", "select")
	b.AddPost("Cooking", "rice")

	r := callTool(t, srv, "search_posts", map[string]any{"keyword": "  channels "})
	if text := resultText(r); !strings.Contains(text, "Go channels") || strings.Contains(text, "Cooking") {
		t.Errorf("search = %q", text)
	}

	r = callTool(t, srv, "search_posts", map[string]any{"keyword": "   "})
	if !r.IsError {
		t.Error("blank keyword accepted")
	}
}

func TestReadPost(t *testing.T) {
	srv, b, _ := testServer(t)
	id := b.AddPost("Hello", "world")

	r := callTool(t, srv, "read_post", map[string]any{"id": float64(id)})
	if text := resultText(r); text != "# Hello\n\nworld" {
		t.Errorf("read = %q", text)
	}

	r = callTool(t, srv, "read_post", map[string]any{"id": 999})
	if !r.IsError {
		t.Error("expected error for missing post")
	}
}

func TestDraftRoundTripAndPublish(t *testing.T) {
	srv, b, drafts := testServer(t)

	r := callTool(t, srv, "save_draft", map[string]any{"content": "# Trip\n\nWe went up."})
	if r.IsError {
		t.Fatalf("save_draft: %s", resultText(r))
	}
	d, ok, _ := drafts.Load()
	if !ok || d.Title != "Trip" || strings.Contains(d.Body, "# Trip") {
		t.Fatalf("draft = %+v", d)
	}

	r = callTool(t, srv, "save_draft", map[string]any{"content": "# Trip\n\nWe went up."})
	if text := resultText(r); text != "draft unchanged" {
		t.Errorf("second save = %q", text)
	}

	r = callTool(t, srv, "publish_draft", nil)
	if r.IsError {
		t.Fatalf("publish: %s", resultText(r))
	}
	posts := b.Posts()
	if len(posts) != 1 || posts[0].Title != "Trip" || posts[0].Status != models.StatusPublished {
		t.Errorf("posts = %+v", posts)
	}
	if _, ok, _ := drafts.Load(); ok {
		t.Error("draft not cleared")
	}
}

func TestPublishRejectsPlaceholders(t *testing.T) {
	bodies := map[string]string{
		"plain":   "![Uploading a.png…](uploading://x/0)",
		"bracket": "![Uploading shot]1.png…](uploading://x/0)",
		"fenced":  "```\n![Uploading a.png…](uploading://x/0)\n```",
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv, b, _ := testServer(t)
			callTool(t, srv, "save_draft", map[string]any{
				"title":   "T",
				"content": body,
			})

			r := callTool(t, srv, "publish_draft", nil)
			if !r.IsError || !strings.Contains(resultText(r), "pending upload") {
				t.Errorf("publish = %q", resultText(r))
			}
			if n := b.Count("POST /api/blog/create"); n != 0 {
				t.Errorf("create sent %d times", n)
			}
		})
	}
}

func TestGetDraftListsImages(t *testing.T) {
	srv, _, _ := testServer(t)
	callTool(t, srv, "save_draft", map[string]any{
		"title":   "T",
		"content": "intro ![Pasted Image](https://cdn/a.png)",
	})

	var got draftView
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "get_draft", nil))), &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "T" || len(got.Images) != 1 || got.Images[0].URL != "https://cdn/a.png" {
		t.Errorf("get_draft = %+v", got)
	}
}

func TestPublishRejectsBlankTitle(t *testing.T) {
	srv, _, _ := testServer(t)
	callTool(t, srv, "save_draft", map[string]any{"content": "body only"})

	r := callTool(t, srv, "publish_draft", nil)
	if !r.IsError || !strings.Contains(resultText(r), "not publishable") {
		t.Errorf("publish = %q", resultText(r))
	}
}

func TestClearDraft(t *testing.T) {
	srv, _, _ := testServer(t)
	callTool(t, srv, "save_draft", map[string]any{"title": "x", "content": "y"})
	callTool(t, srv, "clear_draft", nil)

	if text := resultText(callTool(t, srv, "get_draft", nil)); text != "no draft" {
		t.Errorf("get_draft = %q", text)
	}
}

func TestUploadImageDataURI(t *testing.T) {
	srv, b, drafts := testServer(t)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.PNG)

	r := callTool(t, srv, "upload_image", map[string]any{"url": uri, "filename": "shot one.png", "append": true})
	if r.IsError {
		t.Fatalf("upload_image: %s", resultText(r))
	}
	var res uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(res.URL, "/files/shot_one.png") || !res.Appended {
		t.Errorf("result = %+v", res)
	}
	if _, ok := b.Upload("shot_one.png"); !ok {
		t.Error("backend did not receive the file")
	}
	d, _, _ := drafts.Load()
	if !strings.Contains(d.Body, res.MarkdownImage) {
		t.Errorf("draft body = %q", d.Body)
	}
}

func TestUploadImageRejectsNonImage(t *testing.T) {
	srv, _, _ := testServer(t)
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))

	r := callTool(t, srv, "upload_image", map[string]any{"url": uri})
	if !r.IsError {
		t.Error("text accepted as image")
	}
}

func TestUploadImageFromURL(t *testing.T) {
	srv, b, _ := testServer(t)
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testutil.PNG)
	}))
	defer img.Close()

	orig := checkBlockedHost
	checkBlockedHost = func(string) error { return nil }
	defer func() { checkBlockedHost = orig }()

	r := callTool(t, srv, "upload_image", map[string]any{"url": img.URL + "/pics/cat.png"})
	if r.IsError {
		t.Fatalf("upload_image: %s", resultText(r))
	}
	if _, ok := b.Upload("cat.png"); !ok {
		t.Error("backend did not receive cat.png")
	}
}

func TestUploadImageBlocksLoopback(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "upload_image", map[string]any{"url": "http://127.0.0.1/x.png"})
	if !r.IsError || !strings.Contains(resultText(r), "blocked host") {
		t.Errorf("result = %q", resultText(r))
	}
}
