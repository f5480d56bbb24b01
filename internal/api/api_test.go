package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/starford/scribe/internal/blogapi"
	"github.com/starford/scribe/internal/composer"
	"github.com/starford/scribe/internal/draft"
	"github.com/starford/scribe/internal/feed"
	"github.com/starford/scribe/internal/feedsession"
	"github.com/starford/scribe/internal/localstore"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
	"github.com/starford/scribe/internal/reconcile"
	"github.com/starford/scribe/internal/testutil"
)

type testEnv struct {
	router  http.Handler
	st      *Studio
	backend *testutil.Backend
	drafts  *draft.Store
}

// newTestEnv builds a studio over the fake backend. An empty token disables
// auth.
func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	b := testutil.NewBackend(t)
	client, err := blogapi.New(b.URL(),
		blogapi.WithTokenSource(blogapi.StaticToken(testutil.Token)),
		blogapi.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}

	timers := &testutil.ManualTimers{}
	loc := NewLocation(nil)
	center := notify.NewCenter(20, testutil.Logger())
	sentinel := feed.NewSentinel()
	drafts := draft.NewStore(localstore.NewMemory(), draft.DefaultKey, testutil.Logger())

	st := &Studio{
		Composer: composer.New(composer.Deps{
			Drafts:    drafts,
			Writer:    client,
			Reader:    client,
			Uploader:  client,
			Navigator: loc,
			Notifier:  center,
			Logger:    testutil.Logger(),
			AfterFunc: timers.AfterFunc,
		}, composer.Options{}),
		Feed: feedsession.New(feedsession.Deps{
			API:       client,
			Confirmer: reconcile.ConfirmFunc(Confirmed),
			Navigator: loc,
			Notifier:  center,
			Logger:    testutil.Logger(),
			Observer:  sentinel,
		}, feedsession.Options{}),
		Sentinel: sentinel,
		Notices:  center,
		Location: loc,
		Logger:   testutil.Logger(),
	}
	st.Logout = func() {
		st.Composer.Unmount()
		st.Feed.Leave()
	}
	t.Cleanup(st.Composer.Unmount)
	t.Cleanup(st.Feed.Close)

	return &testEnv{
		router:  NewRouter(st, token != "", token, nil),
		st:      st,
		backend: b,
		drafts:  drafts,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestComposerEditFlow(t *testing.T) {
	e := newTestEnv(t, "")

	if w := e.do(t, http.MethodPost, "/composer/mount", nil); w.Code != http.StatusOK {
		t.Fatalf("mount = %d %s", w.Code, w.Body.String())
	}
	e.do(t, http.MethodPut, "/composer/body", BodyRequest{Body: "abcd"})
	e.do(t, http.MethodPost, "/composer/select", SelectRequest{Start: 2, End: 2})
	w := e.do(t, http.MethodPost, "/composer/insert", InsertRequest{Text: "X"})
	if w.Code != http.StatusOK {
		t.Fatalf("insert = %d", w.Code)
	}
	st := decodeBody[composer.State](t, w)
	if st.Body != "abXcd" {
		t.Errorf("body = %q", st.Body)
	}
	if st.Selection.Start != 3 || st.Selection.End != 3 {
		t.Errorf("caret = %+v, want 3", st.Selection)
	}
	if st.Autosave != "pending" {
		t.Errorf("autosave = %q, want pending", st.Autosave)
	}
}

func TestComposerNotMounted(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(t, http.MethodPost, "/composer/save", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("save unmounted = %d, want 409", w.Code)
	}
}

func TestReplaceMiss(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodPost, "/composer/mount", nil)
	e.do(t, http.MethodPut, "/composer/body", BodyRequest{Body: "hello"})

	w := e.do(t, http.MethodPost, "/composer/replace", ReplaceRequest{Old: "absent", New: "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("replace miss = %d, want 404", w.Code)
	}
	w = e.do(t, http.MethodPost, "/composer/replace", ReplaceRequest{Old: "ell", New: "ELL"})
	if st := decodeBody[composer.State](t, w); st.Body != "hELLo" {
		t.Errorf("body = %q", st.Body)
	}
}

func TestKeySavesDraft(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodPost, "/composer/mount", nil)
	e.do(t, http.MethodPut, "/composer/title", TitleRequest{Title: "T"})

	w := e.do(t, http.MethodPost, "/composer/key", KeyRequest{Key: "s", Ctrl: true})
	if !decodeBody[KeyResponse](t, w).Handled {
		t.Fatal("ctrl+s not handled")
	}
	d, ok, err := e.drafts.Load()
	if err != nil || !ok || d.Title != "T" {
		t.Errorf("draft = %+v, %v, %v", d, ok, err)
	}

	w = e.do(t, http.MethodPost, "/composer/key", KeyRequest{Key: "s"})
	if decodeBody[KeyResponse](t, w).Handled {
		t.Error("plain s consumed")
	}
}

func multipartBody(t *testing.T, files map[string][]byte, order []string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(files[name])
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestPasteAndPublish(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodPost, "/composer/mount", nil)
	e.do(t, http.MethodPut, "/composer/title", TitleRequest{Title: "Shots"})
	e.do(t, http.MethodPut, "/composer/body", BodyRequest{Body: "look: "})
	e.do(t, http.MethodPost, "/composer/select", SelectRequest{Start: 6, End: 6})

	body, ct := multipartBody(t, map[string][]byte{"a.png": testutil.PNG, "b.png": testutil.PNG}, []string{"a.png", "b.png"})
	req := httptest.NewRequest(http.MethodPost, "/composer/paste?wait=true", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("paste = %d %s", w.Code, w.Body.String())
	}
	br := decodeBody[BatchResponse](t, w)
	if !br.Settled || br.Items != 2 || len(br.Embedded) != 2 || len(br.Failed) != 0 {
		t.Fatalf("batch = %+v", br)
	}

	text := e.st.Composer.State().Body
	ia := strings.Index(text, "/files/a.png")
	ib := strings.Index(text, "/files/b.png")
	if ia < 0 || ib < 0 || ia > ib {
		t.Fatalf("body = %q, want a before b", text)
	}

	w = e.do(t, http.MethodPost, "/composer/publish", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("publish = %d %s", w.Code, w.Body.String())
	}
	pr := decodeBody[PublishResponse](t, w)
	if pr.Location != reconcile.HomePath || pr.Post.Title != "Shots" {
		t.Errorf("publish = %+v", pr)
	}
	if _, ok, _ := e.drafts.Load(); ok {
		t.Error("draft not cleared after publish")
	}
}

func TestPublishEditAnswersOK(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.backend.AddPost("Old", "old body")

	if w := e.do(t, http.MethodPost, "/composer/mount", MountRequest{PostID: id}); w.Code != http.StatusOK {
		t.Fatalf("mount edit = %d %s", w.Code, w.Body.String())
	}
	e.do(t, http.MethodPut, "/composer/title", TitleRequest{Title: "New"})

	w := e.do(t, http.MethodPost, "/composer/publish", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("publish edit = %d %s, want 200", w.Code, w.Body.String())
	}
	if pr := decodeBody[PublishResponse](t, w); pr.Post.ID != id || pr.Post.Title != "New" {
		t.Errorf("publish = %+v", pr.Post)
	}
	if n := e.backend.Count("POST /api/blog/create"); n != 0 {
		t.Errorf("edit sent %d creates", n)
	}
}

func TestPublishValidation(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodPost, "/composer/mount", nil)
	w := e.do(t, http.MethodPost, "/composer/publish", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("publish empty = %d, want 422", w.Code)
	}
	if n := e.backend.Count("POST /api/blog/create"); n != 0 {
		t.Errorf("create sent %d times", n)
	}
}

func TestPreview(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodPost, "/composer/mount", nil)
	e.do(t, http.MethodPut, "/composer/body", BodyRequest{Body: "# Hi\n<script>x</script>"})

	w := e.do(t, http.MethodGet, "/composer/preview", nil)
	html := decodeBody[PreviewResponse](t, w).HTML
	if !strings.Contains(html, "<h1") || strings.Contains(html, "<script>") {
		t.Errorf("preview = %q", html)
	}
}

func TestFeedOpenAndScroll(t *testing.T) {
	e := newTestEnv(t, "")
	e.backend.AddPosts(7)

	w := e.do(t, http.MethodPost, "/feed/open", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("open = %d %s", w.Code, w.Body.String())
	}
	if st := decodeBody[feedsession.State](t, w); len(st.View) != 5 || !st.Feed.HasMore {
		t.Fatalf("open state = %+v", st.Feed)
	}

	w = e.do(t, http.MethodPost, "/feed/sentinel", VisibilityRequest{Visible: true})
	if st := decodeBody[feedsession.State](t, w); len(st.View) != 7 || st.Feed.HasMore {
		t.Errorf("after sentinel: %d items, hasMore=%v", len(st.View), st.Feed.HasMore)
	}

	if w := e.do(t, http.MethodGet, "/dashboard", nil); w.Code != http.StatusOK {
		t.Errorf("dashboard = %d", w.Code)
	}
}

func TestFeedCloseThenReopen(t *testing.T) {
	e := newTestEnv(t, "")
	e.backend.AddPosts(7)
	e.do(t, http.MethodPost, "/feed/open", nil)

	w := e.do(t, http.MethodPost, "/feed/close", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close = %d %s", w.Code, w.Body.String())
	}
	if st := decodeBody[feedsession.State](t, w); len(st.View) != 0 {
		t.Errorf("view after close = %d items", len(st.View))
	}
	if n := e.st.Sentinel.Observers(); n != 0 {
		t.Errorf("observers after close = %d", n)
	}

	w = e.do(t, http.MethodPost, "/feed/open", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reopen = %d %s", w.Code, w.Body.String())
	}
	if st := decodeBody[feedsession.State](t, w); len(st.View) != 5 || !st.Feed.HasMore {
		t.Errorf("reopen state = %+v", st.Feed)
	}
}

func TestFeedOpenUninitialized(t *testing.T) {
	e := newTestEnv(t, "")
	e.backend.SetUserExists(false)

	w := e.do(t, http.MethodPost, "/feed/open", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("open = %d, want 409", w.Code)
	}
	if got := e.st.Location.Path(); got != feedsession.RegisterPath {
		t.Errorf("location = %q", got)
	}
}

func TestSearchAndFilter(t *testing.T) {
	e := newTestEnv(t, "")
	e.backend.AddPost("Go channels", "select")
	e.backend.AddPost("Cooking", "rice")
	e.do(t, http.MethodPost, "/feed/open", nil)

	w := e.do(t, http.MethodPut, "/search/query", QueryRequest{Query: "cook"})
	if st := decodeBody[feedsession.State](t, w); len(st.View) != 1 || st.View[0].Title != "Cooking" {
		t.Errorf("filtered = %+v", st.View)
	}

	w = e.do(t, http.MethodPost, "/search", QueryRequest{Query: "channels"})
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d %s", w.Code, w.Body.String())
	}
	if st := decodeBody[feedsession.State](t, w); !st.Search.HasResults || st.View[0].Title != "Go channels" {
		t.Errorf("search state = %+v", st.Search)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.backend.AddPost("doomed", "x")
	e.do(t, http.MethodPost, "/feed/open", nil)

	w := e.do(t, http.MethodDelete, "/posts/"+id.String(), nil)
	if decodeBody[DeleteResponse](t, w).Deleted {
		t.Fatal("deleted without confirmation")
	}
	if n := e.backend.Count("DELETE /api/blog/" + id.String()); n != 0 {
		t.Fatalf("delete sent %d times", n)
	}

	w = e.do(t, http.MethodDelete, "/posts/"+id.String()+"?confirm=true", nil)
	if !decodeBody[DeleteResponse](t, w).Deleted {
		t.Fatalf("delete = %s", w.Body.String())
	}
	if got := len(e.st.Feed.View()); got != 0 {
		t.Errorf("view has %d items after delete", got)
	}

	if w := e.do(t, http.MethodDelete, "/posts/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t, "secret")

	w := e.do(t, http.MethodGet, "/state", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/state?token=secret", nil)
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("query token outside /events = %d, want 401", rec.Code)
	}
}

func TestStateSnapshot(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodPost, "/composer/mount", nil)
	e.st.Notices.Notify(notify.LevelInfo, "hello")

	snap := decodeBody[Snapshot](t, e.do(t, http.MethodGet, "/state", nil))
	if snap.Location != "/" || !snap.Composer.Mounted || len(snap.Notices) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestUpdateProfile(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodPost, "/feed/open", nil)

	w := e.do(t, http.MethodPut, "/profile", models.ProfileUpdate{
		Email:    "me@example.com",
		Bio:      "writes things",
		BlogName: "Scribe",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("profile = %d %s", w.Code, w.Body.String())
	}
	if u := decodeBody[models.UserInfo](t, w); u.BlogName != "Scribe" || u.Bio != "writes things" {
		t.Errorf("profile reply = %+v", u)
	}
	if got := e.backend.User().BlogName; got != "Scribe" {
		t.Errorf("backend blog name = %q", got)
	}

	w = e.do(t, http.MethodPut, "/profile", models.ProfileUpdate{Email: "nope", BlogName: "Scribe"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid email = %d, want 422", w.Code)
	}
}

func TestLogoutClearsScreens(t *testing.T) {
	e := newTestEnv(t, "")
	e.backend.AddPosts(3)
	e.do(t, http.MethodPost, "/feed/open", nil)
	e.do(t, http.MethodPost, "/composer/mount", nil)
	e.do(t, http.MethodPut, "/composer/body", BodyRequest{Body: "unsaved"})

	w := e.do(t, http.MethodPost, "/logout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout = %d %s", w.Code, w.Body.String())
	}
	snap := decodeBody[Snapshot](t, w)
	if snap.Location != LoginPath {
		t.Errorf("location = %q, want %q", snap.Location, LoginPath)
	}
	if snap.Composer.Mounted {
		t.Error("composer still mounted after logout")
	}
	if len(snap.Feed.View) != 0 {
		t.Errorf("feed view after logout = %d items", len(snap.Feed.View))
	}
	if n := e.st.Sentinel.Observers(); n != 0 {
		t.Errorf("observers after logout = %d", n)
	}
}
