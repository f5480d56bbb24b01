package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scribe/internal/composer"
	"github.com/starford/scribe/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	st  *Studio
	log *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(st *Studio) *Handler {
	logger := st.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{st: st, log: logger}
}

// State handles GET /state.
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.st.snapshot())
}

// Notices handles GET /notices.
func (h *Handler) Notices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.st.Notices.Recent())
}

// edit runs a synchronous composer operation, flushes deferred cursor
// moves and replies with the composer state.
func (h *Handler) edit(w http.ResponseWriter, op func(c *composer.Composer)) {
	c := h.st.Composer
	op(c)
	c.Paint()
	writeJSON(w, http.StatusOK, c.State())
}

// decode reads the body into v, replying 400 on failure.
func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := readJSON(r, &v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return v, false
	}
	return v, true
}

// Mount handles POST /composer/mount.
func (h *Handler) Mount(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[MountRequest](w, r)
	if !ok {
		return
	}
	c := h.st.Composer
	var err error
	if req.PostID != 0 {
		err = c.MountEdit(r.Context(), req.PostID)
	} else {
		err = c.Mount(r.Context())
	}
	if err != nil {
		writeError(w, h.log, "mount composer", err)
		return
	}
	c.Paint()
	writeJSON(w, http.StatusOK, c.State())
}

// Unmount handles POST /composer/unmount.
func (h *Handler) Unmount(w http.ResponseWriter, _ *http.Request) {
	h.edit(w, func(c *composer.Composer) { c.Unmount() })
}

// ComposerState handles GET /composer.
func (h *Handler) ComposerState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.st.Composer.State())
}

// SetTitle handles PUT /composer/title.
func (h *Handler) SetTitle(w http.ResponseWriter, r *http.Request) {
	if req, ok := decode[TitleRequest](w, r); ok {
		h.edit(w, func(c *composer.Composer) { c.SetTitle(req.Title) })
	}
}

// SetBody handles PUT /composer/body.
func (h *Handler) SetBody(w http.ResponseWriter, r *http.Request) {
	if req, ok := decode[BodyRequest](w, r); ok {
		h.edit(w, func(c *composer.Composer) { c.SetBody(req.Body) })
	}
}

// Select handles POST /composer/select.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	if req, ok := decode[SelectRequest](w, r); ok {
		h.edit(w, func(c *composer.Composer) { c.Select(req.Start, req.End) })
	}
}

// Insert handles POST /composer/insert.
func (h *Handler) Insert(w http.ResponseWriter, r *http.Request) {
	if req, ok := decode[InsertRequest](w, r); ok {
		h.edit(w, func(c *composer.Composer) { c.InsertAtCursor(req.Text) })
	}
}

// Replace handles POST /composer/replace. A missing needle is 404.
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[ReplaceRequest](w, r)
	if !ok {
		return
	}
	if req.Old == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("old is required"))
		return
	}
	c := h.st.Composer
	found := c.Replace(req.Old, req.New)
	c.Paint()
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody("text not found"))
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

// InsertImage handles POST /composer/image.
func (h *Handler) InsertImage(w http.ResponseWriter, r *http.Request) {
	if req, ok := h.decodeURL(w, r); ok {
		h.edit(w, func(c *composer.Composer) { c.InsertImageURL(req.URL) })
	}
}

// InsertVideo handles POST /composer/video.
func (h *Handler) InsertVideo(w http.ResponseWriter, r *http.Request) {
	if req, ok := h.decodeURL(w, r); ok {
		h.edit(w, func(c *composer.Composer) { c.InsertVideoURL(req.URL) })
	}
}

func (h *Handler) decodeURL(w http.ResponseWriter, r *http.Request) (URLRequest, bool) {
	req, ok := decode[URLRequest](w, r)
	if ok && req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url is required"))
		return req, false
	}
	return req, ok
}

// Key handles POST /composer/key.
func (h *Handler) Key(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[KeyRequest](w, r)
	if !ok {
		return
	}
	handled := h.st.Composer.HandleKey(composer.Key{Key: req.Key, Ctrl: req.Ctrl, Meta: req.Meta})
	writeJSON(w, http.StatusOK, KeyResponse{Handled: handled})
}

// Save handles POST /composer/save.
func (h *Handler) Save(w http.ResponseWriter, _ *http.Request) {
	if err := h.st.Composer.ManualSave(); err != nil {
		writeError(w, h.log, "save draft", err)
		return
	}
	writeJSON(w, http.StatusOK, h.st.Composer.State())
}

// Publish handles POST /composer/publish. A new post answers 201, an edit
// of an existing one 200.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	status := http.StatusCreated
	if h.st.Composer.State().Mode == composer.ModeEdit {
		status = http.StatusOK
	}
	p, err := h.st.Composer.Publish(r.Context())
	if err != nil {
		writeError(w, h.log, "publish", err)
		return
	}
	writeJSON(w, status, PublishResponse{Post: p, Location: h.st.Location.Path()})
}

// Preview handles GET /composer/preview.
func (h *Handler) Preview(w http.ResponseWriter, _ *http.Request) {
	html, err := h.st.Composer.Preview()
	if err != nil {
		writeError(w, h.log, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{HTML: html})
}

// Feed handles GET /feed.
func (h *Handler) Feed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.st.Feed.State())
}

// OpenFeed handles POST /feed/open.
func (h *Handler) OpenFeed(w http.ResponseWriter, r *http.Request) {
	if err := h.st.Feed.Open(r.Context()); err != nil {
		writeError(w, h.log, "open feed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.st.Feed.State())
}

// CloseFeed handles POST /feed/close, sent when the feed screen goes away.
func (h *Handler) CloseFeed(w http.ResponseWriter, _ *http.Request) {
	h.st.Feed.Leave()
	writeJSON(w, http.StatusOK, h.st.Feed.State())
}

// LoadMore handles POST /feed/more.
func (h *Handler) LoadMore(w http.ResponseWriter, r *http.Request) {
	if err := h.st.Feed.LoadMore(r.Context()); err != nil {
		writeError(w, h.log, "load more", err)
		return
	}
	writeJSON(w, http.StatusOK, h.st.Feed.State())
}

// Reload handles POST /feed/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.st.Feed.Reload(r.Context()); err != nil {
		writeError(w, h.log, "reload feed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.st.Feed.State())
}

// SetQuery handles PUT /search/query. It only filters locally.
func (h *Handler) SetQuery(w http.ResponseWriter, r *http.Request) {
	if req, ok := decode[QueryRequest](w, r); ok {
		h.st.Feed.SetQuery(req.Query)
		writeJSON(w, http.StatusOK, h.st.Feed.State())
	}
}

// Search handles POST /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[QueryRequest](w, r)
	if !ok {
		return
	}
	if err := h.st.Feed.Search(r.Context(), req.Query); err != nil {
		writeError(w, h.log, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, h.st.Feed.State())
}

// DeletePost handles DELETE /posts/{id}. The front-end confirms first and
// passes ?confirm=true; without it nothing is deleted.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePostID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid post id"))
		return
	}
	ctx := WithConfirmation(r.Context(), r.URL.Query().Get("confirm") == "true")
	deleted, err := h.st.Feed.Delete(ctx, id)
	if err != nil {
		writeError(w, h.log, "delete post", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}

// Dashboard handles GET /dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, _ *http.Request) {
	d, ok := h.st.Feed.Dashboard()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("dashboard not loaded"))
		return
	}
	writeJSON(w, http.StatusOK, DashboardResponse{Dashboard: d, Loads: h.st.Feed.DashboardLoads()})
}

// UpdateProfile handles PUT /profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[models.ProfileUpdate](w, r)
	if !ok {
		return
	}
	u, err := h.st.Feed.UpdateProfile(r.Context(), req)
	if err != nil {
		writeError(w, h.log, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Logout handles POST /logout. The logout hooks unmount the composer and
// clear the feed.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	if h.st.Logout == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no session"))
		return
	}
	h.st.Logout()
	h.st.Location.Navigate(LoginPath)
	writeJSON(w, http.StatusOK, h.st.snapshot())
}

// Sentinel handles POST /feed/sentinel. The front-end reports when the
// end-of-list marker enters or leaves the viewport.
func (h *Handler) Sentinel(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[VisibilityRequest](w, r)
	if !ok {
		return
	}
	if h.st.Sentinel == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no sentinel"))
		return
	}
	h.st.Sentinel.SetVisible(req.Visible)
	writeJSON(w, http.StatusOK, h.st.Feed.State())
}
