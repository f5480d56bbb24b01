// Package testutil provides an in-memory blog backend and other shared test
// helpers.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starford/scribe/internal/models"
)

// Token is the bearer token the fake backend accepts.
const Token = "test-token"

// Backend is a fake of the blog backend's HTTP API.
type Backend struct {
	Server *httptest.Server

	mu         sync.Mutex
	posts      []models.Post // newest first
	nextID     models.PostID
	user       models.UserInfo
	userExists bool
	media      []models.Media
	links      []models.SharedLink
	uploads    map[string][]byte
	failures   map[string]int
	delay      map[string]chan struct{}
	requests   []string
}

// NewBackend starts a fake backend shut down with the test.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		nextID:     1,
		userExists: true,
		user:       models.UserInfo{Username: "author", Email: "author@example.com", BlogName: "Notes"},
		uploads:    make(map[string][]byte),
		failures:   make(map[string]int),
		delay:      make(map[string]chan struct{}),
	}
	b.Server = httptest.NewServer(b.router())
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the backend base URL.
func (b *Backend) URL() string { return b.Server.URL }

// AddPosts stores n published posts titled "post 1".."post n"; post n is the
// newest.
func (b *Backend) AddPosts(n int) {
	for i := 0; i < n; i++ {
		b.AddPost(fmt.Sprintf("post %d", b.nextIDValue()), "body")
	}
}

// AddPost stores one published post and returns its id.
func (b *Backend) AddPost(title, content string) models.PostID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insertLocked(models.Post{Title: title, Content: content, Status: models.StatusPublished})
}

// Posts returns the stored posts, newest first.
func (b *Backend) Posts() []models.Post {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Post(nil), b.posts...)
}

// User returns the stored profile.
func (b *Backend) User() models.UserInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user
}

// SetUserExists controls the check-user-exists answer.
func (b *Backend) SetUserExists(v bool) {
	b.mu.Lock()
	b.userExists = v
	b.mu.Unlock()
}

// SetMedia sets the latest media list.
func (b *Backend) SetMedia(m []models.Media) {
	b.mu.Lock()
	b.media = m
	b.mu.Unlock()
}

// SetLinks sets the shared links list.
func (b *Backend) SetLinks(l []models.SharedLink) {
	b.mu.Lock()
	b.links = l
	b.mu.Unlock()
}

// Fail makes every request matching "METHOD /path" answer status with a
// JSON message. Status 0 clears the failure.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// Hold blocks requests matching route until the returned func is called.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.delay[route] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.delay, route)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns every request seen as "METHOD /path?query".
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// Count returns how many requests matched "METHOD /path", ignoring query.
func (b *Backend) Count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r == route || strings.HasPrefix(r, route+"?") {
			n++
		}
	}
	return n
}

// Upload returns the bytes stored under name.
func (b *Backend) Upload(name string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.uploads[name]
	return data, ok
}

func (b *Backend) nextIDValue() models.PostID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextID
}

func (b *Backend) insertLocked(p models.Post) models.PostID {
	p.ID = b.nextID
	b.nextID++
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(p.ID) * time.Hour)
	p.PublishedAt = &now
	p.Preview = preview(p.Content)
	b.posts = append([]models.Post{p}, b.posts...)
	return p.ID
}

func preview(content string) string {
	r := []rune(content)
	if len(r) > 100 {
		return string(r[:100])
	}
	return content
}

func summary(p models.Post) models.PostSummary {
	s := models.PostSummary{ID: p.ID, Title: p.Title, Preview: p.Preview, Status: p.Status, ViewCount: p.ViewCount}
	if p.PublishedAt != nil {
		s.PublishedAt = p.PublishedAt.Format(time.RFC3339)
	}
	return s
}

func (b *Backend) router() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)

	r.Get("/api/auth/check-user-exists", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		exists := b.userExists
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, exists)
	})
	r.Post("/api/auth/login", b.login)

	r.Group(func(r chi.Router) {
		r.Use(requireToken)
		r.Get("/api/blog/posts", b.listPosts)
		r.Get("/api/blog/search", b.search)
		r.Post("/api/blog/create", b.createPost)
		r.Get("/api/blog/{id}", b.getPost)
		r.Put("/api/blog/{id}", b.updatePost)
		r.Delete("/api/blog/{id}", b.deletePost)
		r.Post("/api/files/upload", b.upload)
		r.Get("/api/user/profile", func(w http.ResponseWriter, _ *http.Request) {
			b.mu.Lock()
			u := b.user
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, u)
		})
		r.Put("/api/user/profile", func(w http.ResponseWriter, req *http.Request) {
			var p models.ProfileUpdate
			if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
				return
			}
			b.mu.Lock()
			p.Apply(&b.user)
			u := b.user
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, u)
		})
		r.Get("/api/media/latest", func(w http.ResponseWriter, _ *http.Request) {
			b.mu.Lock()
			m := append([]models.Media{}, b.media...)
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, m)
		})
		r.Get("/api/shared-links/latest", func(w http.ResponseWriter, req *http.Request) {
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			b.mu.Lock()
			l := append([]models.SharedLink{}, b.links...)
			b.mu.Unlock()
			if limit > 0 && len(l) > limit {
				l = l[:limit]
			}
			writeJSON(w, http.StatusOK, l)
		})
	})
	return r
}

// record logs the request, then applies any configured hold or failure.
func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		entry := route
		if r.URL.RawQuery != "" {
			entry += "?" + r.URL.RawQuery
		}
		b.mu.Lock()
		b.requests = append(b.requests, entry)
		hold := b.delay[route]
		status := b.failures[route]
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": fmt.Sprintf("injected failure %d", status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	if creds.Username != "author" || creds.Password != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
		return
	}
	b.mu.Lock()
	u := b.user
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, models.LoginResult{Token: Token, User: u})
}

type page struct {
	Content       []models.PostSummary `json:"content"`
	TotalPages    int                  `json:"totalPages"`
	TotalElements int                  `json:"totalElements"`
	Number        int                  `json:"number"`
	Size          int                  `json:"size"`
	Last          bool                 `json:"last"`
}

func paginate(posts []models.Post, r *http.Request) page {
	pg, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 {
		size = 10
	}
	out := page{Content: []models.PostSummary{}, Number: pg, Size: size, TotalElements: len(posts)}
	out.TotalPages = (len(posts) + size - 1) / size
	for i := pg * size; i < (pg+1)*size && i < len(posts); i++ {
		out.Content = append(out.Content, summary(posts[i]))
	}
	out.Last = (pg+1)*size >= len(posts)
	return out
}

func (b *Backend) listPosts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	posts := append([]models.Post(nil), b.posts...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(posts, r))
}

func (b *Backend) search(w http.ResponseWriter, r *http.Request) {
	kw := strings.ToLower(r.URL.Query().Get("keyword"))
	b.mu.Lock()
	var hits []models.Post
	for _, p := range b.posts {
		if strings.Contains(strings.ToLower(p.Title), kw) || strings.Contains(strings.ToLower(p.Content), kw) {
			hits = append(hits, p)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(hits, r))
}

func (b *Backend) createPost(w http.ResponseWriter, r *http.Request) {
	var p models.Post
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	b.mu.Lock()
	b.insertLocked(p)
	created := b.posts[0]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, created)
}

func (b *Backend) find(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := models.ParsePostID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid id"})
		return 0, false
	}
	for i, p := range b.posts {
		if p.ID == id {
			return i, true
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "post not found"})
	return 0, false
}

func (b *Backend) getPost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.find(w, r); ok {
		writeJSON(w, http.StatusOK, b.posts[i])
	}
}

func (b *Backend) updatePost(w http.ResponseWriter, r *http.Request) {
	var in models.Post
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.find(w, r)
	if !ok {
		return
	}
	p := &b.posts[i]
	p.Title, p.Content, p.Status = in.Title, in.Content, in.Status
	p.Preview = preview(in.Content)
	writeJSON(w, http.StatusOK, *p)
}

func (b *Backend) deletePost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.find(w, r)
	if !ok {
		return
	}
	b.posts = append(b.posts[:i], b.posts[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "file field required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	b.mu.Lock()
	b.uploads[hdr.Filename] = data
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, models.UploadedMedia{URL: b.Server.URL + "/files/" + hdr.Filename})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
