package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all studio routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(st *Studio, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(st)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/state", h.State)
	r.Get("/notices", h.Notices)

	// Composer.
	r.Route("/composer", func(r chi.Router) {
		r.Get("/", h.ComposerState)
		r.Post("/mount", h.Mount)
		r.Post("/unmount", h.Unmount)
		r.Put("/title", h.SetTitle)
		r.Put("/body", h.SetBody)
		r.Post("/select", h.Select)
		r.Post("/insert", h.Insert)
		r.Post("/replace", h.Replace)
		r.Post("/image", h.InsertImage)
		r.Post("/video", h.InsertVideo)
		r.Post("/paste", h.Paste)
		r.Post("/upload", h.Upload)
		r.Post("/key", h.Key)
		r.Post("/save", h.Save)
		r.Post("/publish", h.Publish)
		r.Get("/preview", h.Preview)
	})

	// Feed and search.
	r.Get("/feed", h.Feed)
	r.Post("/feed/open", h.OpenFeed)
	r.Post("/feed/close", h.CloseFeed)
	r.Post("/feed/more", h.LoadMore)
	r.Post("/feed/reload", h.Reload)
	r.Post("/feed/sentinel", h.Sentinel)
	r.Put("/search/query", h.SetQuery)
	r.Post("/search", h.Search)
	r.Delete("/posts/{id}", h.DeletePost)
	r.Get("/dashboard", h.Dashboard)
	r.Put("/profile", h.UpdateProfile)
	r.Post("/logout", h.Logout)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
