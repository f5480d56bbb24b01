package api

import (
	"github.com/starford/scribe/internal/models"
)

// MountRequest opens the write screen, or the edit screen when PostID is set.
type MountRequest struct {
	PostID models.PostID `json:"postId,omitempty"`
}

type TitleRequest struct {
	Title string `json:"title"`
}

type BodyRequest struct {
	Body string `json:"body"`
}

type SelectRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type InsertRequest struct {
	Text string `json:"text"`
}

type ReplaceRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// URLRequest inserts a hosted image or video reference.
type URLRequest struct {
	URL string `json:"url"`
}

type KeyRequest struct {
	Key  string `json:"key"`
	Ctrl bool   `json:"ctrl"`
	Meta bool   `json:"meta"`
}

type KeyResponse struct {
	Handled bool `json:"handled"`
}

type QueryRequest struct {
	Query string `json:"query"`
}

type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// BatchResponse reports an embedding batch. Results are filled when the
// request asked to wait for the uploads.
type BatchResponse struct {
	ID       string          `json:"id"`
	Items    int             `json:"items"`
	Settled  bool            `json:"settled"`
	Embedded []EmbeddedImage `json:"embedded,omitempty"`
	Failed   []FailedImage   `json:"failed,omitempty"`
}

type EmbeddedImage struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type FailedImage struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type PreviewResponse struct {
	HTML string `json:"html"`
}

type PublishResponse struct {
	Post     models.Post `json:"post"`
	Location string      `json:"location"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type DashboardResponse struct {
	models.Dashboard
	Loads int `json:"loads"`
}
