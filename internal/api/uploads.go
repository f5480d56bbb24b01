package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/starford/scribe/internal/editor"
)

const (
	maxUploadBytes = 50 << 20 // 50 MB
	// waitLimit bounds ?wait=true so a stuck upload does not pin the request.
	waitLimit = 2 * time.Minute
)

// Paste handles POST /composer/paste (multipart/form-data, one or more
// "file" parts in clipboard order).
func (h *Handler) Paste(w http.ResponseWriter, r *http.Request) {
	h.embed(w, r, "paste", h.st.Composer.Paste)
}

// Upload handles POST /composer/upload (multipart/form-data, "file" parts).
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	h.embed(w, r, "upload", h.st.Composer.Upload)
}

func (h *Handler) embed(w http.ResponseWriter, r *http.Request, op string, start func([]editor.Item) (*editor.Batch, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	items := make([]editor.Item, 0, len(files))
	for _, fh := range files {
		it, err := readItem(fh)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		items = append(items, it)
	}

	b, err := start(items)
	if err != nil {
		writeError(w, h.log, op, err)
		return
	}
	h.st.Composer.Paint()

	resp := BatchResponse{ID: b.ID, Items: b.Items}
	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), waitLimit)
	defer cancel()
	select {
	case <-b.Done():
	case <-ctx.Done():
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	h.st.Composer.Paint()

	res := b.Wait()
	resp.Settled = true
	for _, e := range res.Embedded {
		resp.Embedded = append(resp.Embedded, EmbeddedImage{Name: e.Name, URL: e.URL})
	}
	for _, f := range res.Failed {
		resp.Failed = append(resp.Failed, FailedImage{Name: f.Name, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func readItem(fh *multipart.FileHeader) (editor.Item, error) {
	f, err := fh.Open()
	if err != nil {
		return editor.Item{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return editor.Item{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if len(data) == 0 {
		return editor.Item{}, errors.New("empty file: " + fh.Filename)
	}
	return editor.Item{Name: fh.Filename, MIME: fh.Header.Get("Content-Type"), Data: data}, nil
}
