package blogapi

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/starford/scribe/internal/models"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload posts data as the multipart "file" field and returns the URL the
// backend stored it under.
func (c *Client) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("blogapi: upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("blogapi: upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("blogapi: upload: %w", err)
	}

	var out models.UploadedMedia
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/files/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &out)
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", &APIError{Message: "upload response has no url", Err: ErrEmptyResponse}
	}
	return out.URL, nil
}
