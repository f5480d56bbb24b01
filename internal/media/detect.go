// Package media decides which clipboard items are images and stores uploads,
// either through the blog backend or directly in an S3-compatible bucket.
package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"github.com/starford/scribe/internal/editor"
)

// IsImage reports whether an item should be embedded as an image. A declared
// image/* type is trusted; otherwise the bytes are sniffed, which catches
// clipboard items that arrive without a type.
func IsImage(it editor.Item) bool {
	if strings.HasPrefix(it.MIME, "image/") {
		return true
	}
	if it.MIME != "" && it.MIME != "application/octet-stream" {
		return false
	}
	return filetype.IsImage(it.Data)
}

// Sniff returns the MIME type detected from data, or "" when unknown.
func Sniff(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// Extension returns the file extension, with dot, for data's detected type.
func Extension(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return ""
	}
	return "." + kind.Extension
}

// Checked wraps an uploader with size and content checks. Items whose
// declared type is missing get the sniffed one.
type Checked struct {
	Next     editor.Uploader
	MaxBytes int64
}

func (c Checked) Upload(ctx context.Context, name, mime string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("media: %s: empty file", name)
	}
	if c.MaxBytes > 0 && int64(len(data)) > c.MaxBytes {
		return "", fmt.Errorf("media: %s: %d bytes exceeds limit of %d", name, len(data), c.MaxBytes)
	}
	if mime == "" || mime == "application/octet-stream" {
		if sniffed := Sniff(data); sniffed != "" {
			mime = sniffed
		}
	}
	return c.Next.Upload(ctx, name, mime, data)
}
