package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SourceKind tells where a media item came from.
type SourceKind string

const (
	SourcePaste      SourceKind = "paste"
	SourceFileUpload SourceKind = "fileUpload"
)

// PlaceholderScheme prefixes the URL of a reference whose upload is pending.
const PlaceholderScheme = "uploading://"

// MediaMode selects how references reach the buffer.
type MediaMode string

const (
	// ModePlaceholder inserts a placeholder right away and swaps in the real
	// reference when its upload settles.
	ModePlaceholder MediaMode = "placeholder"
	// ModeDeferred inserts nothing until every upload in the batch settles.
	ModeDeferred MediaMode = "deferred"
)

// Item is one clipboard entry or selected file.
type Item struct {
	Name string
	MIME string
	Data []byte
}

// Uploader stores a blob and returns a URL that resolves to it. Upload must
// return once ctx is done: unmounting a composer waits for every upload it
// started.
type Uploader interface {
	Upload(ctx context.Context, name, mime string, data []byte) (string, error)
}

// ImageFilter decides whether an item is an image worth embedding.
type ImageFilter func(Item) bool

// MediaError reports one item of a batch whose upload failed.
type MediaError struct {
	Index int
	Name  string
	Err   error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("upload %q (item %d): %v", e.Name, e.Index, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// Embedded is one item whose reference landed in the buffer.
type Embedded struct {
	Index     int
	Name      string
	URL       string
	Reference string
}

// BatchResult lists what happened to every image item of a batch, each slice
// in item order.
type BatchResult struct {
	Embedded []Embedded
	Failed   []*MediaError
}

// Batch tracks the uploads started by one paste or file selection.
type Batch struct {
	ID    string
	Kind  SourceKind
	Items int // image items accepted into the batch

	done   chan struct{}
	result BatchResult
}

// Wait blocks until every upload in the batch has settled.
func (b *Batch) Wait() BatchResult {
	<-b.done
	return b.result
}

// Done is closed once every upload in the batch has settled.
func (b *Batch) Done() <-chan struct{} { return b.done }

// MediaOptions configure EmbedMedia.
type MediaOptions struct {
	Mode     MediaMode
	Uploader Uploader
	IsImage  ImageFilter
	// AltText returns the alt text for a resolved reference. Nil uses
	// "Pasted Image" for pastes and "Uploaded Image" for files.
	AltText func(kind SourceKind, item Item) string
}

// EmbedMedia starts uploading every image item. Non-image items are ignored
// and an empty batch settles immediately.
//
// Uploads run concurrently and may finish in any order. References still land
// in item order: in placeholder mode each item owns a placeholder keyed by
// batch id and item index, so a late upload replaces its own placeholder
// rather than splicing at whatever the caret is by then. A failed upload
// removes its placeholder, leaving no reference to a missing resource, and is
// reported in the result; other items of the batch are unaffected.
func (e *Engine) EmbedMedia(ctx context.Context, kind SourceKind, items []Item, opts MediaOptions) *Batch {
	b := &Batch{
		ID:   uuid.New().String()[:8],
		Kind: kind,
		done: make(chan struct{}),
	}

	var images []indexedItem
	for _, it := range items {
		if opts.IsImage != nil && !opts.IsImage(it) {
			continue
		}
		images = append(images, indexedItem{index: len(images), item: it})
	}
	b.Items = len(images)
	if len(images) == 0 || opts.Uploader == nil {
		close(b.done)
		return b
	}

	alt := opts.AltText
	if alt == nil {
		alt = defaultAlt
	}

	e.mu.Lock()
	e.uploads++
	e.mu.Unlock()

	if opts.Mode != ModeDeferred {
		var sb strings.Builder
		for _, im := range images {
			sb.WriteString(placeholder(b.ID, im, kind))
		}
		e.InsertAtCursor(sb.String())
	}

	results := make([]upload, len(images))
	var wg sync.WaitGroup
	for _, im := range images {
		wg.Add(1)
		go func(im indexedItem) {
			defer wg.Done()
			url, err := opts.Uploader.Upload(ctx, im.item.Name, im.item.MIME, im.item.Data)
			res := upload{item: im, url: url, err: err}
			if err == nil {
				res.ref = fmt.Sprintf("![%s](%s)", alt(kind, im.item), url)
			}
			results[im.index] = res
			if opts.Mode != ModeDeferred {
				// Empty replacement removes a failed item's placeholder.
				e.Replace(placeholder(b.ID, im, kind), res.ref)
			}
		}(im)
	}

	go func() {
		wg.Wait()
		if opts.Mode == ModeDeferred {
			var sb strings.Builder
			for _, r := range results {
				sb.WriteString(r.ref)
			}
			if sb.Len() > 0 {
				e.InsertAtCursor(sb.String())
			}
		}
		for _, r := range results {
			if r.err != nil {
				b.result.Failed = append(b.result.Failed, &MediaError{Index: r.item.index, Name: r.item.item.Name, Err: r.err})
				continue
			}
			b.result.Embedded = append(b.result.Embedded, Embedded{
				Index:     r.item.index,
				Name:      r.item.item.Name,
				URL:       r.url,
				Reference: r.ref,
			})
		}
		e.mu.Lock()
		e.uploads--
		e.mu.Unlock()
		close(b.done)
	}()

	return b
}

type indexedItem struct {
	index int
	item  Item
}

type upload struct {
	item indexedItem
	url  string
	ref  string
	err  error
}

// altUnsafe holds the characters that would end or break a placeholder's
// alt text and let its reference escape detection.
var altUnsafe = strings.NewReplacer(
	"[", "_", "]", "_", "(", "_", ")", "_", "\\", "_",
	"`", "_", "\n", " ", "\r", " ",
)

func placeholder(batch string, im indexedItem, kind SourceKind) string {
	name := altUnsafe.Replace(im.item.Name)
	if name == "" {
		name = string(kind)
	}
	return fmt.Sprintf("![Uploading %s…](%s%s/%d)", name, PlaceholderScheme, batch, im.index)
}

func defaultAlt(kind SourceKind, _ Item) string {
	if kind == SourcePaste {
		return "Pasted Image"
	}
	return "Uploaded Image"
}

// Uploading returns the number of batches whose uploads have not all
// settled. In deferred mode these have nothing in the buffer yet.
func (e *Engine) Uploading() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uploads
}

// HasPlaceholders reports whether text still holds a pending upload reference.
// It is a plain scan, so references inside code spans or fences count too.
func HasPlaceholders(text string) bool {
	return CountPlaceholders(text) > 0
}

// CountPlaceholders counts pending upload references in text.
func CountPlaceholders(text string) int {
	return strings.Count(text, "]("+PlaceholderScheme)
}

// StripPlaceholders removes every pending upload reference from text and
// reports how many it removed. A reference spans from the "![" before its
// "](uploading://" to the next ")"; text after an unterminated one is dropped
// up to the end.
func StripPlaceholders(text string) (string, int) {
	marker := "](" + PlaceholderScheme
	n := 0
	for {
		i := strings.Index(text, marker)
		if i < 0 {
			return text, n
		}
		start := strings.LastIndex(text[:i], "![")
		if start < 0 {
			start = strings.LastIndex(text[:i], "[")
		}
		if start < 0 {
			start = i
		}
		end := len(text)
		if j := strings.IndexByte(text[i+len(marker):], ')'); j >= 0 {
			end = i + len(marker) + j + 1
		}
		text = text[:start] + text[end:]
		n++
	}
}

// InsertImageURL inserts a markdown image reference to an already hosted URL.
func (e *Engine) InsertImageURL(url string) InsertionPoint {
	return e.InsertAtCursor(fmt.Sprintf("![图片描述](%s)", url))
}

// InsertVideoURL inserts an HTML video element for an already hosted URL.
func (e *Engine) InsertVideoURL(url string) InsertionPoint {
	return e.InsertAtCursor(fmt.Sprintf(`<video src="%s" controls></video>`, url))
}
