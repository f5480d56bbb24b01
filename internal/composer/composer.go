// Package composer is the write/edit screen: a title, an edit buffer with
// cursor-aware insertion and media embedding, debounced draft persistence and
// the publish flow.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/autosave"
	"github.com/starford/scribe/internal/draft"
	"github.com/starford/scribe/internal/editor"
	"github.com/starford/scribe/internal/markdown"
	"github.com/starford/scribe/internal/media"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
	"github.com/starford/scribe/internal/reconcile"
)

// ErrPendingUploads blocks publishing while uploads are running or
// placeholders remain in the body.
var ErrPendingUploads = errors.New("uploads still in progress")

// ErrNotMounted is returned by operations that need a mounted composer.
var ErrNotMounted = errors.New("composer: not mounted")

// Mode tells whether the composer writes a new post or edits one.
type Mode string

const (
	ModeWrite Mode = "write"
	ModeEdit  Mode = "edit"
)

// PostReader loads an existing post for editing.
type PostReader interface {
	GetPost(ctx context.Context, id models.PostID) (models.Post, error)
}

// Renderer renders a body for the preview tab.
type Renderer interface {
	Render(body string) (string, error)
}

// Deps are the composer's collaborators. Drafts, Writer and Uploader are
// required; the rest have defaults.
type Deps struct {
	Drafts    *draft.Store
	Writer    reconcile.PostWriter
	Reader    PostReader
	Uploader  editor.Uploader
	Renderer  Renderer
	Navigator reconcile.Navigator
	Notifier  notify.Notifier
	Logger    *slog.Logger

	// Surface and Ticker default to a headless Buffer and a Ticks queue.
	Surface editor.Surface
	Ticker  editor.Ticker
	// Watcher reports draft slot writes made by another composer.
	Watcher draft.Watcher
	// AfterFunc replaces the autosave timer source.
	AfterFunc autosave.AfterFunc
	// OnChange runs after every title or buffer mutation, including the
	// ones made by upload completions.
	OnChange func()
}

// Options tune behaviour from configuration.
type Options struct {
	AutosaveDelay time.Duration
	MediaMode     editor.MediaMode
	IsImage       editor.ImageFilter
	// ImageAlt overrides the alt text of embedded uploads.
	ImageAlt string
}

// State is a snapshot for display.
type State struct {
	Mode      Mode                  `json:"mode"`
	PostID    models.PostID         `json:"postId,omitempty"`
	Mounted   bool                  `json:"mounted"`
	Title     string                `json:"title"`
	Body      string                `json:"body"`
	Selection editor.InsertionPoint `json:"selection"`
	Autosave  string                `json:"autosave"`
	Uploads   int                   `json:"uploads"`
}

// Composer owns one edit session at a time, between Mount and Unmount.
type Composer struct {
	d    Deps
	opts Options

	engine *editor.Engine
	ticks  *editor.Ticks // nil when the caller supplied its own Ticker
	recon  *reconcile.Reconciler

	mu       sync.Mutex
	mounted  bool
	mode     Mode
	post     models.Post
	title    string
	saver    *autosave.Scheduler
	life     context.Context
	cancel   context.CancelFunc
	uploads  sync.WaitGroup
	inFlight int
}

func New(d Deps, opts Options) *Composer {
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Renderer == nil {
		d.Renderer = markdown.NewRenderer()
	}
	if d.Surface == nil {
		d.Surface = editor.NewBuffer("")
	}
	if opts.IsImage == nil {
		opts.IsImage = media.IsImage
	}
	if opts.MediaMode == "" {
		opts.MediaMode = editor.ModePlaceholder
	}

	c := &Composer{d: d, opts: opts, mode: ModeWrite}
	if c.d.Ticker == nil {
		c.ticks = &editor.Ticks{}
		c.d.Ticker = c.ticks
	}
	c.engine = editor.NewEngine(c.d.Surface, c.d.Ticker, c.changed)
	c.recon = reconcile.New(reconcile.Deps{
		Writer:    d.Writer,
		Navigator: d.Navigator,
		Notifier:  d.Notifier,
		Logger:    d.Logger,
		OnCreated: c.afterPublish,
	})
	return c
}

// Mount opens the write screen and loads the saved draft, if any. Loading
// does not count as an edit.
func (c *Composer) Mount(ctx context.Context) error {
	c.Unmount()

	// No upload is running now, so any placeholder in the slot is dead.
	c.scrubDraft()
	d, ok, err := c.d.Drafts.Load()
	if err != nil {
		// A broken slot must not block writing.
		c.d.Logger.Warn("composer: load draft failed", slog.String("error", err.Error()))
	}
	if !ok {
		d = models.Draft{}
	}

	// Not mounted yet, so this does not arm the autosave.
	c.engine.SetText(d.Body)

	c.mu.Lock()
	c.mode = ModeWrite
	c.post = models.Post{}
	c.title = d.Title
	c.life, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.saver = autosave.New(c.saveDraft,
		autosave.WithDelay(c.opts.AutosaveDelay),
		autosave.WithAfterFunc(c.afterFunc()),
		autosave.WithLogger(c.d.Logger))
	c.mounted = true
	life := c.life
	c.mu.Unlock()

	if c.d.Watcher != nil {
		go func() {
			err := c.d.Drafts.Watch(life, c.d.Watcher, func(models.Draft) {
				c.d.Notifier.Notify(notify.LevelInfo, "draft changed in another window")
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				c.d.Logger.Warn("composer: draft watch stopped", slog.String("error", err.Error()))
			}
		}()
	}
	c.d.Logger.Debug("composer: mounted", slog.Bool("draft", ok))
	return nil
}

// MountEdit opens the edit screen for an existing post. Edits are not
// autosaved to the draft slot.
func (c *Composer) MountEdit(ctx context.Context, id models.PostID) error {
	if c.d.Reader == nil {
		return fmt.Errorf("composer: edit %s: no post reader", id)
	}
	p, err := c.d.Reader.GetPost(ctx, id)
	if err != nil {
		notify.Error(c.d.Notifier, err)
		return fmt.Errorf("composer: edit %s: %w", id, err)
	}
	c.Unmount()

	c.engine.SetText(p.Content)

	c.mu.Lock()
	c.mode = ModeEdit
	c.post = p
	c.title = p.Title
	c.life, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.saver = nil
	c.mounted = true
	c.mu.Unlock()
	return nil
}

// Unmount stops the autosave timer without saving and cancels uploads in
// flight. Placeholders of cancelled uploads that already reached the draft
// slot are removed from it; the rest of the slot is left as last saved.
// Safe to call when not mounted.
func (c *Composer) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	saver, cancel, mode := c.saver, c.cancel, c.mode
	c.saver = nil
	c.mu.Unlock()

	if saver != nil {
		saver.Stop()
	}
	if cancel != nil {
		cancel()
	}
	c.uploads.Wait()
	c.Paint()
	if mode == ModeWrite {
		c.scrubDraft()
	}
}

// scrubDraft removes upload placeholders from the saved draft and tells the
// user those images were lost. It reports how many it removed.
func (c *Composer) scrubDraft() int {
	d, ok, err := c.d.Drafts.Load()
	if err != nil || !ok {
		return 0
	}
	body, n := editor.StripPlaceholders(d.Body)
	if n == 0 {
		return 0
	}
	d.Body = body
	if _, err := c.d.Drafts.Save(d); err != nil {
		c.d.Logger.Warn("composer: scrub draft failed", slog.String("error", err.Error()))
	}
	c.d.Logger.Warn("composer: removed dead upload placeholders", slog.Int("count", n))
	c.d.Notifier.Notify(notify.LevelError, fmt.Sprintf("%d image upload(s) did not finish and were removed from the draft", n))
	return n
}

// Paint runs deferred cursor work, as one rendered frame would. It is a
// no-op when the caller supplied its own Ticker.
func (c *Composer) Paint() {
	if c.ticks != nil {
		c.ticks.Flush()
	}
}

func (c *Composer) SetTitle(title string) {
	c.mu.Lock()
	c.title = title
	c.mu.Unlock()
	c.changed()
}

// SetBody replaces the body, as typing would.
func (c *Composer) SetBody(body string) { c.engine.SetText(body) }

func (c *Composer) Select(start, end int) { c.engine.Select(start, end) }

func (c *Composer) InsertAtCursor(text string) editor.InsertionPoint {
	return c.engine.InsertAtCursor(text)
}

func (c *Composer) Replace(old, repl string) bool { return c.engine.Replace(old, repl) }

func (c *Composer) InsertImageURL(url string) { c.engine.InsertImageURL(url) }

func (c *Composer) InsertVideoURL(url string) { c.engine.InsertVideoURL(url) }

// Paste embeds the image items of a clipboard paste.
func (c *Composer) Paste(items []editor.Item) (*editor.Batch, error) {
	named := make([]editor.Item, len(items))
	for i, it := range items {
		if it.Name == "" {
			it.Name = "pasted_image.png"
		}
		named[i] = it
	}
	return c.embed(editor.SourcePaste, named)
}

// Upload embeds explicitly selected files.
func (c *Composer) Upload(files []editor.Item) (*editor.Batch, error) {
	return c.embed(editor.SourceFileUpload, files)
}

func (c *Composer) embed(kind editor.SourceKind, items []editor.Item) (*editor.Batch, error) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return nil, ErrNotMounted
	}
	life := c.life
	c.inFlight++
	c.uploads.Add(1)
	c.mu.Unlock()

	b := c.engine.EmbedMedia(life, kind, items, editor.MediaOptions{
		Mode:     c.opts.MediaMode,
		Uploader: c.d.Uploader,
		IsImage:  c.opts.IsImage,
		AltText:  c.altText(),
	})
	go func() {
		defer c.uploads.Done()
		res := b.Wait()
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
		for _, f := range res.Failed {
			c.d.Logger.Warn("composer: upload failed", slog.String("name", f.Name), slog.String("error", f.Err.Error()))
			if !errors.Is(f.Err, context.Canceled) {
				c.d.Notifier.Notify(notify.LevelError, fmt.Sprintf("failed to upload %s: %v", f.Name, f.Err))
			}
		}
		if n := len(res.Embedded); n > 0 {
			c.d.Logger.Debug("composer: media embedded", slog.Int("count", n), slog.String("source", string(kind)))
		}
	}()
	return b, nil
}

// Key is a keyboard event.
type Key struct {
	Key  string
	Ctrl bool
	Meta bool
}

// HandleKey runs the composer's shortcuts. It reports whether the key was
// consumed.
func (c *Composer) HandleKey(k Key) bool {
	if (k.Ctrl || k.Meta) && strings.EqualFold(k.Key, "s") {
		_ = c.ManualSave() // failures are logged
		return true
	}
	return false
}

// ManualSave saves the draft now and cancels any pending autosave.
func (c *Composer) ManualSave() error {
	c.mu.Lock()
	saver := c.saver
	c.mu.Unlock()
	if saver == nil {
		return ErrNotMounted
	}
	if _, err := saver.SaveNow(); err != nil {
		return err
	}
	c.d.Notifier.Notify(notify.LevelSuccess, "draft saved manually")
	return nil
}

// Publish validates and submits the post, then clears the draft and
// navigates home. In edit mode it updates the post instead, keeping its
// status.
func (c *Composer) Publish(ctx context.Context) (models.Post, error) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return models.Post{}, ErrNotMounted
	}
	mode, post := c.mode, c.post
	d := models.Draft{Title: c.title, Body: c.engine.Text()}
	c.mu.Unlock()

	if inFlight := c.engine.Uploading(); inFlight > 0 {
		err := apperr.Validation(fmt.Errorf("%w: %d batch(es)", ErrPendingUploads, inFlight))
		notify.Error(c.d.Notifier, err)
		return models.Post{}, fmt.Errorf("composer: publish: %w", err)
	}
	if n := editor.CountPlaceholders(d.Body); n > 0 {
		err := apperr.Validation(fmt.Errorf("%w: %d image(s)", ErrPendingUploads, n))
		notify.Error(c.d.Notifier, err)
		return models.Post{}, fmt.Errorf("composer: publish: %w", err)
	}

	if mode == ModeEdit {
		status := post.Status
		if status == "" {
			status = models.StatusPublished
		}
		return c.recon.Update(ctx, post.ID, d, status)
	}
	return c.recon.Create(ctx, d, models.StatusPublished)
}

// afterPublish runs between a successful create and the navigation home.
func (c *Composer) afterPublish(p models.Post) {
	c.mu.Lock()
	saver := c.saver
	c.mu.Unlock()
	if saver != nil {
		saver.Stop()
	}
	if err := c.d.Drafts.Clear(); err != nil {
		c.d.Logger.Warn("composer: clear draft failed", slog.String("error", err.Error()))
	}
	c.d.Notifier.Notify(notify.LevelSuccess, "post published")
	c.d.Logger.Info("composer: published", slog.String("post", p.ID.String()))
}

// Preview renders the current body.
func (c *Composer) Preview() (string, error) {
	return c.d.Renderer.Render(c.engine.Text())
}

// Draft returns the current title and body.
func (c *Composer) Draft() models.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.Draft{Title: c.title, Body: c.engine.Text()}
}

func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Mode:      c.mode,
		PostID:    c.post.ID,
		Mounted:   c.mounted,
		Title:     c.title,
		Body:      c.engine.Text(),
		Selection: c.engine.Selection(),
		Autosave:  autosave.Idle.String(),
		Uploads:   c.inFlight,
	}
	if c.saver != nil {
		st.Autosave = c.saver.State().String()
	}
	return st
}

// changed runs after every title or buffer mutation.
func (c *Composer) changed() {
	c.mu.Lock()
	saver := c.saver
	mounted := c.mounted
	c.mu.Unlock()
	if mounted && saver != nil {
		saver.Changed()
	}
	if c.d.OnChange != nil {
		c.d.OnChange()
	}
}

func (c *Composer) saveDraft() (bool, error) {
	return c.d.Drafts.Save(c.Draft())
}

func (c *Composer) altText() func(editor.SourceKind, editor.Item) string {
	if c.opts.ImageAlt == "" {
		return nil
	}
	alt := c.opts.ImageAlt
	return func(editor.SourceKind, editor.Item) string { return alt }
}

func (c *Composer) afterFunc() autosave.AfterFunc {
	if c.d.AfterFunc != nil {
		return c.d.AfterFunc
	}
	return autosave.RealAfterFunc
}
