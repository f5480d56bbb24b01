// Package feed implements the paginated feed cursor.
//
// Pages are concatenated in fetch order and never reordered or deduplicated.
// At most one page fetch is in flight: LoadMore calls made while a fetch runs
// are dropped, not queued. A page shorter than the page size ends the feed;
// a feed whose length is an exact multiple of the page size costs one extra
// empty fetch to discover that.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
)

// DefaultPageSize matches the size the backend serves the home feed with.
const DefaultPageSize = 5

// Fetcher returns one page of post summaries.
type Fetcher interface {
	FetchPostsPage(ctx context.Context, page, size int) ([]models.PostSummary, error)
}

// State is a snapshot of the cursor.
type State struct {
	Items         []models.PostSummary `json:"items"`
	PageIndex     int                  `json:"pageIndex"`
	HasMore       bool                 `json:"hasMore"`
	IsLoadingMore bool                 `json:"isLoadingMore"`
	Loaded        bool                 `json:"loaded"`
}

// Option configures a Cursor.
type Option func(*Cursor)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(c *Cursor) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithFetchTimeout bounds every page fetch. Zero means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cursor) { c.timeout = d }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Cursor) { c.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cursor) { c.logger = l }
}

// WithOnChange registers fn to receive a snapshot after every state change.
func WithOnChange(fn func(State)) Option {
	return func(c *Cursor) { c.onChange = fn }
}

// Cursor tracks the loaded feed and fetches further pages on demand.
type Cursor struct {
	fetcher  Fetcher
	size     int
	timeout  time.Duration
	notifier notify.Notifier
	logger   *slog.Logger
	onChange func(State)

	// life is cancelled by Close and parents every fetch.
	life     context.Context
	shutdown context.CancelFunc

	mu        sync.Mutex
	items     []models.PostSummary
	pageIndex int
	hasMore   bool
	loading   bool
	loaded    bool
	closed    bool
	gen       uint64
	cancel    context.CancelFunc
	unobserve func()
}

// NewCursor returns an empty cursor. Call Load for the first page.
func NewCursor(f Fetcher, opts ...Option) *Cursor {
	c := &Cursor{
		fetcher:  f,
		size:     DefaultPageSize,
		notifier: notify.Discard{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.life, c.shutdown = context.WithCancel(context.Background())
	return c
}

// PageSize returns the configured page size.
func (c *Cursor) PageSize() int { return c.size }

// Load fetches page 0 and replaces the items with it. A fetch already in
// flight, initial or incremental, is cancelled and its result discarded.
func (c *Cursor) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("feed: load: %w", apperr.ErrCanceled)
	}
	if c.cancel != nil {
		c.cancel()
	}
	fctx, gen := c.beginLocked(ctx)
	c.mu.Unlock()
	c.changed()

	page, err := c.fetcher.FetchPostsPage(fctx, 0, c.size)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return fmt.Errorf("feed: load: %w", apperr.ErrCanceled)
	}
	c.endLocked()
	if err != nil {
		c.mu.Unlock()
		c.changed()
		return c.fail("load", err)
	}
	c.items = append([]models.PostSummary(nil), page...)
	c.pageIndex = 0
	c.hasMore = len(page) == c.size
	c.loaded = true
	c.mu.Unlock()

	c.logger.Debug("feed: loaded", slog.Int("items", len(page)))
	c.changed()
	return nil
}

// LoadMore fetches the page after the last loaded one and appends it. It is
// a no-op while a fetch is in flight, before the first load, and once the
// feed is exhausted. On failure the items and hasMore are left as they were
// so the user can retry.
func (c *Cursor) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.loading || !c.hasMore {
		c.mu.Unlock()
		return nil
	}
	next := c.pageIndex + 1
	fctx, gen := c.beginLocked(ctx)
	c.mu.Unlock()
	c.changed()

	page, err := c.fetcher.FetchPostsPage(fctx, next, c.size)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return fmt.Errorf("feed: load more: %w", apperr.ErrCanceled)
	}
	c.endLocked()
	if err != nil {
		c.mu.Unlock()
		c.changed()
		return c.fail("load more", err)
	}
	c.items = append(c.items, page...)
	c.pageIndex = next
	c.hasMore = len(page) == c.size
	c.mu.Unlock()

	c.logger.Debug("feed: page appended", slog.Int("page", next), slog.Int("items", len(page)))
	c.changed()
	return nil
}

// Remove drops every item with id. It reports whether anything was removed.
func (c *Cursor) Remove(id models.PostID) bool {
	c.mu.Lock()
	kept := c.items[:0:0]
	for _, it := range c.items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	removed := len(kept) != len(c.items)
	c.items = kept
	c.mu.Unlock()
	if removed {
		c.changed()
	}
	return removed
}

// State returns a snapshot safe to retain.
func (c *Cursor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Items returns a copy of the loaded items.
func (c *Cursor) Items() []models.PostSummary {
	return c.State().Items
}

// Unmount detaches the observer, cancels a fetch in flight and empties the
// feed. The cursor stays usable: the next Load starts fresh from page 0.
func (c *Cursor) Unmount() {
	c.Detach()
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.reset()
	c.mu.Unlock()
	c.changed()
}

// Close cancels any in-flight fetch and detaches the observer for good.
// Further calls are no-ops.
func (c *Cursor) Close() {
	c.Detach()
	c.mu.Lock()
	c.closed = true
	c.reset()
	c.mu.Unlock()
	c.shutdown()
}

func (c *Cursor) reset() {
	c.gen++
	c.loading = false
	c.cancel = nil
	c.items = nil
	c.pageIndex = 0
	c.hasMore = false
	c.loaded = false
}

func (c *Cursor) beginLocked(ctx context.Context) (context.Context, uint64) {
	c.gen++
	c.loading = true

	// Cancel either on the caller's ctx or on Close.
	fctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.life, cancel)
	if c.timeout > 0 {
		var tcancel context.CancelFunc
		fctx, tcancel = context.WithTimeout(fctx, c.timeout)
		inner := cancel
		cancel = func() { tcancel(); inner() }
	}
	release := cancel
	c.cancel = func() { stop(); release() }
	return fctx, c.gen
}

func (c *Cursor) endLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.loading = false
}

func (c *Cursor) fail(op string, err error) error {
	c.logger.Warn("feed: fetch failed", slog.String("op", op), slog.String("error", err.Error()))
	if !errors.Is(err, context.Canceled) {
		notify.Error(c.notifier, err)
	}
	return fmt.Errorf("feed: %s: %w", op, err)
}

func (c *Cursor) stateLocked() State {
	return State{
		Items:         append([]models.PostSummary(nil), c.items...),
		PageIndex:     c.pageIndex,
		HasMore:       c.hasMore,
		IsLoadingMore: c.loading,
		Loaded:        c.loaded,
	}
}

func (c *Cursor) changed() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.State())
}
