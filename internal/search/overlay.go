// Package search holds the search overlay that sits between the feed cursor
// and the rendered list.
//
// The overlay never touches the cursor. Results from the backend live in
// their own slot and, while non-empty, replace the feed view outright, even
// if a later mutation made them stale. Without results, the loaded feed is
// filtered locally by the query.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
)

// DefaultPageSize is how many results one search fetches.
const DefaultPageSize = 10

// Searcher runs a keyword search against the backend.
type Searcher interface {
	SearchPosts(ctx context.Context, keyword string, page, size int) ([]models.PostSummary, error)
}

// State is a snapshot of the overlay.
type State struct {
	Query       string               `json:"query"`
	Results     []models.PostSummary `json:"results,omitempty"`
	HasResults  bool                 `json:"hasResults"`
	IsSearching bool                 `json:"isSearching"`
}

type Option func(*Overlay)

// WithPageSize sets how many results one search fetches.
func WithPageSize(n int) Option {
	return func(o *Overlay) {
		if n > 0 {
			o.size = n
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(o *Overlay) { o.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Overlay) { o.logger = l }
}

func WithOnChange(fn func(State)) Option {
	return func(o *Overlay) { o.onChange = fn }
}

// Overlay tracks the search box and the last search's results.
type Overlay struct {
	searcher Searcher
	size     int
	notifier notify.Notifier
	logger   *slog.Logger
	onChange func(State)

	mu        sync.Mutex
	query     string
	results   []models.PostSummary
	searching bool
	gen       uint64
	cancel    context.CancelFunc
}

func NewOverlay(s Searcher, opts ...Option) *Overlay {
	o := &Overlay{
		searcher: s,
		size:     DefaultPageSize,
		notifier: notify.Discard{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetQuery records the search box content. Clearing it drops any results,
// and any search still running, so the feed view comes back unchanged.
func (o *Overlay) SetQuery(q string) {
	o.mu.Lock()
	o.query = q
	if q == "" {
		o.dropLocked()
	}
	o.mu.Unlock()
	o.changed()
}

// Search issues one backend search for query. A blank query is a no-op.
// When searches overlap, the last one issued wins and earlier completions
// are discarded.
func (o *Overlay) Search(ctx context.Context, query string) error {
	keyword := strings.TrimSpace(query)
	if keyword == "" {
		return nil
	}

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.query = query
	o.gen++
	gen := o.gen
	sctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.searching = true
	o.mu.Unlock()
	o.changed()

	res, err := o.searcher.SearchPosts(sctx, keyword, 0, o.size)
	cancel()

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return fmt.Errorf("search: %w", apperr.ErrCanceled)
	}
	o.searching = false
	o.cancel = nil
	if err == nil {
		o.results = append([]models.PostSummary(nil), res...)
	}
	o.mu.Unlock()
	o.changed()

	if err != nil {
		o.logger.Warn("search: failed", slog.String("keyword", keyword), slog.String("error", err.Error()))
		if !errors.Is(err, context.Canceled) {
			notify.Error(o.notifier, err)
		}
		return fmt.Errorf("search: %w", err)
	}
	o.logger.Debug("search: results", slog.String("keyword", keyword), slog.Int("count", len(res)))
	return nil
}

// Clear empties the query and results.
func (o *Overlay) Clear() { o.SetQuery("") }

// Close cancels a running search.
func (o *Overlay) Close() {
	o.mu.Lock()
	o.dropLocked()
	o.mu.Unlock()
}

// View returns what the list shows for base, the loaded feed items.
func (o *Overlay) View(base []models.PostSummary) []models.PostSummary {
	o.mu.Lock()
	query := o.query
	results := o.results
	o.mu.Unlock()

	switch {
	case query == "":
		return base
	case len(results) > 0:
		return append([]models.PostSummary(nil), results...)
	default:
		return Filter(base, query)
	}
}

// Filter keeps the items whose title or preview contains query, ignoring
// case. Order is preserved.
func Filter(items []models.PostSummary, query string) []models.PostSummary {
	q := strings.ToLower(query)
	out := make([]models.PostSummary, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Title), q) || strings.Contains(strings.ToLower(it.Preview), q) {
			out = append(out, it)
		}
	}
	return out
}

func (o *Overlay) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Query:       o.query,
		Results:     append([]models.PostSummary(nil), o.results...),
		HasResults:  len(o.results) > 0,
		IsSearching: o.searching,
	}
}

func (o *Overlay) dropLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	o.results = nil
	o.searching = false
}

func (o *Overlay) changed() {
	if o.onChange != nil {
		o.onChange(o.State())
	}
}
