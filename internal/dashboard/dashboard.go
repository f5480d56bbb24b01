// Package dashboard loads the home view's side panels in one parallel
// fan-out.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/scribe/internal/models"
)

// Sizes of the dashboard panels.
const (
	RecentPostsSize = 5
	SharedLinksSize = 5
	MediaUserID     = 1
)

// ErrLoad is the user-facing failure of any part of the fan-out.
var ErrLoad = errors.New("failed to load dashboard")

// Source is the backend the dashboard reads from.
type Source interface {
	CurrentUser(ctx context.Context) (models.UserInfo, error)
	FetchPostsPage(ctx context.Context, page, size int) ([]models.PostSummary, error)
	LatestMedia(ctx context.Context, userID int64) ([]models.Media, error)
	LatestSharedLinks(ctx context.Context, limit int) ([]models.SharedLink, error)
}

// Loader fetches and caches the dashboard.
type Loader struct {
	src      Source
	logger   *slog.Logger
	onChange func(models.Dashboard)

	mu     sync.Mutex
	snap   models.Dashboard
	loaded bool
	loads  int
}

func New(src Source, logger *slog.Logger, onChange func(models.Dashboard)) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{src: src, logger: logger, onChange: onChange}
}

// Load fetches all four panels concurrently. The first failure cancels the
// rest and the previous snapshot is kept.
func (l *Loader) Load(ctx context.Context) (models.Dashboard, error) {
	l.mu.Lock()
	l.loads++
	l.mu.Unlock()

	var d models.Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := l.src.CurrentUser(gctx)
		d.User = u
		return err
	})
	g.Go(func() error {
		posts, err := l.src.FetchPostsPage(gctx, 0, RecentPostsSize)
		d.RecentPosts = posts
		return err
	})
	g.Go(func() error {
		media, err := l.src.LatestMedia(gctx, MediaUserID)
		d.LatestMedia = media
		return err
	})
	g.Go(func() error {
		links, err := l.src.LatestSharedLinks(gctx, SharedLinksSize)
		d.RecentLinks = links
		return err
	})
	if err := g.Wait(); err != nil {
		l.logger.Warn("dashboard: load failed", slog.String("error", err.Error()))
		return models.Dashboard{}, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	l.mu.Lock()
	l.snap = d
	l.loaded = true
	l.mu.Unlock()
	if l.onChange != nil {
		l.onChange(d)
	}
	return d, nil
}

// Refresh reloads the dashboard, discarding the result.
func (l *Loader) Refresh(ctx context.Context) error {
	_, err := l.Load(ctx)
	return err
}

// Snapshot returns the last successful load.
func (l *Loader) Snapshot() (models.Dashboard, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap, l.loaded
}

// SetUser replaces the profile panel of a loaded snapshot.
func (l *Loader) SetUser(u models.UserInfo) {
	l.mu.Lock()
	if !l.loaded {
		l.mu.Unlock()
		return
	}
	l.snap.User = u
	d := l.snap
	l.mu.Unlock()
	if l.onChange != nil {
		l.onChange(d)
	}
}

// Reset forgets the last snapshot.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.snap = models.Dashboard{}
	l.loaded = false
	l.mu.Unlock()
	if l.onChange != nil {
		l.onChange(models.Dashboard{})
	}
}

// Loads counts Load calls, successful or not.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}
