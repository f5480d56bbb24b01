// Package feedsession is the home screen: the paginated feed, the search
// overlay on top of it, the dashboard panels and post deletion.
package feedsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/dashboard"
	"github.com/starford/scribe/internal/feed"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
	"github.com/starford/scribe/internal/reconcile"
	"github.com/starford/scribe/internal/search"
)

// RegisterPath is where an uninitialized blog sends the visitor.
const RegisterPath = "/register"

// ErrNoAuthor means the blog has no registered author yet.
var ErrNoAuthor = errors.New("feedsession: blog not initialized")

// Backend is everything the home screen reads or mutates.
type Backend interface {
	feed.Fetcher
	search.Searcher
	reconcile.PostWriter
	dashboard.Source
	CheckUserExists(ctx context.Context) (bool, error)
	UpdateUserInfo(ctx context.Context, p models.ProfileUpdate) (models.UserInfo, error)
}

// Change names the part of the screen that changed.
type Change string

const (
	ChangeFeed      Change = "feed"
	ChangeSearch    Change = "search"
	ChangeDashboard Change = "dashboard"
)

type Deps struct {
	API       Backend
	Confirmer reconcile.Confirmer
	Navigator reconcile.Navigator
	Notifier  notify.Notifier
	Logger    *slog.Logger
	// Observer, when set, drives LoadMore from sentinel visibility.
	Observer feed.VisibilityObserver
	OnChange func(Change)
	// OnProfile receives the stored profile after an edit.
	OnProfile func(models.UserInfo)
}

type Options struct {
	PageSize       int
	SearchPageSize int
	FetchTimeout   time.Duration
}

// Session is one visit to the home screen, from Open to Close.
type Session struct {
	d Deps

	cursor  *feed.Cursor
	overlay *search.Overlay
	dash    *dashboard.Loader
	recon   *reconcile.Reconciler
}

func New(d Deps, opts Options) *Session {
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Navigator == nil {
		d.Navigator = reconcile.NavigateFunc(func(string) {})
	}
	s := &Session{d: d}

	s.cursor = feed.NewCursor(d.API,
		feed.WithPageSize(opts.PageSize),
		feed.WithFetchTimeout(opts.FetchTimeout),
		feed.WithNotifier(d.Notifier),
		feed.WithLogger(d.Logger),
		feed.WithOnChange(func(feed.State) { s.emit(ChangeFeed) }))
	s.overlay = search.NewOverlay(d.API,
		search.WithPageSize(opts.SearchPageSize),
		search.WithNotifier(d.Notifier),
		search.WithLogger(d.Logger),
		search.WithOnChange(func(search.State) { s.emit(ChangeSearch) }))
	s.dash = dashboard.New(d.API, d.Logger, func(models.Dashboard) { s.emit(ChangeDashboard) })
	s.recon = reconcile.New(reconcile.Deps{
		Writer:    d.API,
		Confirmer: d.Confirmer,
		Navigator: d.Navigator,
		Feed:      s.cursor,
		Dashboard: s.dash,
		Notifier:  d.Notifier,
		Logger:    d.Logger,
	})
	return s
}

// Open checks the blog is initialized, then loads the dashboard and the
// first feed page. A dashboard failure is notified but does not stop the
// feed from loading.
func (s *Session) Open(ctx context.Context) error {
	exists, err := s.d.API.CheckUserExists(ctx)
	if err != nil {
		s.d.Logger.Warn("feedsession: check user failed", slog.String("error", err.Error()))
	}
	if !exists {
		s.d.Notifier.Notify(notify.LevelInfo, "blog not initialized, redirecting to registration")
		s.d.Navigator.Navigate(RegisterPath)
		return ErrNoAuthor
	}

	if _, err := s.dash.Load(ctx); err != nil {
		notify.Error(s.d.Notifier, dashboard.ErrLoad)
	}
	if err := s.cursor.Load(ctx); err != nil {
		return fmt.Errorf("feedsession: open: %w", err)
	}
	if s.d.Observer != nil {
		s.cursor.Attach(s.d.Observer)
	}
	return nil
}

// Leave ends the visit when the screen goes away. Fetches in flight are
// cancelled and the sentinel is detached. The feed, search and dashboard are
// cleared, so a later Open loads everything again.
func (s *Session) Leave() {
	s.cursor.Unmount()
	s.overlay.Clear()
	s.dash.Reset()
}

// Close detaches the sentinel and cancels fetches in flight. The session
// cannot be opened again.
func (s *Session) Close() {
	s.cursor.Close()
	s.overlay.Close()
}

// View is the list the screen shows.
func (s *Session) View() []models.PostSummary {
	return s.overlay.View(s.cursor.Items())
}

func (s *Session) LoadMore(ctx context.Context) error { return s.cursor.LoadMore(ctx) }

func (s *Session) Reload(ctx context.Context) error { return s.cursor.Load(ctx) }

func (s *Session) SetQuery(q string) { s.overlay.SetQuery(q) }

func (s *Session) Search(ctx context.Context, q string) error { return s.overlay.Search(ctx, q) }

// Delete asks for confirmation and deletes the post.
func (s *Session) Delete(ctx context.Context, id models.PostID) (bool, error) {
	return s.recon.Delete(ctx, id)
}

// UpdateProfile saves the author's profile and shows it in the dashboard
// without a refetch.
func (s *Session) UpdateProfile(ctx context.Context, p models.ProfileUpdate) (models.UserInfo, error) {
	if err := p.Validate(); err != nil {
		err = apperr.Validation(err)
		notify.Error(s.d.Notifier, err)
		return models.UserInfo{}, fmt.Errorf("feedsession: update profile: %w", err)
	}
	u, err := s.d.API.UpdateUserInfo(ctx, p)
	if err != nil {
		s.d.Logger.Warn("feedsession: update profile failed", slog.String("error", err.Error()))
		notify.Error(s.d.Notifier, err)
		return models.UserInfo{}, fmt.Errorf("feedsession: update profile: %w", err)
	}
	s.dash.SetUser(u)
	if s.d.OnProfile != nil {
		s.d.OnProfile(u)
	}
	s.d.Notifier.Notify(notify.LevelSuccess, "blogger info updated")
	return u, nil
}

// Dashboard returns the last loaded dashboard.
func (s *Session) Dashboard() (models.Dashboard, bool) { return s.dash.Snapshot() }

// DashboardLoads counts dashboard fetches, including the initial one.
func (s *Session) DashboardLoads() int { return s.dash.Loads() }

// State is a snapshot for display.
type State struct {
	Feed   feed.State           `json:"feed"`
	Search search.State         `json:"search"`
	View   []models.PostSummary `json:"view"`
}

func (s *Session) State() State {
	fs := s.cursor.State()
	return State{
		Feed:   fs,
		Search: s.overlay.State(),
		View:   s.overlay.View(fs.Items),
	}
}

func (s *Session) emit(c Change) {
	if s.d.OnChange != nil {
		s.d.OnChange(c)
	}
}
