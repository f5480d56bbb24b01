package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/scribe/internal/composer"
	"github.com/starford/scribe/internal/feed"
	"github.com/starford/scribe/internal/feedsession"
	"github.com/starford/scribe/internal/notify"
)

// LoginPath is where the front-end goes after a logout.
const LoginPath = "/login"

// Location is the studio's router stand-in. The front-end follows Path.
type Location struct {
	mu       sync.Mutex
	path     string
	onChange func(path string)
}

// NewLocation starts at "/". onChange may be nil.
func NewLocation(onChange func(path string)) *Location {
	return &Location{path: "/", onChange: onChange}
}

func (l *Location) Navigate(path string) {
	l.mu.Lock()
	l.path = path
	l.mu.Unlock()
	if l.onChange != nil {
		l.onChange(path)
	}
}

func (l *Location) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

type confirmKey struct{}

// WithConfirmation marks ctx as carrying the user's answer to a prompt.
func WithConfirmation(ctx context.Context, ok bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, ok)
}

// Confirmed answers a confirmation prompt from the request context. The
// front-end shows the dialog and sends the answer with the request.
func Confirmed(ctx context.Context, _ string) bool {
	ok, _ := ctx.Value(confirmKey{}).(bool)
	return ok
}

// Studio is the set of screens one studio process hosts.
type Studio struct {
	Composer *composer.Composer
	Feed     *feedsession.Session
	Sentinel *feed.Sentinel
	Notices  *notify.Center
	Location *Location
	Logger   *slog.Logger
	// Logout ends the author's session. Nil disables POST /logout.
	Logout func()
}

// Snapshot is everything the front-end renders.
type Snapshot struct {
	Location string             `json:"location"`
	Composer composer.State     `json:"composer"`
	Feed     feedsession.State  `json:"feed"`
	Notices  []notify.Notice    `json:"notices"`
	Dash     *DashboardResponse `json:"dashboard,omitempty"`
}

func (s *Studio) snapshot() Snapshot {
	snap := Snapshot{
		Location: s.Location.Path(),
		Composer: s.Composer.State(),
		Feed:     s.Feed.State(),
		Notices:  s.Notices.Recent(),
	}
	if d, ok := s.Feed.Dashboard(); ok {
		snap.Dash = &DashboardResponse{Dashboard: d, Loads: s.Feed.DashboardLoads()}
	}
	return snap
}
