// Package session holds the logged-in author and the bearer token.
//
// The session is an explicit value handed to whoever needs it, never a
// package global: the API client reads the token from it, and the composer
// and feed ask it who is logged in.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/localstore"
	"github.com/starford/scribe/internal/models"
)

// DefaultTokenKey is the local slot holding the token.
const DefaultTokenKey = "token"

// Authenticator is the backend side of a session.
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (models.LoginResult, error)
	CurrentUser(ctx context.Context) (models.UserInfo, error)
}

// ErrNoAuthenticator is returned when Bind was never called.
var ErrNoAuthenticator = errors.New("session: no authenticator bound")

type Option func(*Session)

func WithTokenKey(key string) Option {
	return func(s *Session) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session tracks the author across the process.
type Session struct {
	kv     localstore.Store
	key    string
	logger *slog.Logger

	mu       sync.RWMutex
	auth     Authenticator
	token    string
	user     *models.UserInfo
	hooks    map[int]func()
	nextHook int
}

// New returns a logged-out session whose token persists in kv.
func New(kv localstore.Store, opts ...Option) *Session {
	s := &Session{
		kv:     kv,
		key:    DefaultTokenKey,
		logger: slog.Default(),
		hooks:  make(map[int]func()),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Bind sets the backend used for login and profile lookups. The API client
// itself reads Token from the session, so binding happens after both exist.
func (s *Session) Bind(a Authenticator) {
	s.mu.Lock()
	s.auth = a
	s.mu.Unlock()
}

// Init restores a previously stored token and loads its user. A token the
// backend no longer accepts logs the session out.
func (s *Session) Init(ctx context.Context) error {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		return fmt.Errorf("session: read token: %w: %w", apperr.ErrPersistence, err)
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	s.mu.Lock()
	s.token = string(raw)
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh reloads the current user. On failure the session is logged out.
func (s *Session) Refresh(ctx context.Context) error {
	auth, err := s.authenticator()
	if err != nil {
		return err
	}
	u, err := auth.CurrentUser(ctx)
	if err != nil {
		s.logger.Warn("session: refresh failed", slog.String("error", err.Error()))
		s.Logout()
		return fmt.Errorf("session: refresh: %w", err)
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return nil
}

// Login authenticates and stores the token.
func (s *Session) Login(ctx context.Context, creds models.Credentials) error {
	auth, err := s.authenticator()
	if err != nil {
		return err
	}
	res, err := auth.Login(ctx, creds)
	if err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	if res.Token == "" {
		return fmt.Errorf("session: login: %w", apperr.ErrValidation)
	}
	if err := s.kv.Put(s.key, []byte(res.Token)); err != nil {
		// The session still works for this process.
		s.logger.Warn("session: persist token failed", slog.String("error", err.Error()))
	}
	u := res.User
	s.mu.Lock()
	s.token = res.Token
	s.user = &u
	s.mu.Unlock()
	s.logger.Info("session: logged in", slog.String("user", u.Username))
	return nil
}

// Logout forgets the token and user and runs the logout hooks.
func (s *Session) Logout() {
	if err := s.kv.Delete(s.key); err != nil {
		s.logger.Warn("session: remove token failed", slog.String("error", err.Error()))
	}
	s.mu.Lock()
	s.token = ""
	s.user = nil
	hooks := make([]func(), 0, len(s.hooks))
	for _, h := range s.hooks {
		hooks = append(hooks, h)
	}
	s.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// OnLogout registers fn to run on every Logout. The returned func removes it.
func (s *Session) OnLogout(fn func()) func() {
	s.mu.Lock()
	s.nextHook++
	id := s.nextHook
	s.hooks[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.hooks, id)
		s.mu.Unlock()
	}
}

// Token returns the bearer token, empty when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the logged-in author.
func (s *Session) User() (models.UserInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.UserInfo{}, false
	}
	return *s.user, true
}

// LoggedIn reports whether a user is loaded.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// UpdateUser applies fn to the cached profile, if any.
func (s *Session) UpdateUser(fn func(*models.UserInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil {
		fn(s.user)
	}
}

func (s *Session) authenticator() (Authenticator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.auth == nil {
		return nil, ErrNoAuthenticator
	}
	return s.auth, nil
}
