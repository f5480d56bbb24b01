package session

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/scribe/internal/blogapi"
	"github.com/starford/scribe/internal/localstore"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/testutil"
)

func newSession(t *testing.T, kv localstore.Store) (*Session, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t)
	s := New(kv, WithLogger(testutil.Logger()))
	api, err := blogapi.New(b.URL(), blogapi.WithTokenSource(s), blogapi.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}
	s.Bind(api)
	return s, b
}

func TestInitRestoresToken(t *testing.T) {
	kv := localstore.NewMemory()
	kv.Put(DefaultTokenKey, []byte(testutil.Token))
	s, _ := newSession(t, kv)

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	u, ok := s.User()
	if !ok || u.Username != "author" || !s.LoggedIn() {
		t.Errorf("user = %+v, %v", u, ok)
	}
}

func TestInitWithoutToken(t *testing.T) {
	s, b := newSession(t, localstore.NewMemory())
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.LoggedIn() || len(b.Requests()) != 0 {
		t.Error("no token must mean no request and no user")
	}
}

func TestInitWithStaleTokenLogsOut(t *testing.T) {
	kv := localstore.NewMemory()
	kv.Put(DefaultTokenKey, []byte("expired"))
	s, _ := newSession(t, kv)
	hooked := 0
	s.OnLogout(func() { hooked++ })

	if err := s.Init(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if s.LoggedIn() || s.Token() != "" {
		t.Error("stale token should log out")
	}
	if _, ok, _ := kv.Get(DefaultTokenKey); ok {
		t.Error("stale token should be removed from the slot")
	}
	if hooked != 1 {
		t.Errorf("logout hooks ran %d times", hooked)
	}
}

func TestLoginLogout(t *testing.T) {
	kv := localstore.NewMemory()
	s, _ := newSession(t, kv)
	ctx := context.Background()

	if err := s.Login(ctx, models.Credentials{Username: "author", Password: "wrong"}); err == nil {
		t.Fatal("bad password accepted")
	}
	if err := s.Login(ctx, models.Credentials{Username: "author", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.Token() != testutil.Token {
		t.Errorf("token = %q", s.Token())
	}
	if raw, ok, _ := kv.Get(DefaultTokenKey); !ok || string(raw) != testutil.Token {
		t.Errorf("stored token = %q", raw)
	}

	s.UpdateUser(func(u *models.UserInfo) { u.Bio = "hi" })
	if u, _ := s.User(); u.Bio != "hi" {
		t.Errorf("bio = %q", u.Bio)
	}

	remove := s.OnLogout(func() { t.Error("removed hook ran") })
	remove()
	s.Logout()
	if s.LoggedIn() || s.Token() != "" {
		t.Error("Logout should clear the session")
	}
}

func TestUnbound(t *testing.T) {
	s := New(localstore.NewMemory())
	if err := s.Refresh(context.Background()); !errors.Is(err, ErrNoAuthenticator) {
		t.Errorf("err = %v", err)
	}
}
