package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/starford/scribe/internal/blogapi"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/testutil"
)

func newLoader(t *testing.T) (*Loader, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t)
	api, err := blogapi.New(b.URL(),
		blogapi.WithTokenSource(blogapi.StaticToken(testutil.Token)),
		blogapi.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}
	return New(api, testutil.Logger(), nil), b
}

func TestLoadFansOut(t *testing.T) {
	l, b := newLoader(t)
	b.AddPosts(8)
	b.SetMedia([]models.Media{{Title: "想象之中", Type: "music"}})
	b.SetLinks([]models.SharedLink{{Title: "a"}, {Title: "b"}})

	d, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.User.Username != "author" || len(d.RecentPosts) != 5 || len(d.LatestMedia) != 1 || len(d.RecentLinks) != 2 {
		t.Errorf("dashboard = %+v", d)
	}
	reqs := strings.Join(b.Requests(), "\n")
	for _, want := range []string{
		"GET /api/user/profile",
		"GET /api/blog/posts?page=0&size=5",
		"GET /api/media/latest?userId=1",
		"GET /api/shared-links/latest?limit=5",
	} {
		if !strings.Contains(reqs, want) {
			t.Errorf("missing request %q in\n%s", want, reqs)
		}
	}
	if snap, ok := l.Snapshot(); !ok || len(snap.RecentPosts) != 5 {
		t.Errorf("snapshot = %+v, %v", snap, ok)
	}
}

func TestAnyFailureFailsLoad(t *testing.T) {
	l, b := newLoader(t)
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Fail("GET /api/shared-links/latest", http.StatusInternalServerError)

	_, err := l.Load(context.Background())
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("err = %v", err)
	}
	if !strings.HasPrefix(err.Error(), "failed to load dashboard") {
		t.Errorf("message = %q", err.Error())
	}
	if _, ok := l.Snapshot(); !ok {
		t.Error("a failed refresh must keep the previous snapshot")
	}
	if l.Loads() != 2 {
		t.Errorf("Loads = %d", l.Loads())
	}
}

func TestRefreshNotifies(t *testing.T) {
	b := testutil.NewBackend(t)
	api, _ := blogapi.New(b.URL(), blogapi.WithTokenSource(blogapi.StaticToken(testutil.Token)), blogapi.WithLogger(testutil.Logger()))
	var seen int
	l := New(api, testutil.Logger(), func(models.Dashboard) { seen++ })
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if seen != 1 {
		t.Errorf("onChange ran %d times", seen)
	}
}
