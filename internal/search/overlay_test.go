package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/models"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]models.PostSummary
	gates   map[string]chan struct{}
	calls   []string
	err     error
}

func (f *fakeSearcher) SearchPosts(ctx context.Context, keyword string, _, _ int) ([]models.PostSummary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, keyword)
	gate := f.gates[keyword]
	res, err := f.results[keyword], f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return res, err
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var feedItems = []models.PostSummary{
	{ID: 1, Title: "Go channels", Preview: "select and close"},
	{ID: 2, Title: "Baking", Preview: "sourdough in GO-time"},
	{ID: 3, Title: "Notes", Preview: "misc"},
}

func TestEmptyQueryShowsFeed(t *testing.T) {
	o := NewOverlay(&fakeSearcher{}, WithLogger(quiet()))
	got := o.View(feedItems)
	if len(got) != len(feedItems) || &got[0] != &feedItems[0] {
		t.Error("empty query must return the feed unchanged")
	}
}

func TestLocalFilterIgnoresCase(t *testing.T) {
	o := NewOverlay(&fakeSearcher{}, WithLogger(quiet()))
	o.SetQuery("go")
	got := o.View(feedItems)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("filtered = %+v", got)
	}
}

func TestResultsReplaceViewAndClearRestores(t *testing.T) {
	s := &fakeSearcher{results: map[string][]models.PostSummary{
		"kafka": {{ID: 42, Title: "Kafka"}},
	}}
	o := NewOverlay(s, WithLogger(quiet()))
	o.SetQuery("kafka")
	if err := o.Search(context.Background(), "kafka"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Results win even though the feed holds nothing that matches.
	got := o.View(feedItems)
	if len(got) != 1 || got[0].ID != 42 {
		t.Fatalf("view = %+v", got)
	}
	// And they stay even after the feed changes underneath.
	if got := o.View(feedItems[:1]); len(got) != 1 || got[0].ID != 42 {
		t.Errorf("view after feed change = %+v", got)
	}

	o.SetQuery("")
	got = o.View(feedItems)
	if len(got) != 3 {
		t.Errorf("cleared view = %+v", got)
	}
	if o.State().HasResults {
		t.Error("clearing should drop results")
	}
}

func TestEmptyResultsFallBackToFilter(t *testing.T) {
	s := &fakeSearcher{results: map[string][]models.PostSummary{}}
	o := NewOverlay(s, WithLogger(quiet()))
	o.SetQuery("notes")
	o.Search(context.Background(), "notes")
	got := o.View(feedItems)
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("view = %+v", got)
	}
}

func TestBlankSearchIsNoop(t *testing.T) {
	s := &fakeSearcher{}
	o := NewOverlay(s, WithLogger(quiet()))
	if err := o.Search(context.Background(), "   "); err != nil {
		t.Fatal(err)
	}
	if s.callCount() != 0 {
		t.Error("blank search hit the backend")
	}
}

func TestSearchTrimsKeyword(t *testing.T) {
	s := &fakeSearcher{}
	o := NewOverlay(s, WithLogger(quiet()))
	o.Search(context.Background(), "  go ")
	if len(s.calls) != 1 || s.calls[0] != "go" {
		t.Errorf("calls = %q", s.calls)
	}
	if o.State().Query != "  go " {
		t.Errorf("query = %q", o.State().Query)
	}
}

func TestLastSearchWins(t *testing.T) {
	s := &fakeSearcher{
		results: map[string][]models.PostSummary{
			"old": {{ID: 1}},
			"new": {{ID: 2}},
		},
		gates: map[string]chan struct{}{"old": make(chan struct{})},
	}
	o := NewOverlay(s, WithLogger(quiet()))

	done := make(chan error, 1)
	go func() { done <- o.Search(context.Background(), "old") }()
	deadline := time.Now().Add(time.Second)
	for s.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !o.State().IsSearching {
		t.Error("overlay should report searching")
	}

	if err := o.Search(context.Background(), "new"); err != nil {
		t.Fatal(err)
	}
	close(s.gates["old"])
	if err := <-done; !errors.Is(err, apperr.ErrCanceled) {
		t.Errorf("stale search err = %v", err)
	}

	st := o.State()
	if len(st.Results) != 1 || st.Results[0].ID != 2 || st.IsSearching {
		t.Errorf("state = %+v", st)
	}
}

func TestSearchFailureKeepsPreviousResults(t *testing.T) {
	s := &fakeSearcher{results: map[string][]models.PostSummary{"a": {{ID: 9}}}}
	o := NewOverlay(s, WithLogger(quiet()))
	o.Search(context.Background(), "a")

	s.err = errors.New("HTTP error! status: 500")
	err := o.Search(context.Background(), "b")
	if err == nil || err.Error() != "search: HTTP error! status: 500" {
		t.Fatalf("err = %v", err)
	}
	if st := o.State(); len(st.Results) != 1 || st.IsSearching {
		t.Errorf("state = %+v", st)
	}
}
