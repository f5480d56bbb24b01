package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
)

type pagedFetcher struct {
	mu    sync.Mutex
	total int
	calls map[int]int
	fail  map[int]error
	gate  map[int]chan struct{}
}

func newPagedFetcher(total int) *pagedFetcher {
	return &pagedFetcher{
		total: total,
		calls: make(map[int]int),
		fail:  make(map[int]error),
		gate:  make(map[int]chan struct{}),
	}
}

func (f *pagedFetcher) FetchPostsPage(ctx context.Context, page, size int) ([]models.PostSummary, error) {
	f.mu.Lock()
	f.calls[page]++
	gate := f.gate[page]
	err := f.fail[page]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	var out []models.PostSummary
	for i := page * size; i < (page+1)*size && i < f.total; i++ {
		out = append(out, models.PostSummary{ID: models.PostID(i + 1), Title: fmt.Sprintf("post %d", i+1)})
	}
	return out, nil
}

func (f *pagedFetcher) callsFor(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[page]
}

func (f *pagedFetcher) block(page int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gate[page] = ch
	return ch
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatal(msg)
}

func TestLoadFirstPage(t *testing.T) {
	f := newPagedFetcher(7)
	c := NewCursor(f, WithLogger(quiet()))
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := c.State()
	if len(st.Items) != 5 || st.PageIndex != 0 || !st.HasMore || st.IsLoadingMore || !st.Loaded {
		t.Errorf("state = %+v", st)
	}
}

func TestPaginationEndsOnShortPage(t *testing.T) {
	f := newPagedFetcher(13) // pages of 5, 5, 3
	c := NewCursor(f, WithLogger(quiet()))
	ctx := context.Background()

	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := c.LoadMore(ctx); err != nil {
			t.Fatalf("LoadMore %d: %v", i, err)
		}
	}
	st := c.State()
	if len(st.Items) != 13 || st.HasMore || st.PageIndex != 2 {
		t.Fatalf("state after 3 pages = %d items, hasMore %v, page %d", len(st.Items), st.HasMore, st.PageIndex)
	}
	for i, it := range st.Items {
		if it.ID != models.PostID(i+1) {
			t.Fatalf("item %d has id %d, pages must concatenate in order", i, it.ID)
		}
	}

	if err := c.LoadMore(ctx); err != nil {
		t.Fatal(err)
	}
	if f.callsFor(3) != 0 {
		t.Error("an exhausted cursor must not fetch")
	}
}

func TestExactMultipleCostsOneEmptyFetch(t *testing.T) {
	f := newPagedFetcher(10)
	c := NewCursor(f, WithLogger(quiet()))
	ctx := context.Background()
	c.Load(ctx)
	c.LoadMore(ctx)
	if !c.State().HasMore {
		t.Fatal("a full second page still reports more")
	}
	c.LoadMore(ctx)
	if st := c.State(); st.HasMore || len(st.Items) != 10 || f.callsFor(2) != 1 {
		t.Errorf("state = %+v, page 2 calls %d", st, f.callsFor(2))
	}
}

func TestConcurrentLoadMoreFetchesOnce(t *testing.T) {
	f := newPagedFetcher(20)
	c := NewCursor(f, WithLogger(quiet()))
	ctx := context.Background()
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}
	gate := f.block(1)

	done := make(chan error, 1)
	go func() { done <- c.LoadMore(ctx) }()
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return f.callsFor(1) == 1 }, "first LoadMore never fetched")

	if !c.State().IsLoadingMore {
		t.Error("cursor should report loading")
	}
	if err := c.LoadMore(ctx); err != nil {
		t.Errorf("re-entrant LoadMore: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	if n := f.callsFor(1); n != 1 {
		t.Errorf("page 1 fetched %d times, want 1", n)
	}
	if st := c.State(); len(st.Items) != 10 || st.PageIndex != 1 {
		t.Errorf("state = %d items, page %d", len(st.Items), st.PageIndex)
	}
}

func TestLoadMoreFailureKeepsState(t *testing.T) {
	f := newPagedFetcher(20)
	boom := errors.New("HTTP error! status: 502")
	f.fail[1] = boom
	center := notify.NewCenter(10, quiet())
	c := NewCursor(f, WithLogger(quiet()), WithNotifier(center))
	ctx := context.Background()
	c.Load(ctx)

	err := c.LoadMore(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	st := c.State()
	if !st.HasMore || st.PageIndex != 0 || len(st.Items) != 5 || st.IsLoadingMore {
		t.Errorf("state after failure = %+v", st)
	}
	recent := center.Recent()
	if len(recent) != 1 || recent[0].Message != boom.Error() {
		t.Errorf("notices = %+v", recent)
	}

	delete(f.fail, 1)
	if err := c.LoadMore(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(c.Items()) != 10 {
		t.Error("retry should append the page")
	}
}

func TestLoadCancelsInFlightLoadMore(t *testing.T) {
	f := newPagedFetcher(20)
	c := NewCursor(f, WithLogger(quiet()))
	ctx := context.Background()
	c.Load(ctx)
	f.block(1)

	done := make(chan error, 1)
	go func() { done <- c.LoadMore(ctx) }()
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return f.callsFor(1) == 1 }, "LoadMore never fetched")

	if err := c.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := <-done; !errors.Is(err, apperr.ErrCanceled) {
		t.Errorf("stale LoadMore err = %v", err)
	}
	if st := c.State(); len(st.Items) != 5 || st.PageIndex != 0 || st.IsLoadingMore {
		t.Errorf("state = %+v", st)
	}
}

func TestFetchTimeout(t *testing.T) {
	f := newPagedFetcher(20)
	c := NewCursor(f, WithLogger(quiet()), WithFetchTimeout(20*time.Millisecond))
	f.block(0)
	err := c.Load(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestCloseCancelsFetch(t *testing.T) {
	f := newPagedFetcher(20)
	c := NewCursor(f, WithLogger(quiet()))
	f.block(0)
	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return f.callsFor(0) == 1 }, "Load never fetched")
	c.Close()
	select {
	case err := <-done:
		if !errors.Is(err, apperr.ErrCanceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not cancel the fetch")
	}
	if err := c.Load(context.Background()); !errors.Is(err, apperr.ErrCanceled) {
		t.Errorf("Load after Close = %v", err)
	}
}

func TestUnmountThenLoadAgain(t *testing.T) {
	f := newPagedFetcher(20)
	c := NewCursor(f, WithLogger(quiet()))
	s := NewSentinel()
	if err := c.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Attach(s)

	gate := f.block(1)
	done := make(chan error, 1)
	go func() { done <- c.LoadMore(context.Background()) }()
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return f.callsFor(1) == 1 }, "LoadMore never fetched")
	c.Unmount()
	select {
	case err := <-done:
		if !errors.Is(err, apperr.ErrCanceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Unmount did not cancel the fetch")
	}
	if s.Observers() != 0 {
		t.Errorf("observers after Unmount = %d", s.Observers())
	}
	if st := c.State(); len(st.Items) != 0 || st.HasMore || st.IsLoadingMore {
		t.Errorf("state after Unmount = %+v", st)
	}
	close(gate)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load after Unmount: %v", err)
	}
	if st := c.State(); len(st.Items) != DefaultPageSize || st.PageIndex != 0 || !st.HasMore {
		t.Errorf("state after reload = %+v", st)
	}
	if f.callsFor(0) != 2 {
		t.Errorf("page 0 fetched %d times, want 2", f.callsFor(0))
	}
}

func TestRemove(t *testing.T) {
	f := newPagedFetcher(5)
	c := NewCursor(f, WithLogger(quiet()))
	c.Load(context.Background())
	if !c.Remove(3) {
		t.Fatal("Remove(3) = false")
	}
	if c.Remove(3) {
		t.Error("second Remove(3) should report false")
	}
	for _, it := range c.Items() {
		if it.ID == 3 {
			t.Error("item 3 still present")
		}
	}
	if len(c.Items()) != 4 {
		t.Errorf("items = %d", len(c.Items()))
	}
}

func TestSentinelTriggersLoadMore(t *testing.T) {
	f := newPagedFetcher(8)
	var changes int
	c := NewCursor(f, WithLogger(quiet()), WithOnChange(func(State) { changes++ }))
	s := NewSentinel()
	c.Attach(s)

	s.SetVisible(true) // before the first load: nothing to page
	if f.callsFor(1) != 0 {
		t.Fatal("sentinel fetched before Load")
	}
	c.Load(context.Background())
	s.SetVisible(false)
	s.SetVisible(true)
	if st := c.State(); len(st.Items) != 8 || st.HasMore {
		t.Fatalf("state = %+v", st)
	}
	s.SetVisible(true)
	if f.callsFor(2) != 0 {
		t.Error("exhausted cursor fetched on visibility")
	}
	if changes == 0 {
		t.Error("onChange never ran")
	}

	c.Detach()
	if s.Observers() != 0 {
		t.Errorf("observers after Detach = %d", s.Observers())
	}
}

func TestLoadAll(t *testing.T) {
	f := newPagedFetcher(12)
	c := NewCursor(f, WithLogger(quiet()), WithPageSize(4))
	if err := c.LoadAll(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	// 4, 4, 4, then one empty page.
	if st := c.State(); len(st.Items) != 12 || st.HasMore || f.callsFor(3) != 1 {
		t.Errorf("state = %+v", st)
	}

	c2 := NewCursor(newPagedFetcher(100), WithLogger(quiet()), WithPageSize(4))
	c2.LoadAll(context.Background(), 2)
	if n := len(c2.Items()); n != 8 {
		t.Errorf("capped LoadAll items = %d, want 8", n)
	}
}
