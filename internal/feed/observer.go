package feed

import (
	"context"
	"sync"
)

// VisibilityObserver reports when the end-of-list sentinel scrolls into or
// out of view. Observe returns a func that stops the observation.
type VisibilityObserver interface {
	Observe(cb func(visible bool)) (unobserve func())
}

// Attach starts observing the sentinel. Whenever it becomes visible while
// more pages exist and no fetch is running, the cursor loads the next page.
// Attaching replaces a previous observer.
func (c *Cursor) Attach(o VisibilityObserver) {
	c.Detach()
	stop := o.Observe(func(visible bool) {
		if !visible {
			return
		}
		c.mu.Lock()
		ready := !c.closed && c.hasMore && !c.loading
		c.mu.Unlock()
		if ready {
			_ = c.LoadMore(c.life) // notified in LoadMore
		}
	})
	c.mu.Lock()
	c.unobserve = stop
	c.mu.Unlock()
}

// Detach stops the current observation, if any.
func (c *Cursor) Detach() {
	c.mu.Lock()
	stop := c.unobserve
	c.unobserve = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Sentinel is a VisibilityObserver driven by explicit visibility reports,
// used by the studio and tests in place of a browser intersection observer.
type Sentinel struct {
	mu      sync.Mutex
	next    int
	cbs     map[int]func(bool)
	visible bool
}

func NewSentinel() *Sentinel {
	return &Sentinel{cbs: make(map[int]func(bool))}
}

func (s *Sentinel) Observe(cb func(visible bool)) func() {
	s.mu.Lock()
	s.next++
	id := s.next
	s.cbs[id] = cb
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.cbs, id)
		s.mu.Unlock()
	}
}

// SetVisible records the sentinel's visibility and notifies observers on the
// caller's goroutine.
func (s *Sentinel) SetVisible(visible bool) {
	s.mu.Lock()
	s.visible = visible
	cbs := make([]func(bool), 0, len(s.cbs))
	for _, cb := range s.cbs {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(visible)
	}
}

// Observers reports how many observations are active.
func (s *Sentinel) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cbs)
}

// Visible reports the last recorded visibility.
func (s *Sentinel) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

var _ VisibilityObserver = (*Sentinel)(nil)

// LoadAll keeps loading pages until the feed is exhausted or ctx ends. Used
// by one-shot CLI listings.
func (c *Cursor) LoadAll(ctx context.Context, maxPages int) error {
	if err := c.Load(ctx); err != nil {
		return err
	}
	for i := 1; maxPages <= 0 || i < maxPages; i++ {
		if !c.State().HasMore {
			return nil
		}
		if err := c.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}
