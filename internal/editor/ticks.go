package editor

import "sync"

// Ticker defers work until the surface has laid out its new content.
type Ticker interface {
	Defer(fn func())
}

// Ticks is a Ticker driven by explicit Flush calls, one per paint.
type Ticks struct {
	mu    sync.Mutex
	queue []func()
}

func (t *Ticks) Defer(fn func()) {
	t.mu.Lock()
	t.queue = append(t.queue, fn)
	t.mu.Unlock()
}

// Flush runs the work deferred before the call, in order. Work deferred while
// flushing waits for the next Flush. It returns how many funcs ran.
func (t *Ticks) Flush() int {
	t.mu.Lock()
	queue := t.queue
	t.queue = nil
	t.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// Pending reports how many deferred funcs are waiting.
func (t *Ticks) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}
