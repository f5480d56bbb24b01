package testutil

import (
	"sync"
	"time"

	"github.com/starford/scribe/internal/autosave"
)

// ManualTimers is an autosave.AfterFunc whose timers fire only on Fire.
type ManualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// AfterFunc registers fn; d is ignored.
func (m *ManualTimers) AfterFunc(_ time.Duration, fn func()) autosave.Timer {
	t := &manualTimer{fn: fn}
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return t
}

// Fire runs every live timer and reports how many ran.
func (m *ManualTimers) Fire() int {
	m.mu.Lock()
	timers := m.timers
	m.timers = nil
	m.mu.Unlock()
	n := 0
	for _, t := range timers {
		t.mu.Lock()
		live := !t.stopped
		t.stopped = true
		t.mu.Unlock()
		if live {
			t.fn()
			n++
		}
	}
	return n
}

// Live counts timers not yet stopped or fired.
func (m *ManualTimers) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		t.mu.Lock()
		if !t.stopped {
			n++
		}
		t.mu.Unlock()
	}
	return n
}
