// Package notify carries user-visible notices (toasts) from the core to
// whatever surface displays them.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is one message shown to the user.
type Notice struct {
	ID      uint64    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier accepts notices.
type Notifier interface {
	Notify(level Level, message string)
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(Level, string) {}

// Error sends err's message verbatim as an error notice.
func Error(n Notifier, err error) {
	if n == nil || err == nil {
		return
	}
	n.Notify(LevelError, err.Error())
}

// Center keeps the most recent notices and fans them out to subscribers.
type Center struct {
	logger *slog.Logger
	keep   int

	mu      sync.Mutex
	nextID  uint64
	recent  []Notice
	subs    map[uint64]func(Notice)
	nextSub uint64
}

// NewCenter returns a center retaining up to keep notices.
func NewCenter(keep int, logger *slog.Logger) *Center {
	if keep <= 0 {
		keep = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{logger: logger, keep: keep, subs: make(map[uint64]func(Notice))}
}

func (c *Center) Notify(level Level, message string) {
	c.mu.Lock()
	c.nextID++
	n := Notice{ID: c.nextID, Level: level, Message: message, At: time.Now()}
	c.recent = append(c.recent, n)
	if len(c.recent) > c.keep {
		c.recent = c.recent[len(c.recent)-c.keep:]
	}
	subs := make([]func(Notice), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	c.logger.Debug("notify: notice", slog.String("level", string(level)), slog.String("message", message))
	for _, fn := range subs {
		fn(n)
	}
}

// Recent returns the retained notices, oldest first.
func (c *Center) Recent() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, len(c.recent))
	copy(out, c.recent)
	return out
}

// Subscribe registers fn for every later notice. fn runs on the notifying
// goroutine. The returned func unsubscribes.
func (c *Center) Subscribe(fn func(Notice)) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
