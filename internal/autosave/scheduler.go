// Package autosave owns the debounce timer that turns a burst of edits into
// a single draft save.
package autosave

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDelay is the quiet period after the last edit before a save fires.
const DefaultDelay = 5 * time.Second

// State of the scheduler.
type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "idle"
}

// Timer is the handle returned by AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn to run once after d.
type AfterFunc func(d time.Duration, fn func()) Timer

// RealAfterFunc wraps time.AfterFunc.
func RealAfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SaveFunc persists the current draft. It reports whether anything was
// written.
type SaveFunc func() (bool, error)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDelay overrides DefaultDelay. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithAfterFunc replaces the timer source.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) { s.after = fn }
}

// WithLogger sets the logger used for save failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler debounces Changed calls into one save per quiet period.
//
// Every arm bumps a generation number. A timer whose callback runs after it
// was superseded or stopped sees a newer generation and does nothing, so a
// callback racing with Stop or SaveNow never saves twice.
type Scheduler struct {
	save   SaveFunc
	delay  time.Duration
	after  AfterFunc
	logger *slog.Logger

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	state   State
	stopped bool
	saves   int
}

// New returns an idle scheduler that calls save.
func New(save SaveFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		save:   save,
		delay:  DefaultDelay,
		after:  RealAfterFunc,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Changed records an edit and restarts the quiet period.
func (s *Scheduler) Changed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked()
	s.gen++
	gen := s.gen
	s.state = Pending
	s.timer = s.after(s.delay, func() { s.fire(gen) })
}

// SaveNow cancels any pending timer and saves immediately.
func (s *Scheduler) SaveNow() (bool, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false, nil
	}
	s.cancelLocked()
	s.gen++
	s.state = Idle
	s.mu.Unlock()
	return s.run("manual")
}

// Stop cancels a pending save without running it. Later Changed calls are
// ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.gen++
	s.state = Idle
	s.stopped = true
}

// State reports whether a save is armed.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Saves counts save calls, timer-driven and manual.
func (s *Scheduler) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.state = Idle
	s.mu.Unlock()
	s.run("debounce") //nolint:errcheck // logged in run
}

func (s *Scheduler) run(trigger string) (bool, error) {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()

	written, err := s.save()
	if err != nil {
		s.logger.Warn("autosave: save failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()))
		return false, err
	}
	if written {
		s.logger.Debug("autosave: draft saved", slog.String("trigger", trigger))
	}
	return written, nil
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
