package editor

import (
	"strings"
	"sync"
)

// InsertionPoint is the selection captured at the moment of an insert.
type InsertionPoint struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Engine splices text into a Surface at the current selection.
//
// Cursor repositioning is deferred to the Ticker: the surface must lay out
// the new content before a selection can land on the right offset. Until the
// deferred work runs, the engine answers selection queries from the
// selection it intends to set, so back-to-back operations never read the
// stale caret the surface reports in between.
type Engine struct {
	mu       sync.Mutex
	surface  Surface
	ticker   Ticker
	onChange func()

	pending *InsertionPoint
	uploads int // batches not yet settled
}

// NewEngine returns an engine over surface. onChange, if non-nil, runs after
// every buffer mutation (outside the engine lock).
func NewEngine(surface Surface, ticker Ticker, onChange func()) *Engine {
	return &Engine{surface: surface, ticker: ticker, onChange: onChange}
}

// Text returns the current buffer content.
func (e *Engine) Text() string {
	return e.surface.Text()
}

// Selection returns the selection the user will see once layout settles.
func (e *Engine) Selection() InsertionPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectionLocked()
}

func (e *Engine) selectionLocked() InsertionPoint {
	if e.pending != nil {
		return *e.pending
	}
	start, end := e.surface.Selection()
	return InsertionPoint{Start: start, End: end}
}

// Select moves the selection, as a click or drag in the surface would.
func (e *Engine) Select(start, end int) {
	e.mu.Lock()
	e.pending = nil
	e.surface.SetSelection(start, end)
	e.mu.Unlock()
}

// SetText replaces the buffer, as typing in the surface would, and puts the
// caret at the end.
func (e *Engine) SetText(text string) {
	e.mu.Lock()
	e.pending = nil
	e.surface.SetText(text)
	e.mu.Unlock()
	e.changed()
}

// InsertAtCursor splices text over the selected range [start, end) and places
// the caret right after the inserted text once layout settles. Focus returns
// to the surface at the same time.
func (e *Engine) InsertAtCursor(text string) InsertionPoint {
	e.mu.Lock()
	at := e.insertLocked(text)
	e.mu.Unlock()
	e.changed()
	return at
}

func (e *Engine) insertLocked(text string) InsertionPoint {
	sel := e.selectionLocked()
	buf := []rune(e.surface.Text())
	start, end := clamp(sel.Start, 0, len(buf)), clamp(sel.End, 0, len(buf))
	if start > end {
		start, end = end, start
	}

	ins := []rune(text)
	out := make([]rune, 0, len(buf)-(end-start)+len(ins))
	out = append(out, buf[:start]...)
	out = append(out, ins...)
	out = append(out, buf[end:]...)
	e.surface.SetText(string(out))

	caret := start + len(ins)
	e.reposition(InsertionPoint{Start: caret, End: caret}, true)
	return InsertionPoint{Start: start, End: end}
}

// Replace swaps the first occurrence of old for repl. The selection keeps
// pointing at the same characters: a selection after old shifts by the length
// difference, one inside old collapses to the end of repl. It reports whether
// old was found.
func (e *Engine) Replace(old, repl string) bool {
	e.mu.Lock()
	ok := e.replaceLocked(old, repl)
	e.mu.Unlock()
	if ok {
		e.changed()
	}
	return ok
}

func (e *Engine) replaceLocked(old, repl string) bool {
	text := e.surface.Text()
	byteIdx := strings.Index(text, old)
	if old == "" || byteIdx < 0 {
		return false
	}
	from := len([]rune(text[:byteIdx]))
	to := from + len([]rune(old))
	delta := len([]rune(repl)) - (to - from)

	sel := e.selectionLocked()
	shift := func(p int) int {
		switch {
		case p >= to:
			return p + delta
		case p > from:
			return from + len([]rune(repl))
		default:
			return p
		}
	}

	e.surface.SetText(text[:byteIdx] + repl + text[byteIdx+len(old):])
	e.reposition(InsertionPoint{Start: shift(sel.Start), End: shift(sel.End)}, false)
	return true
}

// reposition records the target selection and defers applying it.
func (e *Engine) reposition(sel InsertionPoint, focus bool) {
	target := sel
	e.pending = &target
	e.ticker.Defer(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		// A later mutation may have superseded this target.
		if e.pending != nil && *e.pending == target {
			e.surface.SetSelection(target.Start, target.End)
			e.pending = nil
		}
		if focus {
			e.surface.Focus()
		}
	})
}

func (e *Engine) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}
