// Package editor implements cursor-aware text insertion into the composer's
// edit buffer, including media references that resolve after an upload.
package editor

import "sync"

// Surface is the edit buffer the engine splices into. Offsets are rune
// offsets into Text.
type Surface interface {
	Text() string
	// SetText replaces the whole buffer. Like a textarea whose value is
	// assigned, the caret lands at the end until layout settles and a
	// selection is set again.
	SetText(text string)
	Selection() (start, end int)
	SetSelection(start, end int)
	Focus()
}

// Buffer is a headless Surface used by the studio, the CLI and tests.
type Buffer struct {
	mu      sync.Mutex
	text    []rune
	start   int
	end     int
	focused bool
}

// NewBuffer returns a buffer holding text with the caret at the end.
func NewBuffer(text string) *Buffer {
	b := &Buffer{}
	b.SetText(text)
	return b
}

func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.text)
}

func (b *Buffer) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = []rune(text)
	b.start, b.end = len(b.text), len(b.text)
}

func (b *Buffer) Selection() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start, b.end
}

// SetSelection clamps both bounds to the buffer and orders them.
func (b *Buffer) SetSelection(start, end int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.text)
	start, end = clamp(start, 0, n), clamp(end, 0, n)
	if start > end {
		start, end = end, start
	}
	b.start, b.end = start, end
}

func (b *Buffer) Focus() {
	b.mu.Lock()
	b.focused = true
	b.mu.Unlock()
}

// Blur drops focus, as when the user clicks a toolbar button.
func (b *Buffer) Blur() {
	b.mu.Lock()
	b.focused = false
	b.mu.Unlock()
}

// Focused reports whether the buffer holds focus.
func (b *Buffer) Focused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
