// Package draft persists the single in-progress post into a local slot.
package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/localstore"
	"github.com/starford/scribe/internal/models"
)

// DefaultKey is the slot the web composer has always used.
const DefaultKey = "blogDraft"

// Store reads and writes the draft slot. There is one slot per local store, with
// no per-post identity. Several composers sharing a store overwrite each
// other; the last save wins.
type Store struct {
	kv     localstore.Store
	key    string
	logger *slog.Logger

	mu      sync.Mutex
	last    string // last value this store wrote or loaded
	hasLast bool
}

// NewStore returns a draft store over kv. An empty key selects DefaultKey.
func NewStore(kv localstore.Store, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, key: key, logger: logger}
}

// Key returns the slot key.
func (s *Store) Key() string { return s.key }

// Load returns the persisted draft. ok is false when no draft is stored.
func (s *Store) Load() (models.Draft, bool, error) {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		return models.Draft{}, false, fmt.Errorf("draft: load: %w: %w", apperr.ErrPersistence, err)
	}
	if !ok {
		return models.Draft{}, false, nil
	}
	var d models.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return models.Draft{}, false, fmt.Errorf("draft: decode: %w: %w", apperr.ErrPersistence, err)
	}

	s.mu.Lock()
	s.last, s.hasLast = string(raw), true
	s.mu.Unlock()
	return d, true, nil
}

// Save writes d only when its encoding differs from the value currently in
// the slot. It reports whether a write happened.
func (s *Store) Save(d models.Draft) (bool, error) {
	raw, err := encode(d)
	if err != nil {
		return false, fmt.Errorf("draft: encode: %w", err)
	}
	encoded := string(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok, err := s.kv.Get(s.key)
	switch {
	case err != nil:
		// Slot unreadable; fall back to what this store last wrote.
		if s.hasLast && s.last == encoded {
			return false, nil
		}
	case ok && string(current) == encoded:
		s.last, s.hasLast = encoded, true
		return false, nil
	}

	if err := s.kv.Put(s.key, raw); err != nil {
		return false, fmt.Errorf("draft: save: %w: %w", apperr.ErrPersistence, err)
	}
	s.last, s.hasLast = encoded, true
	s.logger.Debug("draft saved", slog.String("key", s.key), slog.Int("bytes", len(raw)))
	return true, nil
}

// Clear removes the persisted draft.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(s.key); err != nil {
		return fmt.Errorf("draft: clear: %w: %w", apperr.ErrPersistence, err)
	}
	s.last, s.hasLast = "", false
	return nil
}

// Watcher is implemented by local stores that can report external slot changes.
type Watcher interface {
	Watch(ctx context.Context, logger *slog.Logger, cb localstore.ChangeCallback) error
}

// Watch calls onExternal with the new draft whenever another process rewrites
// the slot. Changes this store made itself are filtered out. A cleared slot is
// reported as an empty draft. Watch blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, w Watcher, onExternal func(models.Draft)) error {
	return w.Watch(ctx, s.logger, func(key string) {
		if key != s.key {
			return
		}
		raw, ok, err := s.kv.Get(s.key)
		if err != nil {
			s.logger.Warn("draft: watch read failed", slog.String("error", err.Error()))
			return
		}

		s.mu.Lock()
		own := (ok && s.hasLast && s.last == string(raw)) || (!ok && !s.hasLast)
		if !own {
			s.last, s.hasLast = string(raw), ok
		}
		s.mu.Unlock()
		if own {
			return
		}

		var d models.Draft
		if ok {
			if err := json.Unmarshal(raw, &d); err != nil {
				s.logger.Warn("draft: watch decode failed", slog.String("error", err.Error()))
				return
			}
		}
		s.logger.Info("draft changed by another composer", slog.String("key", s.key))
		onExternal(d)
	})
}

// encode serializes d without HTML escaping, so markup such as a <video>
// element is stored as written.
func encode(d models.Draft) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
