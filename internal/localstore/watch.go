package localstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback receives the key of a slot that changed on disk.
type ChangeCallback func(key string)

const watchSettle = 100 * time.Millisecond

// Watch reports slot files that are created, rewritten, or removed under the
// root until ctx is cancelled. The callback also fires for this process's own
// writes; callers that care compare the slot content with what they wrote.
//
// Bursts of events for the same key (an atomic rename produces several) are
// coalesced into one callback after a short settle period.
func (f *FS) Watch(ctx context.Context, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(f.root); err != nil {
		return err
	}
	logger.Info("localstore: watching", slog.String("root", f.root))

	dirty := make(map[string]struct{})
	var settle *time.Timer
	var settleCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			logger.Info("localstore: watch stopped")
			return nil

		case <-settleCh:
			for key := range dirty {
				delete(dirty, key)
				cb(key)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, slotExt) || strings.HasPrefix(name, ".") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			dirty[strings.TrimSuffix(name, slotExt)] = struct{}{}
			if settle == nil {
				settle = time.NewTimer(watchSettle)
				settleCh = settle.C
			} else {
				settle.Reset(watchSettle)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("localstore: watch error", slog.String("error", watchErr.Error()))
		}
	}
}
