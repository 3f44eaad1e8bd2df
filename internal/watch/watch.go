// Package watch rebuilds when source files change.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RebuildFunc is called with the changed files once events settle. It
// returns the files to watch from then on; on error the previous set is kept.
type RebuildFunc func(ctx context.Context, changed []string) ([]string, error)

// Watch tracks paths until ctx is cancelled. Parent directories are
// watched rather than the files themselves so that editors replacing a
// file through a rename are still seen. Events for other files in those
// directories, such as build outputs, are ignored.
func Watch(ctx context.Context, paths []string, debounce time.Duration, logger *slog.Logger, rebuild RebuildFunc) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	t := &tracker{w: w, dirs: map[string]bool{}, files: map[string]bool{}, logger: logger}
	if err := t.set(paths); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.Int("files", len(t.files)), slog.Int("dirs", len(t.dirs)))

	var timer *time.Timer
	var timerCh <-chan time.Time
	pending := map[string]bool{}

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			logger.Info("watcher: change detected", slog.Any("files", changed))
			next, err := rebuild(ctx, changed)
			if err != nil {
				logger.Error("watcher: rebuild failed", slog.String("error", err.Error()))
				continue
			}
			if err := t.set(next); err != nil {
				logger.Warn("watcher: update watch list failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			name := filepath.Clean(ev.Name)
			if !t.files[name] {
				continue
			}
			logger.Debug("watcher: event", slog.String("path", name), slog.String("op", ev.Op.String()))
			pending[name] = true
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// tracker keeps the fsnotify directory list in step with the file set.
type tracker struct {
	w      *fsnotify.Watcher
	dirs   map[string]bool
	files  map[string]bool
	logger *slog.Logger
}

func (t *tracker) set(paths []string) error {
	files := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if t.dirs[d] {
			continue
		}
		if err := t.w.Add(d); err != nil {
			t.logger.Warn("watcher: add dir failed", slog.String("path", d), slog.String("error", err.Error()))
			delete(dirs, d)
		}
	}
	for d := range t.dirs {
		if !dirs[d] {
			_ = t.w.Remove(d)
		}
	}
	t.dirs = dirs
	t.files = files
	return nil
}
