package content

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Source serves the current portfolio. When backed by a file it can watch
// that file and swap in new content as it changes.
type Source struct {
	path    string
	current atomic.Pointer[Portfolio]
	logger  *slog.Logger
}

// NewSource loads path, or the embedded default when path is empty.
func NewSource(path string, logger *slog.Logger) (*Source, error) {
	s := &Source{path: path, logger: logger}
	if path == "" {
		s.current.Store(Default())
		return s, nil
	}
	p, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.current.Store(p)
	return s, nil
}

func (s *Source) Get() *Portfolio {
	return s.current.Load()
}

// Watch reloads the file on change until ctx is done. Invalid edits are
// logged and the previous content is kept. It returns immediately when the
// source is the embedded default.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	// Editors often replace the file, so watch its directory.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}
	s.logger.Info("watching portfolio content", "path", s.path)

	target := filepath.Clean(s.path)
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("portfolio watcher error", "error", err)
		case <-timer.C:
			s.reload()
		}
	}
}

func (s *Source) reload() {
	p, err := LoadFile(s.path)
	if err != nil {
		s.logger.Warn("portfolio reload failed, keeping previous content", "path", s.path, "error", err)
		return
	}
	s.current.Store(p)
	s.logger.Info("portfolio content reloaded", "path", s.path)
}
