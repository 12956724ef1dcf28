package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloadable is anything whose rules can be re-read from disk.
type Reloadable interface {
	Reload() error
}

// Reloader watches rule files for changes and triggers hot-reload.
type Reloader struct {
	watcher  *fsnotify.Watcher
	target   Reloadable
	logger   *zap.Logger
	paths    []string
	debounce time.Duration
}

// NewReloader creates a file watcher for the given paths. Paths that are
// empty or do not exist yet are skipped.
func NewReloader(target Reloadable, paths []string, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	var watched []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", p, err)
		}
		watched = append(watched, p)
	}

	return &Reloader{
		watcher:  watcher,
		target:   target,
		logger:   logger,
		paths:    watched,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Paths returns the files actually being watched.
func (r *Reloader) Paths() []string { return r.paths }

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait after the last write before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				name := event.Name
				debounce = time.AfterFunc(r.debounce, func() {
					if err := r.target.Reload(); err != nil {
						r.logger.Error("hot-reload failed, keeping previous rules", zap.String("file", name), zap.Error(err))
					} else {
						r.logger.Info("hot-reload complete", zap.String("file", name))
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
