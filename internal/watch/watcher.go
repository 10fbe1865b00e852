package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher reports changes to a single file. It watches the parent
// directory so editors that save by writing a temp file and renaming it
// over the original are still seen.
type FileWatcher struct {
	path    string
	name    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewFileWatcher creates a watcher for path. The file's directory must exist.
func NewFileWatcher(path string, logger *slog.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &FileWatcher{
		path:    abs,
		name:    filepath.Base(abs),
		watcher: watcher,
		logger:  logger,
	}, nil
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string { return w.path }

// Run calls onChange for every write or create of the file until ctx is
// cancelled or the watcher is closed.
func (w *FileWatcher) Run(ctx context.Context, onChange func()) {
	w.logger.Debug("watching file", slog.String("path", w.path))
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.Any("error", err))
		case <-ctx.Done():
			return
		}
	}
}

func (w *FileWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != w.name {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

// Close stops the watcher. Safe to call multiple times.
func (w *FileWatcher) Close() error {
	return w.watcher.Close()
}
