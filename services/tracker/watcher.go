package tracker

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
	"github.com/meghashyamc/omnisearch/logger"
)

// Watcher feeds filesystem events under a set of roots into a Tracker.
type Watcher struct {
	logger  logger.Logger
	tracker *Tracker
	watcher *fsnotify.Watcher
	exclude []string
}

// NewWatcher watches every directory below roots except excluded folder
// names.
func NewWatcher(logger logger.Logger, tracker *Tracker, roots []string, exclude []string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("could not create filesystem watcher", "err", err.Error())
		return nil, fmt.Errorf("could not create filesystem watcher: %w", err)
	}

	w := &Watcher{logger: logger, tracker: tracker, watcher: fsWatcher, exclude: exclude}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("could not access path while adding watches", "path", path, "err", err.Error())
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && slices.Contains(w.exclude, d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("could not watch directory", "path", path, "err", err.Error())
		}
		return nil
	})
}

// Run forwards events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "err", err.Error())
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() && !slices.Contains(w.exclude, info.Name()) {
			if err := w.addTree(path); err != nil {
				w.logger.Warn("could not watch new directory", "path", path, "err", err.Error())
			}
		}
		w.tracker.OnChanged([]string{path}, nil, nil)
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		w.tracker.OnChanged([]string{path}, nil, nil)
	case event.Has(fsnotify.Remove):
		w.tracker.OnChanged(nil, []string{path}, nil)
	case event.Has(fsnotify.Rename):
		// the new name arrives as its own Create event
		w.tracker.OnChanged(nil, nil, []string{path})
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
