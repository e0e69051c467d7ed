// Package contentwatch re-ingests a course when files in its content
// directory change.
package contentwatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// IngestFunc rebuilds the knowledge base of one course.
type IngestFunc func(ctx context.Context, courseID int64) error

// Watcher watches root/<course id>/... and calls ingest for a course once its
// files have been quiet for the debounce interval.
type Watcher struct {
	root     string
	ingest   IngestFunc
	debounce time.Duration
	watcher  *fsnotify.Watcher
	pending  map[int64]time.Time
}

// New creates a watcher over root. Directories are registered when Run starts.
func New(root string, ingest IngestFunc, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		root:     filepath.Clean(root),
		ingest:   ingest,
		debounce: debounce,
		watcher:  fw,
		pending:  make(map[int64]time.Time),
	}, nil
}

// addTree registers dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// courseOf returns the course a path belongs to: the first path element
// below root, when it is a positive integer.
func (w *Watcher) courseOf(path string) (int64, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return 0, false
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Run watches until ctx is done. It always closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create content dir: %w", err)
	}
	if err := w.addTree(w.root); err != nil {
		return err
	}
	slog.Info("watching course content", "dir", w.root)

	tick := time.NewTicker(w.debounce / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("content watcher error", "error", err)

		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("could not watch new directory", "path", event.Name, "error", err)
			}
		}
	}
	id, ok := w.courseOf(event.Name)
	if !ok {
		return
	}
	slog.Debug("course content changed", "course_id", id, "path", event.Name, "op", event.Op.String())
	w.pending[id] = time.Now()
}

// flush ingests every course whose last change is older than the debounce
// interval.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for id, last := range w.pending {
		if now.Sub(last) < w.debounce {
			continue
		}
		delete(w.pending, id)
		if err := w.ingest(ctx, id); err != nil {
			slog.Error("re-ingest failed", "course_id", id, "error", err)
			continue
		}
		slog.Info("re-ingested course after content change", "course_id", id)
	}
}
