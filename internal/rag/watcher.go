package rag

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay is how long the watcher waits after the last filesystem
// mutation before re-indexing.
const debounceDelay = 3 * time.Second

// Watcher keeps an Index warm by re-indexing changed files on a debounce
// timer. The index stays read-only from the agentic loop's perspective;
// all mutation happens on the watcher goroutine.
type Watcher struct {
	index   *Index
	watcher *fsnotify.Watcher
}

// Watch starts watching the index's root (recursively) and returns the
// running Watcher. It stops when ctx is cancelled.
func Watch(ctx context.Context, index *Index) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{index: index, watcher: fsw}
	if err := w.addRecursive(index.root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run(ctx)
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] || (strings.HasPrefix(d.Name(), ".") && path != root) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories need their own watch before events arrive.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addRecursive(ev.Name)
					continue
				}
			}
			pending[ev.Name] = true
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case <-timerC:
			for path := range pending {
				w.index.Update(path)
			}
			slog.Debug("rag: debounced re-index", "files", len(pending), "docs", w.index.DocCount())
			pending = make(map[string]bool)
			timer = nil
			timerC = nil

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("rag: watcher error", "error", err)
		}
	}
}
