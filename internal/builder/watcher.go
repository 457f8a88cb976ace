package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to
// settle before rebuilding.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions configure Watch.
type WatchOptions struct {
	Build    Options
	Debounce time.Duration
	// Filter decides whether a changed path should be rebuilt. Nil accepts
	// every file the registry supports.
	Filter func(path string) bool
	// OnBuild receives the result of every incremental rebuild.
	OnBuild func(*Report, error)
}

// Watch rebuilds files under dirs as they change until ctx is done. Removed
// files are dropped from the index. New subdirectories are watched as they
// appear.
func (b *Builder) Watch(ctx context.Context, dirs []string, opts WatchOptions) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("builder: watch: %w", err)
	}
	defer w.Close()

	for _, d := range dirs {
		if err := addTree(w, d); err != nil {
			return fmt.Errorf("builder: watch %s: %w", d, err)
		}
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	accept := opts.Filter
	if accept == nil {
		accept = b.reg.Supports
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
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
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w, ev.Name); err != nil {
						b.log.Warn("watch new directory failed", "dir", ev.Name, "error", err)
					}
					continue
				}
			}
			if !accept(ev.Name) {
				continue
			}
			pending[filepath.Clean(ev.Name)] = true
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.log.Warn("watcher error", "error", err)
		case <-timer.C:
			b.flush(ctx, pending, opts)
			clear(pending)
		}
	}
}

// flush rebuilds the pending paths that still exist and removes the rest.
func (b *Builder) flush(ctx context.Context, pending map[string]bool, opts WatchOptions) {
	var changed, removed []string
	for p := range pending {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			removed = append(removed, p)
			continue
		}
		changed = append(changed, p)
	}
	sort.Strings(changed)
	sort.Strings(removed)

	if len(removed) > 0 {
		if err := b.Remove(ctx, removed); err != nil {
			b.log.Warn("remove deleted files failed", "error", err)
		}
		b.log.Info("removed deleted files", "count", len(removed))
	}
	if len(changed) == 0 {
		return
	}
	report, err := b.Build(ctx, changed, opts.Build)
	if opts.OnBuild != nil {
		opts.OnBuild(report, err)
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && len(d.Name()) > 1 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
