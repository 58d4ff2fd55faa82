package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/mattjoyce/lookout/internal/log"
)

// DefaultQuietPeriod is how long a seed file must stay untouched before it
// is re-imported.
const DefaultQuietPeriod = 250 * time.Millisecond

// Watcher re-imports seed files when they change on disk.
type Watcher struct {
	store    *Store
	patterns []string
	quiet    time.Duration
	onChange func(ImportReport)
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	// deep holds the base directories of patterns that reach into
	// subdirectories; directories created below them are watched too.
	deep []string
}

type WatcherOption func(*Watcher)

// WithQuietPeriod overrides DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.quiet = d
		}
	}
}

// OnChange registers a callback for every import or removal that changed
// the catalog. It runs on the watcher goroutine.
func OnChange(fn func(ImportReport)) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// NewWatcher starts watching the directories that hold the seed patterns.
// Call Run to process events.
func NewWatcher(store *Store, patterns []string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	w := &Watcher{
		store:    store,
		patterns: patterns,
		quiet:    DefaultQuietPeriod,
		onChange: func(ImportReport) {},
		logger:   log.WithComponent("catalog-watcher"),
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.deep = deepBases(patterns)

	dirs, err := watchDirs(patterns)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("failed to watch directory", "dir", dir, "error", err)
			continue
		}
		w.logger.Debug("watching directory", "dir", dir)
	}
	if len(fsw.WatchList()) == 0 {
		_ = fsw.Close()
		return nil, fmt.Errorf("no directories to watch for seed patterns %v", patterns)
	}
	return w, nil
}

// watchDirs returns the directories of every current seed file plus the
// static base directory of every pattern, so new files are noticed too.
func watchDirs(patterns []string) ([]string, error) {
	files, err := DiscoverSeeds(patterns)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, f := range files {
		set[filepath.Dir(f)] = struct{}{}
	}
	for _, p := range patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(p))
		abs, err := filepath.Abs(filepath.FromSlash(base))
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			set[abs] = struct{}{}
		}
	}
	dirs := make([]string, 0, len(set))
	for d := range set {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// deepBases returns the absolute base directory of every pattern whose
// remainder spans directories, such as seeds/**/*.yaml or seeds/*/x.yaml.
func deepBases(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		base, rest := doublestar.SplitPattern(filepath.ToSlash(p))
		if !strings.Contains(rest, "/") && !strings.Contains(rest, "**") {
			continue
		}
		if abs, err := filepath.Abs(filepath.FromSlash(base)); err == nil {
			out = append(out, abs)
		}
	}
	return out
}

func (w *Watcher) isBelowDeepBase(dir string) bool {
	for _, base := range w.deep {
		rel, err := filepath.Rel(base, dir)
		if err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// watchTree watches root and its subdirectories, and marks seed files that
// were created inside before the watch was in place.
func (w *Watcher) watchTree(root string, pending map[string]struct{}) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("failed to watch directory", "dir", path, "error", err)
				return filepath.SkipDir
			}
			w.logger.Debug("watching new directory", "dir", path)
			return nil
		}
		if MatchesAny(w.patterns, path) {
			pending[path] = struct{}{}
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("failed to scan new directory", "dir", root, "error", err)
	}
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.quiet)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && w.isBelowDeepBase(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.watchTree(event.Name, pending)
					if len(pending) > 0 {
						timer.Reset(w.quiet)
					}
					continue
				}
			}
			if !MatchesAny(w.patterns, event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.quiet)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			for _, p := range paths {
				w.sync(ctx, p)
			}
		}
	}
}

// sync re-imports path, or drops its sources when the file is gone.
func (w *Watcher) sync(ctx context.Context, path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		n, err := w.store.RemoveOrigin(ctx, path)
		if err != nil {
			w.logger.Error("failed to remove seed", "path", path, "error", err)
			return
		}
		if n > 0 {
			w.logger.Info("seed removed", "path", path, "entries", n)
			w.onChange(ImportReport{Origin: path, Removed: n})
		}
		return
	}

	seed, err := LoadSeedFile(path)
	if err != nil {
		w.logger.Warn("skipping invalid seed", "path", path, "error", err)
		return
	}
	report, err := w.store.Import(ctx, seed, path)
	if err != nil {
		w.logger.Error("seed import failed", "path", path, "error", err)
		return
	}
	log.WithSource(report.Source).Info("seed re-imported",
		"path", path,
		"added", report.Added,
		"updated", report.Updated,
		"removed", report.Removed,
	)
	if report.Changed() {
		w.onChange(report)
	}
}
