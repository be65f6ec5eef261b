package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls back when any of a set of files or directories changes.
type Watcher struct {
	Debounce time.Duration
	logger   zerolog.Logger
}

// NewWatcher returns a Watcher with DefaultDebounce.
func NewWatcher(logger zerolog.Logger) *Watcher {
	return &Watcher{
		Debounce: DefaultDebounce,
		logger:   logger.With().Str("subsystem", "watch").Logger(),
	}
}

// Watch blocks until ctx is done, calling onChange with the sorted changed
// paths after each quiet period. Files are watched through their parent
// directory so that atomic-rename saves are seen; directories are watched
// recursively. onChange runs on the calling goroutine and its errors are
// logged.
func (w *Watcher) Watch(ctx context.Context, paths []string, onChange func(ctx context.Context, changed []string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			if err := addTree(watcher, abs); err != nil {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
			dirs = append(dirs, abs)
			continue
		}
		files[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	w.logger.Info().Strs("paths", paths).Msg("watching for changes")

	relevant := func(name string) bool {
		if files[name] {
			return true
		}
		for _, d := range dirs {
			if name == d || strings.HasPrefix(name, d+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !relevant(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addTree(watcher, event.Name)
				}
			}
			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("change detected")
			pending[event.Name] = true
			timer.Reset(debounce)

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)

			if err := onChange(ctx, changed); err != nil {
				w.logger.Error().Err(err).Strs("changed", changed).Msg("reload failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
