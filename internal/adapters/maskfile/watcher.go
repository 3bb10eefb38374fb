// Package maskfile reloads the masked-application list from a text
// file while a capture session runs. One application name per line,
// blank lines and #-comments ignored.
package maskfile

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veilcap/veilcap/internal/ports"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher pushes the mask list to apply whenever the file changes.
// Editors replace files on save, so the parent directory is watched
// and events are debounced.
type Watcher struct {
	path     string
	apply    func([]string)
	debounce time.Duration
	logger   ports.Logger

	mu      sync.Mutex
	pending *time.Timer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for the given mask file. apply receives
// the parsed list, including on the initial load.
func NewWatcher(path string, apply func([]string), logger ports.Logger) *Watcher {
	return &Watcher{
		path:     path,
		apply:    apply,
		debounce: defaultDebounce,
		logger:   logger,
	}
}

// Start loads the file once and begins watching for changes.
func (w *Watcher) Start(ctx context.Context) error {
	apps, err := ParseFile(w.path)
	if err != nil {
		return err
	}
	w.apply(apps)
	w.logger.Info("mask file loaded",
		ports.String("path", w.path),
		ports.Int("apps", len(apps)))

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.watchLoop(watchCtx)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("mask watcher: failed to create watcher", ports.Err(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Error("mask watcher: failed to watch directory", ports.Err(err))
		return
	}

	target := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("mask watcher: watch error", ports.Err(err))
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	apps, err := ParseFile(w.path)
	if err != nil {
		// Keep the previous list on a transient read failure.
		w.logger.Warn("mask file reload failed", ports.Err(err))
		return
	}
	w.apply(apps)
	w.logger.Info("mask list updated", ports.Int("apps", len(apps)))
}

// ParseFile reads a mask list file.
func ParseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var apps []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		apps = append(apps, line)
	}
	return apps, scanner.Err()
}
