package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/flowpilot-io/flowpilot/pkg/config"
)

// workflowFile is the yaml shape of a standalone workflow definition file.
type workflowFile struct {
	Workflows []config.WorkflowSpec `yaml:"workflows"`
}

// LoadWorkflowFile reads workflow specs from a standalone yaml file.
func LoadWorkflowFile(path string) ([]config.WorkflowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}
	return file.Workflows, nil
}

// Watcher hot-reloads a file-backed catalog when the definition file
// changes. Events are debounced because editors fire several writes per
// save; a reload that fails to parse keeps the previous workflow set.
type Watcher struct {
	watcher       *fsnotify.Watcher
	path          string
	catalog       *MemoryCatalog
	debounceDelay time.Duration
	cancel        context.CancelFunc
	mu            sync.Mutex
	isWatching    bool
}

// NewWatcher creates a watcher for the given workflow file.
func NewWatcher(path string, catalog *MemoryCatalog) (*Watcher, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:       fsWatcher,
		path:          path,
		catalog:       catalog,
		debounceDelay: 200 * time.Millisecond,
	}, nil
}

// Start begins watching the workflow file for changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isWatching {
		return nil
	}

	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would go stale.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var watchCtx context.Context
	watchCtx, w.cancel = context.WithCancel(ctx)
	w.isWatching = true

	go w.watchEvents(watchCtx)

	slog.Info("Started workflow file watcher", "path", w.path)
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isWatching {
		return nil
	}
	w.cancel()
	w.isWatching = false

	if err := w.watcher.Close(); err != nil {
		return err
	}
	slog.Info("Stopped workflow file watcher", "path", w.path)
	return nil
}

func (w *Watcher) watchEvents(ctx context.Context) {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("workflow file watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	specs, err := LoadWorkflowFile(w.path)
	if err != nil {
		slog.Warn("workflow file reload failed, keeping current set",
			"path", w.path, "error", err)
		return
	}
	if err := w.catalog.ReplaceFromSpecs(specs); err != nil {
		slog.Warn("workflow file rejected, keeping current set",
			"path", w.path, "error", err)
		return
	}
	slog.Info("Reloaded workflow definitions", "path", w.path, "count", len(specs))
}
