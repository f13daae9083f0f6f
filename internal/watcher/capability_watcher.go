// Package watcher reloads capability definition files from a directory.
// Each reload is a per-source overwrite under the registry's lock. The
// watcher does not coordinate with searches in flight: a search that reads
// the registry after a reload sees the new capability.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"unisearch/internal/capability"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceWindow coalesces the burst of write events editors emit for one
// logical save.
const debounceWindow = 250 * time.Millisecond

// CapabilityWatcher watches a directory of *.json capability documents and
// registers each one as it appears or changes.
type CapabilityWatcher struct {
	dir      string
	registry *capability.Registry
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	pending  map[string]time.Time
}

// New creates a CapabilityWatcher over dir. The directory must exist.
func New(dir string, registry *capability.Registry, logger *zap.Logger) (*CapabilityWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("capability watcher: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("capability watcher: %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("capability watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("capability watcher: watching %s: %w", dir, err)
	}

	return &CapabilityWatcher{
		dir:      dir,
		registry: registry,
		logger:   logger,
		watcher:  fw,
		pending:  make(map[string]time.Time),
	}, nil
}

// LoadExisting registers every *.json file already present in the directory.
// Files that fail to parse or validate are logged and skipped.
func (w *CapabilityWatcher) LoadExisting() int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("capability directory scan failed", zap.String("dir", w.dir), zap.Error(err))
		return 0
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if w.registerFile(filepath.Join(w.dir, entry.Name())) {
			loaded++
		}
	}
	w.logger.Info("capability directory loaded",
		zap.String("dir", w.dir),
		zap.Int("files", loaded))
	return loaded
}

// Run processes filesystem events until ctx is cancelled. It is expected to
// be launched in its own goroutine.
func (w *CapabilityWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.pending[event.Name] = time.Now()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("capability watcher error", zap.Error(err))
		case <-ticker.C:
			now := time.Now()
			for path, stamp := range w.pending {
				if now.Sub(stamp) < debounceWindow {
					continue
				}
				delete(w.pending, path)
				w.registerFile(path)
			}
		}
	}
}

func (w *CapabilityWatcher) registerFile(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("capability file unreadable", zap.String("path", path), zap.Error(err))
		return false
	}
	if err := w.registry.RegisterFromPayload(raw); err != nil {
		w.logger.Warn("capability file rejected", zap.String("path", path), zap.Error(err))
		return false
	}
	w.logger.Info("capability file registered", zap.String("path", path))
	return true
}
