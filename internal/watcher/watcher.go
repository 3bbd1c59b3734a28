package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultmcp/vaultmcp/internal/extract"
)

// VaultWatcher watches a vault recursively with fsnotify and emits
// debounced FileChange batches for supported documents.
type VaultWatcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	opts      Options
	root      string

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// New creates a watcher. Start must be called to begin delivery.
func New(opts Options) (*VaultWatcher, error) {
	opts = opts.WithDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &VaultWatcher{
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		opts:      opts,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches root recursively until the context is cancelled or Stop
// is called. It blocks; run it in a goroutine and consume Changes.
func (w *VaultWatcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve vault path: %w", err)
	}
	w.root = absRoot

	if err := w.addRecursive(absRoot); err != nil {
		return fmt.Errorf("failed to watch vault: %w", err)
	}
	slog.Info("watch_started", slog.String("vault", absRoot))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// addRecursive registers root and all non-skipped subdirectories.
func (w *VaultWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (w.opts.SkipDirs[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			slog.Warn("watch_add_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *VaultWatcher) handleEvent(event fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	// New directories get watched; their files arrive as create events.
	if isDir {
		if event.Op&fsnotify.Create != 0 {
			name := filepath.Base(event.Name)
			if !w.opts.SkipDirs[name] && !strings.HasPrefix(name, ".") {
				_ = w.addRecursive(event.Name)
			}
		}
		return
	}

	if !extract.Eligible(event.Name, w.root, w.opts.SkipDirs) {
		return
	}

	var kind ChangeKind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = KindCreated
	case event.Op&fsnotify.Write != 0:
		kind = KindModified
	case event.Op&fsnotify.Remove != 0:
		kind = KindDeleted
	case event.Op&fsnotify.Rename != 0:
		// The old name stops existing; a create event follows for the
		// new name if it is inside the vault.
		kind = KindDeleted
	default:
		return
	}

	w.debouncer.Add(FileChange{
		Path:      event.Name,
		Kind:      kind,
		Timestamp: time.Now(),
	})
}

// Changes returns the channel of debounced change batches.
func (w *VaultWatcher) Changes() <-chan []FileChange {
	return w.debouncer.Output()
}

// Stop halts watching and closes the change channel. Safe to call more
// than once.
func (w *VaultWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	err := w.fsWatcher.Close()
	w.debouncer.Stop()
	return err
}
