package extract

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ScanAll walks the vault and extracts every supported document.
// Individual files that fail to extract are logged and skipped; a missing
// or unreadable root is an error.
func ScanAll(ctx context.Context, root string, opts Options) ([]*Document, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("vault path not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault path is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	paths, err := discover(absRoot, maxSize, opts.SkipDirs)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		docs []*Document
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := Load(path)
			if err != nil {
				slog.Warn("skipping file",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Walk order is lost to concurrency; restore it for deterministic output.
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// discover returns the paths of all candidate files under root, applying
// skip-dir, hidden-file, extension, and size filters.
func discover(root string, maxSize int64, skipDirs map[string]bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("skipping unreadable entry",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !Supported(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("skipping unreadable file", slog.String("path", path))
			return nil
		}
		if info.Size() > maxSize {
			slog.Debug("skipping oversized file",
				slog.String("path", path),
				slog.Int64("size", info.Size()))
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan vault: %w", err)
	}
	return paths, nil
}

// Eligible reports whether a single path would be picked up by ScanAll:
// supported extension, not hidden, and not inside a skipped directory.
func Eligible(path, root string, skipDirs map[string]bool) bool {
	if !Supported(path) {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") || skipDirs[part] {
			return false
		}
	}
	return true
}
