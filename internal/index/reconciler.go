// Package index keeps the vault store consistent with the files on disk:
// full reconciliation on demand and single-file updates from the watcher.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/vaultmcp/vaultmcp/internal/chunk"
	"github.com/vaultmcp/vaultmcp/internal/embed"
	"github.com/vaultmcp/vaultmcp/internal/extract"
	"github.com/vaultmcp/vaultmcp/internal/store"
	"github.com/vaultmcp/vaultmcp/internal/watcher"
)

// Result summarizes one reconcile run.
type Result struct {
	DocsScanned   int           `json:"documents_scanned"`
	DocsIndexed   int           `json:"documents_indexed"`
	ChunksCreated int           `json:"chunks_created"`
	ChunksDeleted int           `json:"chunks_deleted"`
	Duration      time.Duration `json:"duration"`
}

// Options configures a Reconciler.
type Options struct {
	// MaxFileSize caps scanned files (default: extract.DefaultMaxFileSize).
	MaxFileSize int64
	// SkipDirs are directory names excluded from scanning.
	SkipDirs map[string]bool
	// BatchSize is chunks per embedding request (default: embed.DefaultBatchSize).
	BatchSize int
}

// Reconciler synchronizes the store with the vault contents.
type Reconciler struct {
	chunker  *chunk.Chunker
	embedder embed.Embedder
	store    *store.VaultStore
	opts     Options
}

// New creates a Reconciler over the given collaborators.
func New(chunker *chunk.Chunker, embedder embed.Embedder, st *store.VaultStore, opts Options) *Reconciler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = embed.DefaultBatchSize
	}
	return &Reconciler{
		chunker:  chunker,
		embedder: embedder,
		store:    st,
		opts:     opts,
	}
}

// Reconcile scans the vault and brings the index up to date: sources that
// vanished from disk are deleted, and documents that are new, modified
// since their recorded mtime, or covered by force are re-chunked,
// re-embedded, and replaced wholesale.
func (r *Reconciler) Reconcile(ctx context.Context, vaultPath string, force bool) (*Result, error) {
	start := time.Now()
	slog.Info("index_start",
		slog.String("vault", vaultPath),
		slog.Bool("force", force))

	docs, err := extract.ScanAll(ctx, vaultPath, extract.Options{
		MaxFileSize: r.opts.MaxFileSize,
		SkipDirs:    r.opts.SkipDirs,
	})
	if err != nil {
		return nil, err
	}

	indexed := map[string]time.Time{}
	if !force {
		indexed, err = r.store.IndexedSources(ctx)
		if err != nil {
			return nil, err
		}
	}

	// Every known source is a deletion candidate until the scan finds it.
	toDelete := make(map[string]bool, len(indexed))
	for path := range indexed {
		toDelete[path] = true
	}

	var toIndex []*extract.Document
	for _, doc := range docs {
		delete(toDelete, doc.Path)
		if force || doc.ModTime.After(indexed[doc.Path]) {
			toIndex = append(toIndex, doc)
		}
	}

	result := &Result{DocsScanned: len(docs)}
	for path := range toDelete {
		deleted, err := r.store.DeleteBySource(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to remove vanished source %s: %w", path, err)
		}
		result.ChunksDeleted += deleted
	}
	if result.ChunksDeleted > 0 {
		slog.Info("removed_deleted_files",
			slog.Int("files", len(toDelete)),
			slog.Int("chunks", result.ChunksDeleted))
	}

	for _, doc := range toIndex {
		created, err := r.indexDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		result.DocsIndexed++
		result.ChunksCreated += created
	}

	result.Duration = time.Since(start)
	slog.Info("index_complete",
		slog.Int("documents_scanned", result.DocsScanned),
		slog.Int("documents_indexed", result.DocsIndexed),
		slog.Int("chunks_created", result.ChunksCreated),
		slog.Int("chunks_deleted", result.ChunksDeleted),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// indexDocument replaces every chunk of a document: old chunks go first so
// a shrinking document leaves no stale tail behind.
func (r *Reconciler) indexDocument(ctx context.Context, doc *extract.Document) (int, error) {
	chunks := r.chunker.Document(doc)

	if _, err := r.store.DeleteBySource(ctx, doc.Path); err != nil {
		return 0, fmt.Errorf("failed to clear old chunks of %s: %w", doc.Path, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	for batchStart := 0; batchStart < len(chunks); batchStart += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := batchStart + r.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[batchStart:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed %s: %w", doc.Path, err)
		}
		if err := r.store.Upsert(ctx, batch, vectors); err != nil {
			return 0, fmt.Errorf("failed to store chunks of %s: %w", doc.Path, err)
		}
	}
	return len(chunks), nil
}

// HandleChange applies one watcher notification to the index. Changes are
// idempotent: replaying one converges to the same state.
func (r *Reconciler) HandleChange(ctx context.Context, change watcher.FileChange) (*Result, error) {
	start := time.Now()
	result := &Result{}

	switch change.Kind {
	case watcher.KindDeleted:
		deleted, err := r.store.DeleteBySource(ctx, change.Path)
		if err != nil {
			return nil, err
		}
		result.ChunksDeleted = deleted

	case watcher.KindCreated, watcher.KindModified:
		doc, err := extract.Load(change.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Gone again before we got to it; treat as a delete.
				deleted, derr := r.store.DeleteBySource(ctx, change.Path)
				if derr != nil {
					return nil, derr
				}
				result.ChunksDeleted = deleted
				break
			}
			return nil, fmt.Errorf("failed to load %s: %w", change.Path, err)
		}
		result.DocsScanned = 1
		created, err := r.indexDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		result.DocsIndexed = 1
		result.ChunksCreated = created

	default:
		return nil, fmt.Errorf("unknown change kind %d for %s", change.Kind, change.Path)
	}

	result.Duration = time.Since(start)
	slog.Info("change_applied",
		slog.String("path", change.Path),
		slog.String("kind", change.Kind.String()),
		slog.Int("chunks_created", result.ChunksCreated),
		slog.Int("chunks_deleted", result.ChunksDeleted))
	return result, nil
}
