package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmcp/vaultmcp/internal/chunk"
	"github.com/vaultmcp/vaultmcp/internal/embed"
	"github.com/vaultmcp/vaultmcp/internal/store"
	"github.com/vaultmcp/vaultmcp/internal/watcher"
)

type fixture struct {
	vault      string
	store      *store.VaultStore
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	st, err := store.Open(t.TempDir(), embedder.Dimensions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	chunker := chunk.New(chunk.Options{Counter: chunk.HeuristicCounter{}})
	return &fixture{
		vault:      t.TempDir(),
		store:      st,
		reconciler: New(chunker, embedder, st, Options{BatchSize: 2}),
	}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.vault, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReconcileIndexesNewFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# Alpha\n\nfirst note")
	f.write(t, "sub/b.txt", "second note body")

	result, err := f.reconciler.Reconcile(context.Background(), f.vault, false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.DocsScanned)
	assert.Equal(t, 2, result.DocsIndexed)
	assert.Equal(t, 2, result.ChunksCreated)
	assert.Zero(t, result.ChunksDeleted)
	assert.Equal(t, 2, f.store.Count())
}

func TestReconcileSkipsUnchangedFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# Alpha\n\nstable content")
	ctx := context.Background()

	_, err := f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)

	second, err := f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)
	assert.Equal(t, 1, second.DocsScanned)
	assert.Zero(t, second.DocsIndexed)
	assert.Zero(t, second.ChunksCreated)
}

func TestReconcileReindexesModifiedFiles(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "a.md", "original")
	ctx := context.Background()

	_, err := f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("updated content"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	result, err := f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocsIndexed)
}

func TestReconcileForceReindexesEverything(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "note a")
	f.write(t, "b.md", "note b")
	ctx := context.Background()

	_, err := f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)

	result, err := f.reconciler.Reconcile(ctx, f.vault, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.DocsIndexed)
	assert.Equal(t, 2, f.store.Count())
}

func TestReconcileRemovesVanishedSources(t *testing.T) {
	f := newFixture(t)
	keep := f.write(t, "keep.md", "keep this note")
	gone := f.write(t, "gone.md", "delete this note")
	ctx := context.Background()

	_, err := f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)
	require.Equal(t, 2, f.store.Count())

	require.NoError(t, os.Remove(gone))
	result, err := f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ChunksDeleted)
	assert.Equal(t, 1, f.store.Count())

	sources, err := f.store.IndexedSources(ctx)
	require.NoError(t, err)
	_, kept := sources[keep]
	assert.True(t, kept)
}

func TestReconcileMissingVault(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconciler.Reconcile(context.Background(), "/nonexistent/vault", false)
	assert.Error(t, err)
}

func TestHandleChangeCreate(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "new.md", "# New\n\nfresh note")

	result, err := f.reconciler.HandleChange(context.Background(),
		watcher.FileChange{Path: path, Kind: watcher.KindCreated})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocsIndexed)
	assert.Equal(t, 1, f.store.Count())
}

func TestHandleChangeModifyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "a.md", "same content")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.reconciler.HandleChange(ctx,
			watcher.FileChange{Path: path, Kind: watcher.KindModified})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.store.Count())
}

func TestHandleChangeDelete(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "a.md", "to be removed")
	ctx := context.Background()

	_, err := f.reconciler.HandleChange(ctx,
		watcher.FileChange{Path: path, Kind: watcher.KindCreated})
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	result, err := f.reconciler.HandleChange(ctx,
		watcher.FileChange{Path: path, Kind: watcher.KindDeleted})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksDeleted)
	assert.Zero(t, f.store.Count())
}

func TestHandleChangeCreateForVanishedFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.vault, "flicker.md")

	result, err := f.reconciler.HandleChange(context.Background(),
		watcher.FileChange{Path: path, Kind: watcher.KindCreated})
	require.NoError(t, err)
	assert.Zero(t, result.DocsIndexed)
	assert.Zero(t, f.store.Count())
}

func TestReconcileShrinkingDocumentDropsStaleChunks(t *testing.T) {
	f := newFixture(t)
	// Long enough to produce several chunks.
	var big string
	for i := 0; i < 3; i++ {
		big += "\n## Section\n\n"
		for j := 0; j < 400; j++ {
			big += "word "
		}
	}
	path := f.write(t, "shrink.md", big)
	ctx := context.Background()

	_, err := f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)
	require.Greater(t, f.store.Count(), 1)

	require.NoError(t, os.WriteFile(path, []byte("now tiny"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	_, err = f.reconciler.Reconcile(ctx, f.vault, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Count())
}
