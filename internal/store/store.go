package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/vaultmcp/vaultmcp/internal/chunk"
)

const (
	dbFileName   = "vault.db"
	lockFileName = "vault.lock"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	source_path  TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	file_type    TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	mtime        INTEGER NOT NULL,
	char_start   INTEGER NOT NULL,
	char_end     INTEGER NOT NULL,
	headers      TEXT NOT NULL,
	token_count  INTEGER NOT NULL,
	content      TEXT NOT NULL,
	embedding    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_path);
CREATE INDEX IF NOT EXISTS idx_chunks_file_type ON chunks(file_type);
`

// VaultStore persists chunks in SQLite and answers nearest-neighbor
// queries from an HNSW graph held in memory. The graph is rebuilt from
// the database at open, so SQLite is the single source of truth.
type VaultStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	lock *flock.Flock
	dims int

	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// Open opens (or creates) the vault index under dataDir. An advisory file
// lock prevents two processes from mutating the same index.
func Open(dataDir string, dims int) (*VaultStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions: %d", dims)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index at %s is locked by another process", dataDir)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer avoids lock contention, and the DSN
	// pragmas may be ignored by the driver so they are set explicitly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.EuclideanDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	s := &VaultStore{
		db:     db,
		lock:   lock,
		dims:   dims,
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}

	if err := s.rebuildGraph(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

// rebuildGraph loads every stored embedding into the HNSW graph. Rows
// whose vectors do not match the configured dimension (e.g. after an
// embedding model switch) are skipped; a forced reindex replaces them.
func (s *VaultStore) rebuildGraph() error {
	rows, err := s.db.Query("SELECT id, embedding FROM chunks")
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	skipped := 0
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("failed to scan embedding row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("corrupt embedding for %s: %w", id, err)
		}
		if len(vec) != s.dims {
			skipped++
			continue
		}
		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read embeddings: %w", err)
	}
	if skipped > 0 {
		slog.Warn("skipped_mismatched_embeddings",
			slog.Int("count", skipped),
			slog.Int("expected_dims", s.dims),
			slog.String("hint", "run a forced reindex to re-embed"))
	}
	return nil
}

// Upsert stores chunks with their embeddings. Existing chunks with the
// same ID are replaced.
func (s *VaultStore) Upsert(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(v)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(id, source_path, file_name, file_type, chunk_index, total_chunks,
		 mtime, char_start, char_end, headers, token_count, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range chunks {
		id := MakeChunkID(c.SourcePath, c.ChunkIndex)
		if _, err := stmt.ExecContext(ctx,
			id, c.SourcePath, filepath.Base(c.SourcePath), c.FileType,
			c.ChunkIndex, c.TotalChunks, mtimeToUnix(c.ModTime),
			c.CharStart, c.CharEnd, encodeHeaders(c.Headers),
			c.TokenCount, c.Content, encodeVector(vectors[i]),
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	// Update the graph only after the rows are durable. Replaced IDs are
	// lazily deleted: the old node stays in the graph but loses its
	// mapping, so it can never surface in results.
	for i, c := range chunks {
		id := MakeChunkID(c.SourcePath, c.ChunkIndex)
		if oldKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, oldKey)
			delete(s.idMap, id)
		}
		key := s.nextKey
		s.nextKey++
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// DeleteBySource removes every chunk of a source file and returns how
// many were deleted.
func (s *VaultStore) DeleteBySource(ctx context.Context, sourcePath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chunks WHERE source_path = ?", sourcePath)
	if err != nil {
		return 0, fmt.Errorf("failed to query chunks for %s: %w", sourcePath, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE source_path = ?", sourcePath); err != nil {
		return 0, fmt.Errorf("failed to delete chunks for %s: %w", sourcePath, err)
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return len(ids), nil
}

// Search returns the k chunks nearest to the query vector, optionally
// filtered by metadata. The graph is over-fetched to compensate for
// lazily deleted nodes and filtered-out hits.
func (s *VaultStore) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error) {
	if len(query) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(query)}
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.idMap) == 0 {
		return []SearchResult{}, nil
	}

	fetch := k
	if filter.FileType != "" {
		fetch = k * 4
	}
	// Orphans from lazy deletion still occupy graph slots.
	fetch += s.graph.Len() - len(s.idMap)
	if fetch > s.graph.Len() {
		fetch = s.graph.Len()
	}

	nodes := s.graph.Search(query, fetch)

	results := make([]SearchResult, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		res, err := s.loadResult(ctx, id)
		if err != nil {
			return nil, err
		}
		if filter.FileType != "" && res.FileType != filter.FileType {
			continue
		}
		distance := s.graph.Distance(query, node.Value)
		res.Distance = distance
		res.Score = distanceToScore(distance)
		results = append(results, *res)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (s *VaultStore) loadResult(ctx context.Context, id string) (*SearchResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, source_path, file_name, file_type,
		       chunk_index, total_chunks, headers
		FROM chunks WHERE id = ?`, id)

	var res SearchResult
	var headers string
	if err := row.Scan(&res.ID, &res.Content, &res.SourcePath, &res.FileName,
		&res.FileType, &res.ChunkIndex, &res.TotalChunks, &headers); err != nil {
		return nil, fmt.Errorf("failed to load chunk %s: %w", id, err)
	}
	res.Headers = decodeHeaders(headers)
	return &res, nil
}

// IndexedSources returns every indexed source path with the newest mtime
// recorded for it.
func (s *VaultStore) IndexedSources(ctx context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT source_path, MAX(mtime) FROM chunks GROUP BY source_path")
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make(map[string]time.Time)
	for rows.Next() {
		var path string
		var mtime int64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources[path] = unixToMtime(mtime)
	}
	return sources, rows.Err()
}

// Stats reports index totals and per-type chunk counts.
func (s *VaultStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	stats := &Stats{ByType: make(map[string]int)}
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT source_path) FROM chunks")
	if err := row.Scan(&stats.TotalChunks, &stats.TotalFiles); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT file_type, COUNT(*) FROM chunks GROUP BY file_type")
	if err != nil {
		return nil, fmt.Errorf("failed to count by type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var fileType string
		var count int
		if err := rows.Scan(&fileType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type row: %w", err)
		}
		stats.ByType[fileType] = count
	}
	return stats, rows.Err()
}

// Count returns the number of live chunks.
func (s *VaultStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the configured embedding dimension.
func (s *VaultStore) Dimensions() int {
	return s.dims
}

// Close releases the database and the index lock.
func (s *VaultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []string
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close store: %s", strings.Join(errs, "; "))
	}
	return nil
}
