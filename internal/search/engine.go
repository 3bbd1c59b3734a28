// Package search answers natural-language queries against the vault store.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vaultmcp/vaultmcp/internal/embed"
	"github.com/vaultmcp/vaultmcp/internal/store"
)

// DefaultLimit is the result count when the caller does not specify one.
const DefaultLimit = 10

// queryCacheSize bounds the query-embedding cache. Interactive use
// repeats queries (pagination, tweaked limits); embedding them once is
// enough.
const queryCacheSize = 256

// Options narrows a search.
type Options struct {
	// Limit caps the number of results (default: DefaultLimit).
	Limit int
	// FileType keeps only chunks of this type when non-empty.
	FileType string
}

// Engine embeds queries and ranks chunks by vector similarity.
type Engine struct {
	store    *store.VaultStore
	embedder embed.Embedder
	cache    *lru.Cache[string, []float32]
}

// New creates a search engine.
func New(st *store.VaultStore, embedder embed.Embedder) *Engine {
	cache, err := lru.New[string, []float32](queryCacheSize)
	if err != nil {
		// Only possible with a non-positive size.
		panic(err)
	}
	return &Engine{
		store:    st,
		embedder: embedder,
		cache:    cache,
	}
}

// Search returns the chunks most similar to the query, best first.
// Zero hits is a valid outcome, not an error. The query is embedded as
// given; even an empty query goes through the embedder and simply finds
// nothing in an empty store.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]store.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	start := time.Now()
	vector, err := e.queryVector(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := e.store.Search(ctx, vector, limit, store.Filter{FileType: opts.FileType})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	slog.Debug("search_complete",
		slog.String("query", query),
		slog.Int("limit", limit),
		slog.String("file_type", opts.FileType),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

func (e *Engine) queryVector(ctx context.Context, query string) ([]float32, error) {
	if vector, ok := e.cache.Get(query); ok {
		return vector, nil
	}
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	e.cache.Add(query, vector)
	return vector, nil
}
