package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vaultmcp/vaultmcp/internal/config"
)

// New creates the embedder selected by cfg. The ollama provider degrades
// to the static embedder when the server is unreachable, so indexing and
// search keep working offline.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		embedder, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			slog.Warn("ollama_unavailable_using_static",
				slog.String("error", err.Error()))
			return NewStaticEmbedder(), nil
		}
		return embedder, nil
	case "static":
		return NewStaticEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %q", cfg.Provider)
	}
}
