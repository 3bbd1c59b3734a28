// Package embed turns text into vector embeddings, either through a local
// Ollama server or a deterministic hash-based fallback.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// DefaultOllamaHost is the local Ollama endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the preferred embedding model.
	DefaultOllamaModel = "all-minilm"

	// DefaultDimensions matches all-minilm output.
	DefaultDimensions = 384

	// DefaultBatchSize is the number of texts sent per embed request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding request once the model
	// is warm.
	DefaultTimeout = 60 * time.Second

	// ColdTimeout bounds the first request, which may need to load the
	// model into memory.
	ColdTimeout = 180 * time.Second

	// DefaultMaxRetries is the retry budget per batch.
	DefaultMaxRetries = 3

	// StaticDimensions is the hash embedder's vector size.
	StaticDimensions = 256
)

// FallbackOllamaModels are tried in order when the configured model is not
// installed.
var FallbackOllamaModels = []string{"nomic-embed-text", "mxbai-embed-large"}

// ErrClosed is returned by embedder methods after Close.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// ollamaEmbedRequest is the /api/embed request body. Input is a string or
// a []string.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaModelInfo struct {
	Name string `json:"name"`
}

type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// normalizeVector scales v to unit length. Zero vectors pass through.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
