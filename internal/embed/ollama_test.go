package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOllama serves /api/tags and /api/embed with fixed 4-dim vectors.
func stubOllama(t *testing.T, models []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			infos := make([]ollamaModelInfo, len(models))
			for i, m := range models {
				infos[i] = ollamaModelInfo{Name: m}
			}
			_ = json.NewEncoder(w).Encode(ollamaModelListResponse{Models: infos})
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			count := 1
			if texts, ok := req.Input.([]any); ok {
				count = len(texts)
			}
			embeddings := make([][]float64, count)
			for i := range embeddings {
				embeddings[i] = []float64{1, 0, 0, 0}
			}
			_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
				Model:      req.Model,
				Embeddings: embeddings,
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaEmbedderModelDiscovery(t *testing.T) {
	srv := stubOllama(t, []string{"all-minilm:latest", "llama3:8b"})
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "all-minilm",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "all-minilm:latest", e.ModelName())
	assert.Equal(t, 4, e.Dimensions())
}

func TestOllamaEmbedderFallbackModel(t *testing.T) {
	srv := stubOllama(t, []string{"nomic-embed-text:latest"})
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "all-minilm",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
}

func TestOllamaEmbedderNoModel(t *testing.T) {
	srv := stubOllama(t, []string{"llama3:8b"})
	defer srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "all-minilm",
	})
	assert.Error(t, err)
}

func TestOllamaEmbedderEmbedBatch(t *testing.T) {
	srv := stubOllama(t, []string{"all-minilm"})
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "all-minilm",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, vec := range vecs {
		assert.Len(t, vec, 4)
	}
}

func TestOllamaEmbedderSplitsLargeBatches(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		count := 1
		if texts, ok := req.Input.([]any); ok {
			count = len(texts)
		}
		embeddings := make([][]float64, count)
		for i := range embeddings {
			embeddings[i] = []float64{0, 1}
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "all-minilm",
		Dimensions:      2,
		BatchSize:       2,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, int32(3), requests.Load())
}

func TestOllamaEmbedderRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float64{{1, 0}},
		})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "all-minilm",
		Dimensions:      2,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaEmbedderUnreachable(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:    "http://127.0.0.1:1",
		Model:   "all-minilm",
		Timeout: 1,
	})
	assert.Error(t, err)
}

func TestOllamaEmbedderClosed(t *testing.T) {
	srv := stubOllama(t, []string{"all-minilm"})
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "all-minilm",
		Dimensions:      4,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrClosed)
}
