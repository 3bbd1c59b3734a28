package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 512, cfg.Chunking.MaxTokens)
	assert.Equal(t, 100, cfg.Chunking.OverlapTokens)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "all-minilm", cfg.Embeddings.Model)
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.NoError(t, cfg.Validate())
}

func TestLoadVaultConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	yaml := `
chunking:
  max_tokens: 256
embeddings:
  provider: static
search:
  max_results: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultmcp.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Chunking.MaxTokens)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 3, cfg.Search.MaxResults)
	// Untouched values keep their defaults.
	assert.Equal(t, 100, cfg.Chunking.OverlapTokens)
	assert.Equal(t, "all-minilm", cfg.Embeddings.Model)
}

func TestLoadVaultConfigOverridesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	userDir := filepath.Join(home, ".config", "vaultmcp")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"),
		[]byte("search:\n  max_results: 7\nembeddings:\n  model: nomic-embed-text\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultmcp.yaml"),
		[]byte("search:\n  max_results: 2\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Search.MaxResults, "vault config should win")
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model, "user config should still apply")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VAULTMCP_VAULT_PATH", "/tmp/notes")
	t.Setenv("VAULTMCP_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("VAULTMCP_EMBEDDINGS_DIMENSIONS", "128")
	t.Setenv("VAULTMCP_WATCH_DEBOUNCE", "250ms")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/notes", cfg.Vault.Path)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 128, cfg.Embeddings.Dimensions)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceWindow())
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultmcp.yaml"),
		[]byte("chunking: [not a map"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max_tokens", func(c *Config) { c.Chunking.MaxTokens = 0 }},
		{"overlap >= max_tokens", func(c *Config) { c.Chunking.OverlapTokens = 512 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"zero batch size", func(c *Config) { c.Embeddings.BatchSize = 0 }},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "soon" }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "http" }},
		{"unknown log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDebounceWindowFallsBackToDefault(t *testing.T) {
	cfg := New()
	cfg.Watch.Debounce = "garbage"
	assert.Equal(t, time.Second, cfg.DebounceWindow())
}

func TestSkipDirsMergesConfigured(t *testing.T) {
	cfg := New()
	cfg.Vault.ExcludeDirs = []string{"archive"}

	skip := cfg.SkipDirs()

	assert.True(t, skip[".git"])
	assert.True(t, skip["node_modules"])
	assert.True(t, skip["archive"])
	assert.False(t, skip["journal"])
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := New()
	cfg.Search.MaxResults = 4

	dir := t.TempDir()
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".vaultmcp.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Search.MaxResults)
}
