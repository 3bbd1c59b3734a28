// Package config loads and validates vaultmcp configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/vaultmcp/config.yaml)
//  3. Vault config (.vaultmcp.yaml in the vault root)
//  4. Environment variables (VAULTMCP_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete vaultmcp configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Vault      VaultConfig      `yaml:"vault" json:"vault"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// VaultConfig configures the document vault and index storage.
type VaultConfig struct {
	// Path is the vault root folder to index.
	Path string `yaml:"path" json:"path"`
	// DataDir is where the index database lives. Default: ~/.vaultmcp
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// MaxFileSize is the per-file size cap in bytes (default: 1 MiB).
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
	// ExcludeDirs are directory names skipped during scanning,
	// merged with the built-in skip list.
	ExcludeDirs []string `yaml:"exclude_dirs" json:"exclude_dirs"`
}

// ChunkingConfig configures document segmentation.
type ChunkingConfig struct {
	// MaxTokens is the chunk token budget (default: 512).
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// OverlapTokens is the overlap carried between consecutive chunks (default: 100).
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name (default: all-minilm).
	Model string `yaml:"model" json:"model"`
	// Dimensions is the embedding dimension. A shared constant of the
	// chosen model; the index and every query must agree on it.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request (default: 32).
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// Timeout is the per-request embedding timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// SearchConfig configures query behavior.
type SearchConfig struct {
	// MaxResults is the default result limit (default: 10).
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	// Debounce is the per-path event coalescing window (default: 1s).
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludeDirs are always skipped during vault scans.
var defaultExcludeDirs = []string{
	".git", "node_modules", "__pycache__", ".venv", "venv",
	".idea", ".vscode", "dist", "build", ".obsidian",
}

// New creates a Config with sensible defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Vault: VaultConfig{
			Path:        defaultVaultPath(),
			DataDir:     DefaultDataDir(),
			MaxFileSize: 1 << 20, // 1 MiB
			ExcludeDirs: nil,
		},
		Chunking: ChunkingConfig{
			MaxTokens:     512,
			OverlapTokens: 100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "all-minilm",
			Dimensions: 384,
			BatchSize:  32,
			OllamaHost: "", // empty uses the default host
			Timeout:    60 * time.Second,
		},
		Search: SearchConfig{
			MaxResults: 10,
		},
		Watch: WatchConfig{
			Debounce: "1s",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// DefaultDataDir returns the default index storage directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vaultmcp")
	}
	return filepath.Join(home, ".vaultmcp")
}

// defaultVaultPath returns the default vault location.
func defaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Notes")
}

// userConfigPath returns the user configuration file path, following
// the XDG Base Directory layout.
func userConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vaultmcp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vaultmcp", "config.yaml")
	}
	return filepath.Join(home, ".config", "vaultmcp", "config.yaml")
}

// Load loads configuration, layering vault-local config in dir over the
// user config and defaults, then applying environment overrides.
func Load(dir string) (*Config, error) {
	cfg := New()

	if path := userConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("user config: %w", err)
		}
	}

	for _, name := range []string{".vaultmcp.yaml", ".vaultmcp.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML parses path and merges non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Vault.Path != "" {
		c.Vault.Path = other.Vault.Path
	}
	if other.Vault.DataDir != "" {
		c.Vault.DataDir = other.Vault.DataDir
	}
	if other.Vault.MaxFileSize != 0 {
		c.Vault.MaxFileSize = other.Vault.MaxFileSize
	}
	if len(other.Vault.ExcludeDirs) > 0 {
		c.Vault.ExcludeDirs = append(c.Vault.ExcludeDirs, other.Vault.ExcludeDirs...)
	}

	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies VAULTMCP_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VAULTMCP_VAULT_PATH"); v != "" {
		c.Vault.Path = v
	}
	if v := os.Getenv("VAULTMCP_DATA_DIR"); v != "" {
		c.Vault.DataDir = v
	}
	if v := os.Getenv("VAULTMCP_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("VAULTMCP_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("VAULTMCP_EMBEDDINGS_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv("VAULTMCP_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("VAULTMCP_WATCH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("VAULTMCP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// DebounceWindow parses the watch debounce duration.
func (c *Config) DebounceWindow() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must be non-negative, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be smaller than max_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens)
	}

	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("watch.debounce is not a valid duration: %q", c.Watch.Debounce)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// SkipDirs returns the effective directory skip set.
func (c *Config) SkipDirs() map[string]bool {
	skip := make(map[string]bool, len(defaultExcludeDirs)+len(c.Vault.ExcludeDirs))
	for _, d := range defaultExcludeDirs {
		skip[d] = true
	}
	for _, d := range c.Vault.ExcludeDirs {
		skip[d] = true
	}
	return skip
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
