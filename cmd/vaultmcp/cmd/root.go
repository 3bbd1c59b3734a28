// Package cmd provides the CLI commands for vaultmcp.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaultmcp/vaultmcp/internal/chunk"
	"github.com/vaultmcp/vaultmcp/internal/config"
	"github.com/vaultmcp/vaultmcp/internal/embed"
	"github.com/vaultmcp/vaultmcp/internal/index"
	"github.com/vaultmcp/vaultmcp/internal/logging"
	"github.com/vaultmcp/vaultmcp/internal/search"
	"github.com/vaultmcp/vaultmcp/internal/store"
	"github.com/vaultmcp/vaultmcp/pkg/version"
)

// Persistent flags shared by every command.
var (
	vaultFlag   string
	dataDirFlag string
	logLevel    string
)

// NewRootCmd creates the root command for the vaultmcp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaultmcp",
		Short: "Semantic search MCP server for your notes",
		Long: `vaultmcp indexes a folder of personal documents (markdown, text,
HTML, JSON, CSV) and serves semantic search over them to AI
assistants via the Model Context Protocol.

It runs entirely locally. Embeddings come from a local Ollama
instance when one is running, with a deterministic built-in
fallback otherwise.

Run 'vaultmcp' with no arguments to index the configured vault
and start the MCP server on stdio.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd.Context(), serveOptions{indexFirst: true})
		},
	}

	cmd.SetVersionTemplate("vaultmcp version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Vault folder to index and search (default: configured vault)")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Index storage directory (default: ~/.vaultmcp)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves the effective configuration: defaults, config
// files, environment, then command-line flags.
func loadConfig() (*config.Config, error) {
	dir := vaultFlag
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if vaultFlag != "" {
		abs, err := filepath.Abs(vaultFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve vault path: %w", err)
		}
		cfg.Vault.Path = abs
	}
	if dataDirFlag != "" {
		cfg.Vault.DataDir = dataDirFlag
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	return cfg, nil
}

// app bundles the wired components every command needs.
type app struct {
	config     *config.Config
	store      *store.VaultStore
	embedder   embed.Embedder
	reconciler *index.Reconciler
	engine     *search.Engine
}

// newApp opens the store and embedder and wires the reconciler and
// search engine. Call close when done.
func newApp(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	st, err := store.Open(cfg.Vault.DataDir, embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	chunker := chunk.New(chunk.Options{
		MaxTokens:     cfg.Chunking.MaxTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
		Counter:       chunk.NewTokenCounter(),
	})
	reconciler := index.New(chunker, embedder, st, index.Options{
		MaxFileSize: cfg.Vault.MaxFileSize,
		SkipDirs:    cfg.SkipDirs(),
		BatchSize:   cfg.Embeddings.BatchSize,
	})
	engine := search.New(st, embedder)

	a := &app{
		config:     cfg,
		store:      st,
		embedder:   embedder,
		reconciler: reconciler,
		engine:     engine,
	}
	cleanup := func() {
		if err := a.store.Close(); err != nil {
			slog.Warn("store_close_failed", slog.String("error", err.Error()))
		}
		_ = a.embedder.Close()
	}
	return a, cleanup, nil
}

// setupCLILogging initializes file logging for interactive commands.
// Failure to open the log file is not fatal.
func setupCLILogging(cfg *config.Config, toStderr bool) func() {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = toStderr
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}
