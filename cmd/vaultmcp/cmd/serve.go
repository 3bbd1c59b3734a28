package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaultmcp/vaultmcp/internal/mcp"
)

// serveOptions controls MCP server startup.
type serveOptions struct {
	// indexFirst runs a reconcile before serving when no index exists yet.
	indexFirst bool
}

func newServeCmd() *cobra.Command {
	var noIndex bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the Model Context Protocol server on stdio.

Exposes three tools to MCP clients:
  search_notes     semantic search over the vault
  index_notes      index or re-index the vault
  get_index_stats  index size broken down by file type

If the vault has never been indexed, an initial index is built
before serving unless --no-index is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), serveOptions{indexFirst: !noIndex})
		},
	}

	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Skip the initial index even if the vault has never been indexed")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The MCP protocol uses stdout exclusively for JSON-RPC messages,
	// so all logging goes to the log file and stderr.
	cleanup := setupCLILogging(cfg, true)
	defer cleanup()

	a, closeApp, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeApp()

	if opts.indexFirst && a.store.Count() == 0 {
		slog.Info("initial_index", slog.String("vault", cfg.Vault.Path))
		if _, err := a.reconciler.Reconcile(ctx, cfg.Vault.Path, false); err != nil {
			return fmt.Errorf("initial index failed: %w", err)
		}
	}

	server, err := mcp.NewServer(a.engine, a.reconciler, a.store, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx, cfg.Server.Transport)
}
