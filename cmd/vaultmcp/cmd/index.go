package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index the vault for searching",
		Long: `Index a folder of documents to enable semantic search.

This scans supported files (markdown, text, HTML, JSON, CSV),
splits them into chunks along section boundaries, generates
embeddings, and stores everything in the local index.

Only files modified since the last index are re-processed.
Files deleted from the vault are removed from the index.
Use --force to rebuild every file regardless of modification time.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-index every file regardless of modification time")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup := setupCLILogging(cfg, false)
	defer cleanup()

	vaultPath := path
	if vaultPath == "" {
		vaultPath = cfg.Vault.Path
	}

	a, closeApp, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeApp()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexing %s (model: %s)...\n", vaultPath, a.embedder.ModelName())

	result, err := a.reconciler.Reconcile(ctx, vaultPath, force)
	if err != nil {
		slog.Error("index_failed", slog.String("error", err.Error()))
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintf(out, "Scanned %d documents, indexed %d (%d chunks created",
		result.DocsScanned, result.DocsIndexed, result.ChunksCreated)
	if result.ChunksDeleted > 0 {
		fmt.Fprintf(out, ", %d deleted", result.ChunksDeleted)
	}
	fmt.Fprintf(out, ") in %.1fs\n", result.Duration.Seconds())
	return nil
}
