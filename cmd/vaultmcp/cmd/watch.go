package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vaultmcp/vaultmcp/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch the vault and keep the index current",
		Long: `Watch the vault for changes and apply them to the index as they
happen.

An initial reconcile brings the index up to date, then filesystem
events are debounced and applied incrementally: new and edited
files are re-indexed, deleted files are removed. Runs until
interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, path)
		},
	}

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup := setupCLILogging(cfg, true)
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

	// Bring the index up to date before watching so events only have
	// to cover the delta.
	result, err := a.reconciler.Reconcile(ctx, vaultPath, false)
	if err != nil {
		return fmt.Errorf("initial index failed: %w", err)
	}
	fmt.Fprintf(out, "Index up to date (%d documents, %d indexed). Watching %s...\n",
		result.DocsScanned, result.DocsIndexed, vaultPath)

	w, err := watcher.New(watcher.Options{
		DebounceWindow: cfg.DebounceWindow(),
		SkipDirs:       cfg.SkipDirs(),
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(ctx, vaultPath)
	})
	g.Go(func() error {
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case batch, ok := <-w.Changes():
				if !ok {
					return nil
				}
				applyChanges(ctx, a, batch)
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "Stopped.")
		return nil
	}
	return err
}

// applyChanges feeds a debounced batch of file changes to the reconciler.
// Individual failures are logged and skipped so one broken file does not
// stall the watch loop.
func applyChanges(ctx context.Context, a *app, batch []watcher.FileChange) {
	for _, change := range batch {
		if ctx.Err() != nil {
			return
		}
		if _, err := a.reconciler.HandleChange(ctx, change); err != nil {
			slog.Warn("change_failed",
				slog.String("path", change.Path),
				slog.String("kind", change.Kind.String()),
				slog.String("error", err.Error()))
		}
	}
}
