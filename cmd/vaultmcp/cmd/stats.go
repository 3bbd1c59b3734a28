package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  `Display how many chunks and files are indexed, broken down by file type.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup := setupCLILogging(cfg, false)
	defer cleanup()

	a, closeApp, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeApp()

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Index Statistics")
	fmt.Fprintln(out, "================")
	fmt.Fprintf(out, "Total chunks: %d\n", stats.TotalChunks)
	fmt.Fprintf(out, "Total files:  %d\n", stats.TotalFiles)

	if len(stats.ByType) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "By file type:")

	types := make([]string, 0, len(stats.ByType))
	for fileType := range stats.ByType {
		types = append(types, fileType)
	}
	sort.Slice(types, func(i, j int) bool {
		if stats.ByType[types[i]] != stats.ByType[types[j]] {
			return stats.ByType[types[i]] > stats.ByType[types[j]]
		}
		return types[i] < types[j]
	})
	for _, fileType := range types {
		fmt.Fprintf(out, "  %s: %d\n", fileType, stats.ByType[fileType])
	}
	return nil
}
