package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vaultmcp/vaultmcp/internal/search"
	"github.com/vaultmcp/vaultmcp/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	fileType string
	format   string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed vault",
		Long: `Search the indexed vault by meaning.

The query is embedded with the same model as the index and
results are ranked by vector similarity.

Examples:
  vaultmcp search "quarterly tax deadlines"
  vaultmcp search "pasta recipe" --limit 5
  vaultmcp search "meeting notes" --type markdown
  vaultmcp search "project ideas" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default: configured max)")
	cmd.Flags().StringVarP(&opts.fileType, "type", "t", "", "Filter by file type (markdown, text, html, json, csv)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
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

	if a.store.Count() == 0 {
		return fmt.Errorf("no index found. Run 'vaultmcp index' first")
	}

	limit := opts.limit
	if limit <= 0 {
		limit = cfg.Search.MaxResults
	}

	results, err := a.engine.Search(ctx, query, search.Options{
		Limit:    limit,
		FileType: opts.fileType,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.String("query", query), slog.Int("results", len(results)))

	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No results found for %q\n", query)
		return nil
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, results)
	default:
		return formatText(cmd, query, results)
	}
}

// formatText outputs results in human-readable form.
func formatText(cmd *cobra.Command, query string, results []store.SearchResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Found %d results for %q:\n\n", len(results), query)

	for i, r := range results {
		fmt.Fprintf(out, "%d. %s (score: %.2f)\n", i+1, r.SourcePath, r.Score)
		if len(r.Headers) > 0 {
			fmt.Fprintf(out, "   %s\n", strings.Join(r.Headers, " > "))
		}
		for _, line := range getSnippet(r.Content, 3) {
			fmt.Fprintf(out, "   %s\n", line)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// formatJSON outputs results as a JSON array.
func formatJSON(cmd *cobra.Command, results []store.SearchResult) error {
	type jsonResult struct {
		SourcePath string   `json:"source_path"`
		FileType   string   `json:"file_type"`
		ChunkIndex int      `json:"chunk_index"`
		Headers    []string `json:"headers,omitempty"`
		Score      float32  `json:"score"`
		Content    string   `json:"content"`
	}

	output := make([]jsonResult, 0, len(results))
	for _, r := range results {
		output = append(output, jsonResult{
			SourcePath: r.SourcePath,
			FileType:   r.FileType,
			ChunkIndex: r.ChunkIndex,
			Headers:    r.Headers,
			Score:      r.Score,
			Content:    r.Content,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// getSnippet returns the first n non-empty trailing-trimmed lines of content.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
