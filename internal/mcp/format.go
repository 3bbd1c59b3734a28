package mcp

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vaultmcp/vaultmcp/internal/index"
	"github.com/vaultmcp/vaultmcp/internal/store"
)

// previewLen caps the content excerpt shown per result.
const previewLen = 300

// FormatSearchResults renders results as markdown: file name, score,
// section lineage, and a content preview per hit.
func FormatSearchResults(query string, results []store.SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for '%s'\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n", i+1, r.FileName, r.Score)
		if len(r.Headers) > 0 {
			fmt.Fprintf(&sb, "**Section:** %s\n\n", strings.Join(r.Headers, " > "))
		}
		preview, truncated := truncatePreview(strings.TrimSpace(r.Content), previewLen)
		if truncated {
			preview += "..."
		}
		fmt.Fprintf(&sb, "%s\n\n---\n\n", preview)
	}
	return sb.String()
}

// truncatePreview cuts s to at most max bytes without splitting a rune,
// reporting whether anything was cut.
func truncatePreview(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max], true
}

// FormatIndexResult renders reconcile statistics as markdown.
func FormatIndexResult(result *index.Result) string {
	var sb strings.Builder
	sb.WriteString("## Indexing Complete\n\n")
	fmt.Fprintf(&sb, "- Documents scanned: %d\n", result.DocsScanned)
	fmt.Fprintf(&sb, "- Documents indexed: %d\n", result.DocsIndexed)
	fmt.Fprintf(&sb, "- Chunks created: %d\n", result.ChunksCreated)
	if result.ChunksDeleted > 0 {
		fmt.Fprintf(&sb, "- Chunks deleted: %d\n", result.ChunksDeleted)
	}
	fmt.Fprintf(&sb, "- Time: %.1fs\n", result.Duration.Seconds())
	return sb.String()
}

// FormatStats renders index statistics as markdown with a per-type
// breakdown, largest first.
func FormatStats(stats *store.Stats) string {
	var sb strings.Builder
	sb.WriteString("## Index Statistics\n\n")
	fmt.Fprintf(&sb, "- Total chunks: %d\n", stats.TotalChunks)
	fmt.Fprintf(&sb, "- Total files: %d\n\n", stats.TotalFiles)

	if len(stats.ByType) == 0 {
		return sb.String()
	}
	sb.WriteString("### By File Type\n\n")

	type typeCount struct {
		fileType string
		count    int
	}
	counts := make([]typeCount, 0, len(stats.ByType))
	for fileType, count := range stats.ByType {
		counts = append(counts, typeCount{fileType, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].fileType < counts[j].fileType
	})
	for _, tc := range counts {
		pct := float64(tc.count) / float64(stats.TotalChunks) * 100
		fmt.Fprintf(&sb, "- %s: %d (%.1f%%)\n", tc.fileType, tc.count, pct)
	}
	return sb.String()
}
