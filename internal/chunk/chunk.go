// Package chunk splits extracted documents into token-budgeted windows
// with positional metadata and markdown header lineage, so each chunk can
// be embedded and later presented standalone.
package chunk

import (
	"strings"
	"time"

	"github.com/vaultmcp/vaultmcp/internal/extract"
)

const (
	// DefaultMaxTokens is the per-chunk token budget.
	DefaultMaxTokens = 512
	// DefaultOverlapTokens is the token overlap carried between
	// consecutive chunks of the same document.
	DefaultOverlapTokens = 100

	// positionSearchLen is how many leading characters of a chunk are
	// used to locate it in the source document.
	positionSearchLen = 50
	// positionSearchBack is how far behind the running offset the search
	// starts, covering content repeated by overlap.
	positionSearchBack = 150
)

// Chunk is one embeddable window of a source document.
type Chunk struct {
	// Content is the chunk text.
	Content string
	// SourcePath is the absolute path of the source file.
	SourcePath string
	// FileType is the source's logical type (markdown, text, ...).
	FileType string
	// ChunkIndex is the chunk's position within the document.
	ChunkIndex int
	// TotalChunks is how many chunks the document produced.
	TotalChunks int
	// ModTime is the source file's modification time.
	ModTime time.Time
	// CharStart and CharEnd are the chunk's byte offsets in the
	// extracted content. Best-effort under overlap.
	CharStart int
	CharEnd   int
	// Headers is the markdown header lineage above CharStart,
	// outermost first, e.g. ["# Title", "## Section"].
	Headers []string
	// TokenCount is the measured token length of Content.
	TokenCount int
}

// Chunker splits documents into chunks.
type Chunker struct {
	splitter *splitter
	counter  TokenCounter
	overlap  int
}

// Options configures a Chunker. Zero values take the defaults.
type Options struct {
	MaxTokens     int
	OverlapTokens int
	Counter       TokenCounter
}

// New creates a Chunker.
func New(opts Options) *Chunker {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.OverlapTokens >= opts.MaxTokens {
		opts.OverlapTokens = opts.MaxTokens / 2
	}
	if opts.Counter == nil {
		opts.Counter = NewTokenCounter()
	}
	return &Chunker{
		splitter: newSplitter(opts.MaxTokens, opts.OverlapTokens, opts.Counter),
		counter:  opts.Counter,
		overlap:  opts.OverlapTokens,
	}
}

// Document splits a single document. Empty or whitespace-only content
// produces no chunks.
func (c *Chunker) Document(doc *extract.Document) []Chunk {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}
	texts := c.splitter.Split(doc.Content)

	chunks := make([]Chunk, 0, len(texts))
	position := 0
	for i, text := range texts {
		start := locate(doc.Content, text, position)
		end := start + len(text)

		chunks = append(chunks, Chunk{
			Content:    text,
			SourcePath: doc.Path,
			FileType:   doc.FileType,
			ChunkIndex: i,
			ModTime:    doc.ModTime,
			CharStart:  start,
			CharEnd:    end,
			Headers:    extractHeaders(doc.Content, start),
			TokenCount: c.counter.Count(text),
		})
		// Next chunk begins inside this one's overlap region.
		position = start + len(text) - c.overlap
	}

	// Stamp the final count now that it is known.
	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// All splits every document into a flat chunk list.
func (c *Chunker) All(docs []*extract.Document) []Chunk {
	var all []Chunk
	for _, doc := range docs {
		all = append(all, c.Document(doc)...)
	}
	return all
}

// locate finds the chunk's byte offset in content by searching for its
// leading characters near the running position. Splitting trims
// whitespace, so the chunk body always occurs verbatim in the source;
// the running position is the fallback if the search still misses.
func locate(content, text string, position int) int {
	search := text
	if len(search) > positionSearchLen {
		search = search[:positionSearchLen]
	}
	from := position - positionSearchBack
	if from < 0 {
		from = 0
	}
	if idx := strings.Index(content[from:], search); idx >= 0 {
		return from + idx
	}
	return position
}

// extractHeaders returns the H1/H2/H3 lineage in effect at position.
// A header at level N clears any deeper levels; H4 and beyond are
// ignored.
func extractHeaders(content string, position int) []string {
	if position > len(content) {
		position = len(content)
	}
	lines := strings.Split(content[:position], "\n")

	var h1, h2, h3 string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "# ") && !strings.HasPrefix(line, "##"):
			h1, h2, h3 = line, "", ""
		case strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "###"):
			h2, h3 = line, ""
		case strings.HasPrefix(line, "### "):
			h3 = line
		}
	}

	var headers []string
	for _, h := range []string{h1, h2, h3} {
		if h != "" {
			headers = append(headers, h)
		}
	}
	return headers
}
