// Package extract discovers vault documents on disk and converts each
// supported format to plain text for chunking.
package extract

import (
	"errors"
	"time"
)

// DefaultMaxFileSize is the per-file size cap (1MB). Larger files are skipped.
const DefaultMaxFileSize = 1024 * 1024

// csvRowLimit caps how many data rows a CSV extraction includes.
const csvRowLimit = 100

// ErrUnsupported indicates a file whose format has no extractor.
var ErrUnsupported = errors.New("unsupported file type")

// Document is an extracted vault file ready for chunking.
type Document struct {
	// Path is the absolute path of the source file.
	Path string
	// Content is the extracted plain text.
	Content string
	// FileType is the logical type (markdown, text, html, json, csv, pdf).
	FileType string
	// ModTime is the file's modification time.
	ModTime time.Time
	// Size is the raw file size in bytes.
	Size int64
}

// fileTypes maps supported extensions to their logical file type. Code
// files read as plain text; notes vaults often hold snippets.
var fileTypes = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
	".rst":      "text",
	".py":       "text",
	".js":       "text",
	".ts":       "text",
	".jsx":      "text",
	".tsx":      "text",
	".html":     "html",
	".htm":      "html",
	".json":     "json",
	".csv":      "csv",
	".pdf":      "pdf",
}

// Options controls document discovery.
type Options struct {
	// MaxFileSize is the per-file size cap in bytes (default: 1MB).
	MaxFileSize int64
	// SkipDirs are directory names to skip during traversal.
	SkipDirs map[string]bool
	// Workers is the number of concurrent extraction workers
	// (default: runtime.NumCPU).
	Workers int
}
