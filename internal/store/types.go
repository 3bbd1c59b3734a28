// Package store persists chunk records in SQLite and serves vector
// similarity queries from an in-memory HNSW graph rebuilt at open.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrClosed is returned by store methods after Close.
var ErrClosed = errors.New("store is closed")

// ErrDimensionMismatch indicates a vector of the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// SearchResult is one similarity hit.
type SearchResult struct {
	// ID is the chunk's stable identifier.
	ID string
	// Content is the chunk text.
	Content string
	// SourcePath is the absolute path of the source file.
	SourcePath string
	// FileName is the base name of the source file.
	FileName string
	// FileType is the source's logical type.
	FileType string
	// ChunkIndex and TotalChunks locate the chunk in its document.
	ChunkIndex  int
	TotalChunks int
	// Headers is the markdown lineage, outermost first.
	Headers []string
	// Score is the similarity score in (0, 1], 1/(1+distance).
	Score float32
	// Distance is the raw L2 distance.
	Distance float32
}

// Filter narrows search results by chunk metadata.
type Filter struct {
	// FileType keeps only chunks of this type when non-empty.
	FileType string
}

// Stats summarizes index contents.
type Stats struct {
	TotalChunks int            `json:"total_chunks"`
	TotalFiles  int            `json:"total_files"`
	ByType      map[string]int `json:"by_type"`
}

// MakeChunkID builds the stable chunk identifier from a source path and
// chunk index: path separators normalized to "/", then "::chunk_<n>".
// Identical content always maps to identical IDs, so re-upserts replace
// rather than duplicate.
func MakeChunkID(sourcePath string, chunkIndex int) string {
	normalized := strings.ReplaceAll(sourcePath, "\\", "/")
	return fmt.Sprintf("%s::chunk_%d", normalized, chunkIndex)
}

// encodeHeaders flattens a header lineage for storage.
func encodeHeaders(headers []string) string {
	return strings.Join(headers, " > ")
}

// decodeHeaders reverses encodeHeaders. Empty input yields nil.
func decodeHeaders(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, " > ")
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks encodeVector output.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// distanceToScore maps an L2 distance to a similarity score in (0, 1].
func distanceToScore(distance float32) float32 {
	return 1.0 / (1.0 + distance)
}

// mtimeToUnix converts a modification time for storage.
func mtimeToUnix(t time.Time) int64 {
	return t.UnixNano()
}

// unixToMtime reverses mtimeToUnix.
func unixToMtime(n int64) time.Time {
	return time.Unix(0, n)
}
