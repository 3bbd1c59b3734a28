package chunk

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text length in model tokens.
type TokenCounter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
}

// tokenEncoding is the BPE encoding used for chunk sizing. cl100k_base
// matches what most current embedding models tokenize with.
const tokenEncoding = "cl100k_base"

// NewTokenCounter returns a cl100k_base token counter, falling back to a
// byte-length heuristic when the encoding cannot be loaded (e.g. no
// network to fetch the BPE ranks on first use).
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		slog.Warn("tokenizer unavailable, using heuristic token counts",
			slog.String("encoding", tokenEncoding),
			slog.String("error", err.Error()))
		return HeuristicCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates cl100k_base token counts from word and
// character structure. Deterministic and dependency-free, used as a
// fallback and in tests.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for _, field := range strings.Fields(text) {
		// English words average one token; long words split into subwords.
		n += 1 + len(field)/5
	}
	if n == 0 {
		// Whitespace-only text still encodes to at least one token.
		n = 1
	}
	return n
}
