package chunk

import (
	"strings"
)

// defaultSeparators is the split ladder, coarsest first: markdown section
// headers, then paragraphs, lines, sentences, clauses, words, characters.
// The empty string is the terminal separator and always matches.
var defaultSeparators = []string{
	"\n## ",
	"\n### ",
	"\n#### ",
	"\n\n",
	"\n",
	". ",
	", ",
	" ",
	"",
}

// splitter recursively splits text on a separator ladder and greedily
// merges the pieces into token-budgeted windows with overlap carried
// between consecutive windows. Separators stay attached to the start of
// the piece they preceded, so header markers survive splitting.
type splitter struct {
	budget     int
	overlap    int
	counter    TokenCounter
	separators []string
}

func newSplitter(budget, overlap int, counter TokenCounter) *splitter {
	return &splitter{
		budget:     budget,
		overlap:    overlap,
		counter:    counter,
		separators: defaultSeparators,
	}
}

// Split returns the text divided into windows of at most budget tokens.
func (s *splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *splitter) split(text string, separators []string) []string {
	// Pick the coarsest separator present in the text.
	sep := separators[len(separators)-1]
	var rest []string
	for i, cand := range separators {
		if cand == "" {
			sep = ""
			rest = nil
			break
		}
		if strings.Contains(text, cand) {
			sep = cand
			rest = separators[i+1:]
			break
		}
	}

	var final, fitting []string
	for _, piece := range splitKeepingSeparator(text, sep) {
		if s.counter.Count(piece) < s.budget {
			fitting = append(fitting, piece)
			continue
		}
		// Piece exceeds the budget: flush what fits, then recurse into
		// the oversized piece with the finer separators.
		if len(fitting) > 0 {
			final = append(final, s.merge(fitting)...)
			fitting = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(fitting) > 0 {
		final = append(final, s.merge(fitting)...)
	}
	return final
}

// splitKeepingSeparator splits text on sep, attaching sep to the start of
// each following piece. An empty sep splits into individual characters.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	if parts[0] != "" {
		pieces = append(pieces, parts[0])
	}
	for _, part := range parts[1:] {
		pieces = append(pieces, sep+part)
	}
	return pieces
}

// merge greedily packs pieces into windows of at most budget tokens.
// When a window closes, pieces are dropped from its front until the
// remainder fits under the overlap allowance; the remainder seeds the
// next window.
func (s *splitter) merge(pieces []string) []string {
	var docs []string
	var window []string
	total := 0

	for _, piece := range pieces {
		n := s.counter.Count(piece)
		if total+n > s.budget && len(window) > 0 {
			if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.budget && total > 0) {
				total -= s.counter.Count(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
