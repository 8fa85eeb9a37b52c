// Package knowledge indexes knowledge documents as embedded token windows and
// answers similarity queries against them.
package knowledge

import (
	"strings"
	"unicode"

	"github.com/cloo-solutions/helpdesk/internal/domain"
)

const (
	DefaultChunkSize    = 750
	DefaultChunkOverlap = 150
)

// Tokenize lower-cases text, replaces every character that is not a letter,
// number or whitespace with a space and splits on whitespace.
func Tokenize(text string) []string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return r
		default:
			return ' '
		}
	}, text)
	return strings.Fields(clean)
}

// ChunkText splits text into windows of size tokens, each starting
// size-overlap tokens after the previous one. The final window always ends
// on the last token and is never repeated.
func ChunkText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, domain.ErrInvalidChunkSize
	}
	return chunkTokens(Tokenize(text), size, overlap), nil
}

func chunkTokens(tokens []string, size, overlap int) []string {
	if len(tokens) == 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	step := max(1, size-overlap)

	chunks := make([]string, 0, len(tokens)/step+1)
	for start := 0; start < len(tokens); start += step {
		end := min(start+size, len(tokens))
		if end > start {
			chunks = append(chunks, strings.Join(tokens[start:end], " "))
		}
		if start+size >= len(tokens) {
			break
		}
	}
	return chunks
}

// NormalizeTags trims and lower-cases tags, dropping blanks and duplicates.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
