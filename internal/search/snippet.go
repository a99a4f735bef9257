package search

import (
	"strings"

	"github.com/kugutsushi/engine/internal/lexical"
)

const snippetWindow = 160

// buildSnippet returns a snippetWindow-character window of text
// centred on the highest-scoring query-term match (the first query
// bigram found in the text), or the text prefix if no term matches.
func buildSnippet(queryText, text string) string {
	runes := []rune(text)
	if len(runes) <= snippetWindow {
		return text
	}

	matchAt := firstMatch(queryText, text)
	if matchAt < 0 {
		return string(runes[:snippetWindow])
	}

	half := snippetWindow / 2
	start := matchAt - half
	if start < 0 {
		start = 0
	}
	end := start + snippetWindow
	if end > len(runes) {
		end = len(runes)
		start = end - snippetWindow
		if start < 0 {
			start = 0
		}
	}
	return string(runes[start:end])
}

// firstMatch returns the rune index of the first query bigram found
// in text, or -1 if none match.
func firstMatch(queryText, text string) int {
	tokens := lexical.Tokenize(queryText)
	if len(tokens) == 0 {
		return -1
	}
	best := -1
	for _, tok := range tokens {
		byteIdx := strings.Index(text, tok)
		if byteIdx < 0 {
			continue
		}
		runeIdx := len([]rune(text[:byteIdx]))
		if best < 0 || runeIdx < best {
			best = runeIdx
		}
	}
	return best
}
