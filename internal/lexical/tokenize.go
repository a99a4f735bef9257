// Package lexical implements the Lexical Index (C5): 2-gram BM25 over
// an embedded relational store, with posting lists packed as
// varint-delta-encoded blobs.
package lexical

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize splits text into character 2-grams over NFKC-normalised
// text. Whitespace and punctuation are hard breaks: no bigram crosses
// them. An empty input yields no tokens.
func Tokenize(text string) []string {
	normalized := norm.NFKC.String(text)
	if normalized == "" {
		return nil
	}

	runs := breakIntoRuns(normalized)

	var tokens []string
	for _, run := range runs {
		for i := 0; i+1 < len(run); i++ {
			tokens = append(tokens, string(run[i])+string(run[i+1]))
		}
	}
	return tokens
}

// breakIntoRuns splits normalized text into maximal runs of
// non-whitespace, non-punctuation runes.
func breakIntoRuns(text string) [][]rune {
	var runs [][]rune
	var current []rune
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			if len(current) > 0 {
				runs = append(runs, current)
				current = nil
			}
			continue
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}
