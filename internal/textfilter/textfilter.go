// Package textfilter implements the low-information page filter (C1):
// it rejects scan artefacts, tables of contents, and figure/table
// directories before a page ever reaches chunking. The thresholds here
// are fixed by the retrieval contract, not configurable.
package textfilter

import (
	"regexp"
	"strings"
	"unicode"
)

const minNonWhitespaceChars = 50

const nonJapaneseRatioThreshold = 0.7

const tocDottedLeaderMinLines = 5

const figureTableMinLines = 3

var dottedLeaderPattern = regexp.MustCompile(`\.{3,}\d+\s*$`)

var figureTablePattern = regexp.MustCompile(`^(図\d+|表\d+)`)

// Decision is the C1 verdict on a page.
type Decision int

const (
	// Keep means the page should proceed to chunking.
	Keep Decision = iota
	// Drop means the page carries too little information to index.
	Drop
)

// Evaluate applies the four contract thresholds in order and returns
// Drop as soon as one fires, or Keep if none do.
func Evaluate(pageText string) Decision {
	if countNonWhitespace(pageText) < minNonWhitespaceChars {
		return Drop
	}
	if nonJapaneseASCIIRatio(pageText) > nonJapaneseRatioThreshold {
		return Drop
	}
	lines := strings.Split(pageText, "\n")
	if countMatching(lines, dottedLeaderPattern) >= tocDottedLeaderMinLines {
		return Drop
	}
	if countLineInitialMatching(lines, figureTablePattern) >= figureTableMinLines {
		return Drop
	}
	return Keep
}

func countNonWhitespace(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// nonJapaneseASCIIRatio is the fraction of runes that are neither
// Japanese script (Hiragana, Katakana, Han) nor ASCII letters, counted
// over all non-whitespace runes.
func nonJapaneseASCIIRatio(text string) float64 {
	total := 0
	other := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isJapanese(r) || isASCIILetter(r) {
			continue
		}
		other++
	}
	if total == 0 {
		return 0
	}
	return float64(other) / float64(total)
}

func isJapanese(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han)
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func countMatching(lines []string, pattern *regexp.Regexp) int {
	n := 0
	for _, line := range lines {
		if pattern.MatchString(line) {
			n++
		}
	}
	return n
}

func countLineInitialMatching(lines []string, pattern *regexp.Regexp) int {
	n := 0
	for _, line := range lines {
		if pattern.MatchString(strings.TrimSpace(line)) {
			n++
		}
	}
	return n
}
