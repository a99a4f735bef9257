package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSnippetReturnsWholeTextWhenShort(t *testing.T) {
	text := "短い本文"
	assert.Equal(t, text, buildSnippet("本文", text))
}

func TestBuildSnippetCentersOnMatch(t *testing.T) {
	prefix := strings.Repeat("あ", 200)
	text := prefix + "重要なキーワード" + strings.Repeat("い", 200)

	snippet := buildSnippet("キーワード", text)
	assert.Contains(t, snippet, "キーワード")
	assert.LessOrEqual(t, len([]rune(snippet)), snippetWindow)
}

func TestBuildSnippetFallsBackToPrefixWhenNoMatch(t *testing.T) {
	text := strings.Repeat("あ", 300)
	snippet := buildSnippet("存在しない語", text)
	assert.Equal(t, string([]rune(text)[:snippetWindow]), snippet)
}
