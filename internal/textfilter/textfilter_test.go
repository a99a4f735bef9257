package textfilter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateDropsShortPages(t *testing.T) {
	assert.Equal(t, Drop, Evaluate("短い"))
}

func TestEvaluateKeepsOrdinaryJapanesePage(t *testing.T) {
	page := strings.Repeat("吾輩は猫である。名前はまだ無い。", 5)
	assert.Equal(t, Keep, Evaluate(page))
}

func TestEvaluateDropsHighNonJapaneseRatio(t *testing.T) {
	page := strings.Repeat("#$%^&*()_+=-{}[]|\\<>/~`1234567890", 5)
	assert.Equal(t, Drop, Evaluate(page))
}

func TestEvaluateDropsTableOfContents(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 6; i++ {
		b.WriteString("第一章 はじめに")
		b.WriteString(strings.Repeat(".", 10))
		b.WriteString("12\n")
	}
	assert.Equal(t, Drop, Evaluate(b.String()))
}

func TestEvaluateDropsFigureTableDirectory(t *testing.T) {
	page := "図1 概要図\n図2 構成図\n図3 配置図\n本文はここに十分な長さの説明が続きますが directory として扱われます\n"
	assert.Equal(t, Drop, Evaluate(page))
}

func TestEvaluateKeepsPageWithFewDottedLeaders(t *testing.T) {
	var b strings.Builder
	b.WriteString(strings.Repeat("本文の内容です。", 10))
	b.WriteString("\n第一節.....1\n第二節.....2\n")
	assert.Equal(t, Keep, Evaluate(b.String()))
}

func TestCountNonWhitespaceIgnoresSpaces(t *testing.T) {
	assert.Equal(t, 3, countNonWhitespace("a b\nc"))
}
