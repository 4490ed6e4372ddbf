package tokenizer

import (
	"strings"
)

// CharNGramTokenizer tokenizes text into character n-grams
//
// Analyzers:
//   - "char": n-grams over the raw string, whitespace included
//   - "char_wb": n-grams inside word boundaries, each word padded with one space
type CharNGramTokenizer struct {
	MinN      int
	MaxN      int
	Analyzer  string // "char" or "char_wb"
	Lowercase bool
	StopWords map[string]bool
}

// NewCharNGramTokenizer creates a new character n-gram tokenizer
func NewCharNGramTokenizer(minN, maxN int, analyzer string) *CharNGramTokenizer {
	return &CharNGramTokenizer{
		MinN:      minN,
		MaxN:      maxN,
		Analyzer:  analyzer,
		Lowercase: true,
		StopWords: make(map[string]bool),
	}
}

// Tokenize converts text into tokens
func (t *CharNGramTokenizer) Tokenize(text string) []string {
	if t.Lowercase {
		text = strings.ToLower(text)
	}

	var tokens []string

	if t.Analyzer == "char_wb" {
		for _, word := range strings.Fields(text) {
			if t.StopWords[word] {
				continue
			}
			tokens = append(tokens, t.extractNGrams(" "+word+" ")...)
		}
	} else {
		tokens = t.extractNGrams(text)
	}

	return tokens
}

// extractNGrams extracts n-grams from a string
func (t *CharNGramTokenizer) extractNGrams(text string) []string {
	runes := []rune(text)
	var ngrams []string

	for n := t.MinN; n <= t.MaxN; n++ {
		for i := 0; i <= len(runes)-n; i++ {
			ngrams = append(ngrams, string(runes[i:i+n]))
		}
	}

	return ngrams
}

// Counts returns the term frequency of every n-gram in text
func (t *CharNGramTokenizer) Counts(text string) map[string]float32 {
	counts := make(map[string]float32)
	for _, token := range t.Tokenize(text) {
		counts[token]++
	}
	return counts
}
