// Package textprocessor turns text into lemmas using the morphology
// dictionaries.
package textprocessor

import (
	"sort"
	"unicode/utf8"

	"github.com/deidaraiorek/sitesearch/internal/morphology"
	"github.com/deidaraiorek/sitesearch/internal/tokenizer"
)

type TextProcessor struct {
	tokenizer *tokenizer.Tokenizer
	analyzer  morphology.Analyzer
}

func NewTextProcessor(analyzer morphology.Analyzer) *TextProcessor {
	if analyzer == nil {
		analyzer = morphology.NewDictionary()
	}
	return &TextProcessor{
		tokenizer: tokenizer.NewTokenizer(),
		analyzer:  analyzer,
	}
}

// Lemma returns the base form of a single lower-case word. Function words
// and words the dictionary does not know report false.
func (tp *TextProcessor) Lemma(word string) (string, bool) {
	if word == "" {
		return "", false
	}

	forms := tp.analyzer.Normalize(word, morphology.DetectLanguage(word))
	if len(forms) == 0 {
		return "", false
	}
	for _, f := range forms {
		if f.Tag.IsFunctionWord() {
			return "", false
		}
	}
	return forms[0].Form, true
}

// Lemmas returns the lemmas of text in order of appearance.
func (tp *TextProcessor) Lemmas(text string) []string {
	tokens := tp.tokenizer.Tokenize(text)

	lemmas := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if lemma, ok := tp.Lemma(token); ok {
			lemmas = append(lemmas, lemma)
		}
	}
	return lemmas
}

// Extract counts lemma occurrences in text.
func (tp *TextProcessor) Extract(text string) map[string]int {
	freq := make(map[string]int)
	for _, lemma := range tp.Lemmas(text) {
		freq[lemma]++
	}
	return freq
}

// QueryLemmas returns the distinct lemmas of a search query, without
// single-character ones, sorted.
func (tp *TextProcessor) QueryLemmas(query string) []string {
	freq := tp.Extract(query)

	lemmas := make([]string, 0, len(freq))
	for lemma := range freq {
		if utf8.RuneCountInString(lemma) > 1 {
			lemmas = append(lemmas, lemma)
		}
	}
	sort.Strings(lemmas)
	return lemmas
}
