package tokenizer

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^a-zа-яё\s]`)

type Tokenizer struct {
	maxLength int
}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		maxLength: 50,
	}
}

// Tokenize lower-cases text, blanks out everything but latin and cyrillic
// letters and splits on whitespace.
func (t *Tokenizer) Tokenize(text string) []string {
	normalized := t.normalize(text)
	words := strings.Fields(normalized)

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len([]rune(word)) > t.maxLength {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func (t *Tokenizer) normalize(text string) string {
	text = strings.ToLower(text)

	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", " ")

	return nonWord.ReplaceAllString(text, " ")
}

// Fields splits text on whitespace and keeps every token as written, so
// token positions map back onto the original text.
func Fields(text string) []string {
	return strings.Fields(text)
}
