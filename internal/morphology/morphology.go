// Package morphology maps a word to its base forms for a given language.
package morphology

import (
	"unicode"

	"github.com/kljensen/snowball"
)

type Language string

const (
	English Language = "english"
	Russian Language = "russian"
)

// Tag is the part-of-speech marker carried by a base form.
type Tag string

const (
	Preposition  Tag = "PREP"
	Conjunction  Tag = "CONJ"
	Particle     Tag = "PART"
	Interjection Tag = "INT"
	Article      Tag = "ARTICLE"
	Lexical      Tag = "LEX"
)

func (t Tag) IsFunctionWord() bool {
	return t != Lexical && t != ""
}

type BaseForm struct {
	Form string
	Tag  Tag
}

type Analyzer interface {
	Normalize(word string, lang Language) []BaseForm
}

// DetectLanguage picks the dictionary for a single word by script.
func DetectLanguage(word string) Language {
	for _, r := range word {
		if unicode.Is(unicode.Cyrillic, r) {
			return Russian
		}
	}
	return English
}

// Dictionary is the default Analyzer: a function-word lexicon in front of
// the Snowball stemmers.
type Dictionary struct {
	functionWords map[Language]map[string]Tag
}

func NewDictionary() *Dictionary {
	return &Dictionary{
		functionWords: map[Language]map[string]Tag{
			English: englishFunctionWords(),
			Russian: russianFunctionWords(),
		},
	}
}

// Normalize returns nil for anything it cannot analyze.
func (d *Dictionary) Normalize(word string, lang Language) []BaseForm {
	if word == "" || !inAlphabet(word, lang) {
		return nil
	}

	lexicon, ok := d.functionWords[lang]
	if !ok {
		return nil
	}
	if tag, ok := lexicon[word]; ok {
		return []BaseForm{{Form: word, Tag: tag}}
	}

	stemmed, err := snowball.Stem(word, string(lang), false)
	if err != nil || stemmed == "" {
		return nil
	}
	return []BaseForm{{Form: stemmed, Tag: Lexical}}
}

func inAlphabet(word string, lang Language) bool {
	for _, r := range word {
		switch lang {
		case Russian:
			if !(r >= 'а' && r <= 'я') && r != 'ё' {
				return false
			}
		case English:
			if r < 'a' || r > 'z' {
				return false
			}
		default:
			return false
		}
	}
	return true
}
