// Package snippet cuts a highlighted excerpt around query lemmas out of
// page text.
package snippet

import (
	"strings"

	"github.com/deidaraiorek/sitesearch/internal/tokenizer"
)

const (
	// radius is the number of characters kept on each side of the anchor.
	radius = 130
	// near is the largest token distance at which two matches share an
	// excerpt.
	near = 3
)

// Lemmatizer returns the lemmas of a piece of text in order.
type Lemmatizer interface {
	Lemmas(text string) []string
}

type Builder struct {
	lemmatizer Lemmatizer
}

func NewBuilder(l Lemmatizer) *Builder {
	return &Builder{lemmatizer: l}
}

// Build returns an excerpt of content around the densest group of matches
// of lemmas, with every matched word wrapped in <b>. It returns "" when no
// lemma occurs in content.
func (b *Builder) Build(content string, lemmas []string) string {
	tokens := tokenizer.Fields(content)
	if len(tokens) == 0 || len(lemmas) == 0 {
		return ""
	}

	positions := b.positions(tokens, lemmas)
	chosen, anchor, ok := choose(positions, lemmas)
	if !ok {
		return ""
	}

	text := []rune(strings.Join(tokens, " "))
	offset := 0
	for _, tok := range tokens[:anchor] {
		offset += len([]rune(tok)) + 1
	}
	begin := max(offset-radius, 0)
	end := min(offset+radius, len(text))
	snippet := "<... " + string(text[begin:end]) + " ...>"

	bolded := make(map[string]bool)
	for _, lemma := range lemmas {
		pos, ok := chosen[lemma]
		if !ok {
			continue
		}
		word := tokens[pos]
		if bolded[word] {
			continue
		}
		bolded[word] = true
		snippet = strings.ReplaceAll(snippet, " "+word+" ", " <b>"+word+"</b> ")
	}
	return snippet
}

// positions maps every lemma to the indices of the tokens whose lemma ends
// with it.
func (b *Builder) positions(tokens, lemmas []string) map[string][]int {
	tokenLemmas := make([]string, len(tokens))
	for i, tok := range tokens {
		tokenLemmas[i] = b.tokenLemma(tok)
	}

	positions := make(map[string][]int, len(lemmas))
	for _, lemma := range lemmas {
		target := strings.ToLower(lemma)
		if target == "" {
			continue
		}
		for i, tl := range tokenLemmas {
			if tl != "" && strings.HasSuffix(tl, target) {
				positions[lemma] = append(positions[lemma], i)
			}
		}
	}
	return positions
}

func (b *Builder) tokenLemma(token string) string {
	w := token
	if strings.HasSuffix(w, "'s") {
		w = strings.ReplaceAll(w, "'s", "")
	}
	if strings.HasSuffix(w, ".com") {
		w = strings.ReplaceAll(w, ".com", "")
	}
	found := b.lemmatizer.Lemmas(w)
	if len(found) == 0 {
		return ""
	}
	return strings.ToLower(found[0])
}

// choose picks one occurrence per lemma so that consecutive picks lie
// within near tokens of each other where possible, and returns the final
// anchor position.
func choose(positions map[string][]int, lemmas []string) (map[string]int, int, bool) {
	anchor := -1
	for _, lemma := range lemmas {
		if len(positions[lemma]) == 1 {
			anchor = positions[lemma][0]
			break
		}
	}
	if anchor < 0 {
		for _, lemma := range lemmas {
			if len(positions[lemma]) > 0 {
				anchor = positions[lemma][0]
				break
			}
		}
	}
	if anchor < 0 {
		return nil, 0, false
	}

	chosen := make(map[string]int, len(lemmas))
	for _, lemma := range lemmas {
		occurrences := positions[lemma]
		if len(occurrences) == 0 {
			continue
		}
		chosen[lemma] = occurrences[0]
		if isNear(anchor, occurrences[0]) {
			anchor = occurrences[0]
			continue
		}
		for _, pos := range occurrences {
			if isNear(anchor, pos) {
				anchor = pos
				chosen[lemma] = pos
			}
		}
	}
	return chosen, anchor, true
}

func isNear(a, b int) bool {
	d := a - b
	return d >= -near && d <= near
}
