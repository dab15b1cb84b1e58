// Package normalizer turns raw review text into a canonical token stream.
// It lower-cases and accent-folds input, splits on non-letter boundaries,
// drops stopwords and non-alphabetic tokens, and reduces the remaining
// tokens to their lemma. Short tokens are kept; the vectorizer decides
// which terms are long enough for a vocabulary.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
)

// missingMarkers are placeholders table tools write for absent cells.
var missingMarkers = map[string]struct{}{
	"nan": {}, "null": {}, "none": {}, "<na>": {}, "n/a": {},
}

// inflection rules are tried in order; the first matching suffix wins and
// only if the remaining stem is at least minLen runes long.
var inflections = []struct {
	suffix      string
	replacement string
	minLen      int
	except      []string
}{
	{"sses", "ss", 2, nil},
	{"ies", "y", 2, nil},
	{"ied", "y", 2, nil},
	{"s", "", 3, []string{"ss", "us", "is", "ys", "as"}},
}

// Normalizer maps review text to lemmas using one language resource. It
// holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	res *language.Resource
}

// New returns a Normalizer backed by res.
func New(res *language.Resource) *Normalizer {
	return &Normalizer{res: res}
}

// Normalize returns the lemma sequence for text. Missing input yields an
// empty, non-nil slice.
func (n *Normalizer) Normalize(text string) []string {
	tokens := make([]string, 0)
	if IsMissing(text) {
		return tokens
	}
	trimmed := strings.TrimSpace(text)

	folded := foldAccents(strings.ToLower(trimmed))
	folded = strings.NewReplacer("'", "", "’", "").Replace(folded)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		if !isAlpha(word) {
			continue
		}
		if n.res.IsStopword(word) {
			continue
		}
		lemma := n.lemmatize(word)
		if lemma == "" || n.res.IsStopword(lemma) {
			continue
		}
		tokens = append(tokens, lemma)
	}
	return tokens
}

// IsMissing reports whether text is blank or a missing-value marker.
func IsMissing(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	_, missing := missingMarkers[strings.ToLower(trimmed)]
	return missing
}

// NormalizeAll normalizes every text in order.
func (n *Normalizer) NormalizeAll(texts []string) [][]string {
	out := make([][]string, len(texts))
	for i, text := range texts {
		out[i] = n.Normalize(text)
	}
	return out
}

func (n *Normalizer) lemmatize(word string) string {
	if lemma, ok := n.res.Lemma(word); ok {
		return lemma
	}
	for _, rule := range inflections {
		if !strings.HasSuffix(word, rule.suffix) {
			continue
		}
		if hasAnySuffix(word, rule.except) {
			return word
		}
		stem := word[:len(word)-len(rule.suffix)] + rule.replacement
		if len([]rune(stem)) >= rule.minLen {
			return stem
		}
		return word
	}
	return word
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isAlpha(word string) bool {
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func hasAnySuffix(word string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(word, s) {
			return true
		}
	}
	return false
}
