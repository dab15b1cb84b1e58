package normalizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	res, err := language.Default()
	require.NoError(t, err)
	return New(res)
}

func TestNormalize(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"stopwords and lemmas", "Great book, loved it!", []string{"great", "book", "love"}},
		{"negative review", "Book was terrible, hated it", []string{"book", "terrible", "hate"}},
		{"plural table entry", "great story loved characters", []string{"great", "story", "love", "character"}},
		{"accents folded", "Café crème", []string{"cafe", "creme"}},
		{"digits dropped", "read 2 books in 3days", []string{"read", "book"}},
		{"single chars kept", "a b c", []string{"b", "c"}},
		{"only stopwords", "the and it", []string{}},
		{"apostrophes joined", "didn't like the ending", []string{"didnt", "like", "ending"}},
		{"regular plural", "the covers and pages", []string{"cover", "page"}},
		{"ies rule", "the libraries", []string{"library"}},
		{"ss kept", "the glass", []string{"glass"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestNormalizeMissingInput(t *testing.T) {
	n := newTestNormalizer(t)
	for _, in := range []string{"", "   ", "NaN", "nan", "null", "None"} {
		got := n.Normalize(in)
		require.NotNil(t, got, "input %q", in)
		assert.Empty(t, got, "input %q", in)
	}
}

func TestNormalizeWithStubResource(t *testing.T) {
	res, err := language.Load(strings.NewReader("book\n"), strings.NewReader("geese goose\n"))
	require.NoError(t, err)
	n := New(res)

	assert.Equal(t, []string{"the", "goose"}, n.Normalize("the book geese"))
}

func TestNormalizeAll(t *testing.T) {
	n := newTestNormalizer(t)
	got := n.NormalizeAll([]string{"loved it", "", "hated it"})
	require.Len(t, got, 3)
	assert.Equal(t, []string{"love"}, got[0])
	assert.Empty(t, got[1])
	assert.Equal(t, []string{"hate"}, got[2])
}

func TestIsMissing(t *testing.T) {
	for _, text := range []string{"", "  ", "NaN", "null", "<NA>", " n/a "} {
		assert.True(t, IsMissing(text), text)
	}
	assert.False(t, IsMissing("nano"))
	assert.False(t, IsMissing("x"))
}
