package labeler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/vectorizer"
)

func testVocab(t *testing.T) *vectorizer.Vocabulary {
	t.Helper()
	_, vocab, err := vectorizer.FitTransform(
		[][]string{{"alpha", "bravo", "charlie", "delta", "echo"}},
		vectorizer.Options{MinDocumentFrequency: 1, MaxDocumentFrequencyFraction: 1},
	)
	require.NoError(t, err)
	return vocab
}

func TestLabelOrdering(t *testing.T) {
	vocab := testVocab(t)
	got := Label([]float64{0.1, 0.5, 0.3, 0.5, 0.2}, vocab, 10)

	assert.Equal(t, []string{"bravo", "delta", "charlie", "echo", "alpha"}, got.Terms())
	assert.Equal(t, "bravo / delta / charlie", got.Display)
	for i := 1; i < len(got.Keywords); i++ {
		assert.GreaterOrEqual(t, got.Keywords[i-1].Weight, got.Keywords[i].Weight)
	}
}

func TestLabelTopN(t *testing.T) {
	vocab := testVocab(t)
	got := Label([]float64{0.1, 0.5, 0.3, 0.4, 0.2}, vocab, 2)
	assert.Equal(t, []string{"bravo", "delta"}, got.Terms())
	assert.Equal(t, "bravo / delta", got.Display)
}

func TestLabelSkipsZeroWeights(t *testing.T) {
	vocab := testVocab(t)
	got := Label([]float64{0, 0.2, 0, 0, 0}, vocab, 10)
	assert.Equal(t, []string{"bravo"}, got.Terms())
	assert.Equal(t, "bravo", got.Display)

	empty := Label(make([]float64, 5), vocab, 10)
	assert.Empty(t, empty.Keywords)
	assert.Equal(t, "", empty.Display)
}

func TestLabelDefaultTopN(t *testing.T) {
	_, vocab, err := vectorizer.FitTransform(
		[][]string{{"a1", "b1", "c1", "d1", "e1", "f1", "g1", "h1", "i1", "j1", "k1", "l1"}},
		vectorizer.Options{MinDocumentFrequency: 1, MaxDocumentFrequencyFraction: 1},
	)
	require.NoError(t, err)
	weights := make([]float64, vocab.Len())
	for i := range weights {
		weights[i] = 1
	}
	got := Label(weights, vocab, 0)
	require.Len(t, got.Keywords, DefaultTopN)
	assert.Equal(t, "a1", got.Keywords[0].Term)
}

func TestLabelAllAllowsDuplicateLabels(t *testing.T) {
	vocab := testVocab(t)
	labels := LabelAll([][]float64{
		{0.9, 0.8, 0.7, 0, 0},
		{0.6, 0.5, 0.4, 0.1, 0},
	}, vocab, 10)
	require.Len(t, labels, 2)
	assert.Equal(t, labels[0].Display, labels[1].Display)
	assert.Len(t, labels[1].Keywords, 4)
}
