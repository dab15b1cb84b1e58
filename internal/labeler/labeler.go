// Package labeler derives keyword lists and display labels for clusters
// from their per-term importance weights.
package labeler

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/vectorizer"
)

const (
	DefaultTopN    = 10
	LabelKeywords  = 3
	LabelSeparator = " / "
)

// Keyword is one ranked term of a cluster and its importance weight.
type Keyword struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// ClusterLabel holds a cluster's ranked keywords and the display label
// built from the first three.
type ClusterLabel struct {
	Keywords []Keyword `json:"keywords"`
	Display  string    `json:"label"`
}

// Terms returns the keyword terms in rank order.
func (l ClusterLabel) Terms() []string {
	terms := make([]string, len(l.Keywords))
	for i, kw := range l.Keywords {
		terms[i] = kw.Term
	}
	return terms
}

// Label ranks vocabulary terms by importance, descending, with ties going
// to the lower vocabulary index. Only positive weights are kept, so the
// list can be shorter than topN. The display label joins the first three
// keywords.
func Label(importance []float64, vocab *vectorizer.Vocabulary, topN int) ClusterLabel {
	if topN <= 0 {
		topN = DefaultTopN
	}
	idx := make([]int, 0, len(importance))
	for i, w := range importance {
		if w > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		wa, wb := importance[idx[a]], importance[idx[b]]
		if wa != wb {
			return wa > wb
		}
		return idx[a] < idx[b]
	})
	if len(idx) > topN {
		idx = idx[:topN]
	}

	keywords := make([]Keyword, len(idx))
	for i, j := range idx {
		keywords[i] = Keyword{Term: vocab.Term(j), Weight: importance[j]}
	}
	return ClusterLabel{Keywords: keywords, Display: display(keywords)}
}

// LabelAll labels every cluster's importance vector.
func LabelAll(importance [][]float64, vocab *vectorizer.Vocabulary, topN int) []ClusterLabel {
	labels := make([]ClusterLabel, len(importance))
	for c, row := range importance {
		labels[c] = Label(row, vocab, topN)
	}
	return labels
}

func display(keywords []Keyword) string {
	n := min(LabelKeywords, len(keywords))
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = keywords[i].Term
	}
	return strings.Join(parts, LabelSeparator)
}
