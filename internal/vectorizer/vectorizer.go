// Package vectorizer converts a corpus of normalized token sequences into
// a sparse TF-IDF matrix over a frequency-filtered, lexicographically
// ordered vocabulary.
package vectorizer

import (
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
)

const (
	DefaultMinDocumentFrequency         = 5
	DefaultMaxDocumentFrequencyFraction = 0.9

	// MinTermLength is the shortest term, in runes, kept in a vocabulary.
	MinTermLength = 2
)

// Options controls vocabulary filtering.
type Options struct {
	MinDocumentFrequency         int
	MaxDocumentFrequencyFraction float64
	StopWords                    map[string]struct{}
}

// DefaultOptions returns the default frequency filters with no stopwords.
func DefaultOptions() Options {
	return Options{
		MinDocumentFrequency:         DefaultMinDocumentFrequency,
		MaxDocumentFrequencyFraction: DefaultMaxDocumentFrequencyFraction,
	}
}

// Validate checks the frequency filters.
func (o Options) Validate() error {
	if o.MinDocumentFrequency < 1 {
		return fmt.Errorf("%w: min document frequency must be at least 1, got %d",
			apperrors.ErrInvalidInput, o.MinDocumentFrequency)
	}
	if o.MaxDocumentFrequencyFraction <= 0 || o.MaxDocumentFrequencyFraction > 1 {
		return fmt.Errorf("%w: max document frequency fraction must be in (0, 1], got %g",
			apperrors.ErrInvalidInput, o.MaxDocumentFrequencyFraction)
	}
	return nil
}

// Vocabulary maps terms to stable column indices. Terms are sorted.
type Vocabulary struct {
	terms   []string
	index   map[string]int
	docFreq []int
	idf     []float64
}

// Len is the number of terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// Term returns the term in column i.
func (v *Vocabulary) Term(i int) string { return v.terms[i] }

// Index returns the column of term.
func (v *Vocabulary) Index(term string) (int, bool) {
	i, ok := v.index[term]
	return i, ok
}

// Terms returns a copy of the ordered term list.
func (v *Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// DocFreq is the number of documents containing term i.
func (v *Vocabulary) DocFreq(i int) int { return v.docFreq[i] }

// IDF is the smoothed inverse document frequency of term i.
func (v *Vocabulary) IDF(i int) float64 { return v.idf[i] }

// SparseVector holds the non-zero entries of one matrix row, indices
// ascending.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// NNZ is the number of stored entries.
func (s SparseVector) NNZ() int { return len(s.Indices) }

// Dense expands the vector to the given width.
func (s SparseVector) Dense(width int) []float64 {
	out := make([]float64, width)
	for i, idx := range s.Indices {
		out[idx] = s.Values[i]
	}
	return out
}

// Matrix is a row-per-document sparse matrix.
type Matrix struct {
	Rows []SparseVector
	Cols int
}

// NumRows is the number of documents.
func (m *Matrix) NumRows() int { return len(m.Rows) }

// FitTransform builds the vocabulary from docs and returns their TF-IDF
// rows. Term weights are raw counts times smooth IDF
// ln((1+n)/(1+df))+1, L2-normalized per row; rows with no retained terms
// stay zero.
func FitTransform(docs [][]string, opts Options) (*Matrix, *Vocabulary, error) {
	if len(docs) == 0 {
		return nil, nil, fmt.Errorf("%w: corpus has no documents", apperrors.ErrInsufficientData)
	}
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, term := range doc {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			docFreq[term]++
		}
	}

	n := len(docs)
	maxDF := n
	if opts.MaxDocumentFrequencyFraction < 1 {
		maxDF = int(math.Floor(opts.MaxDocumentFrequencyFraction * float64(n)))
	}

	terms := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if utf8.RuneCountInString(term) < MinTermLength {
			continue
		}
		if _, stop := opts.StopWords[term]; stop {
			continue
		}
		if df < opts.MinDocumentFrequency || df > maxDF {
			continue
		}
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return nil, nil, fmt.Errorf("%w: no term appears in at least %d and at most %d of %d documents",
			apperrors.ErrEmptyVocabulary, opts.MinDocumentFrequency, maxDF, n)
	}
	sort.Strings(terms)

	vocab := &Vocabulary{
		terms:   terms,
		index:   make(map[string]int, len(terms)),
		docFreq: make([]int, len(terms)),
		idf:     make([]float64, len(terms)),
	}
	for i, term := range terms {
		vocab.index[term] = i
		vocab.docFreq[i] = docFreq[term]
		vocab.idf[i] = computeIDF(n, docFreq[term])
	}

	matrix := &Matrix{
		Rows: make([]SparseVector, n),
		Cols: len(terms),
	}
	for d, doc := range docs {
		matrix.Rows[d] = vocab.transform(doc)
	}
	return matrix, vocab, nil
}

// transform weights doc against the fitted vocabulary. Unknown terms are
// ignored.
func (v *Vocabulary) transform(doc []string) SparseVector {
	counts := make(map[int]int)
	for _, term := range doc {
		if idx, ok := v.index[term]; ok {
			counts[idx]++
		}
	}
	row := SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	if len(counts) == 0 {
		return row
	}
	for idx := range counts {
		row.Indices = append(row.Indices, idx)
	}
	sort.Ints(row.Indices)

	var norm float64
	for _, idx := range row.Indices {
		w := float64(counts[idx]) * v.idf[idx]
		row.Values = append(row.Values, w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range row.Values {
		row.Values[i] /= norm
	}
	return row
}

func computeIDF(totalDocs int, docFreq int) float64 {
	return math.Log(float64(1+totalDocs)/float64(1+docFreq)) + 1
}
