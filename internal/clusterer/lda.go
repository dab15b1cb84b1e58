package clusterer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/vectorizer"
)

const (
	defaultLDAIterations = 10
	ldaMaxDocUpdateIter  = 100
	ldaMeanChangeTol     = 1e-3
	ldaInitShape         = 100.0
	ldaInitRate          = 100.0
	ldaNormalizerEpsilon = 1e-100
)

// LDA fits a latent Dirichlet allocation model with batch variational
// Bayes and assigns each document to its dominant topic.
type LDA struct {
	seed    uint64
	maxIter int
}

// NewLDA builds the topic strategy. Seed is used as given.
func NewLDA(opts Options) *LDA {
	l := &LDA{seed: opts.Seed, maxIter: opts.MaxIterations}
	if l.maxIter <= 0 {
		l.maxIter = defaultLDAIterations
	}
	return l
}

// Name returns StrategyLDA.
func (l *LDA) Name() Strategy { return StrategyLDA }

// Assign fits k topics over m and labels each row with its dominant topic,
// the lowest topic id winning ties. Importance is the topic-word matrix.
func (l *LDA) Assign(m *vectorizer.Matrix, k int) (*Assignment, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	if err := validateMatrix(m); err != nil {
		return nil, err
	}

	prior := 1 / float64(k)
	gamma := distuv.Gamma{Alpha: ldaInitShape, Beta: ldaInitRate, Src: rand64(l.seed)}
	lambda := make([][]float64, k)
	for t := range lambda {
		lambda[t] = make([]float64, m.Cols)
		for w := range lambda[t] {
			lambda[t][w] = gamma.Rand()
		}
	}

	for iter := 0; iter < l.maxIter; iter++ {
		expElogBeta := dirichletExpectation(lambda)
		sstats := make([][]float64, k)
		for t := range sstats {
			sstats[t] = make([]float64, m.Cols)
		}
		for _, row := range m.Rows {
			inferDocument(row, expElogBeta, prior, sstats)
		}
		for t := range lambda {
			for w := range lambda[t] {
				lambda[t][w] = prior + sstats[t][w]*expElogBeta[t][w]
			}
		}
	}

	labels := make([]int, m.NumRows())
	for i, theta := range documentTopics(m, lambda) {
		labels[i] = argmax(theta)
	}
	return &Assignment{
		Labels:     labels,
		Importance: lambda,
		Iterations: l.maxIter,
	}, nil
}

// documentTopics returns the normalized document-topic distribution of
// every row under a fitted topic-word matrix.
func documentTopics(m *vectorizer.Matrix, lambda [][]float64) [][]float64 {
	prior := 1 / float64(len(lambda))
	expElogBeta := dirichletExpectation(lambda)
	out := make([][]float64, m.NumRows())
	for i, row := range m.Rows {
		out[i] = inferDocument(row, expElogBeta, prior, nil)
	}
	return out
}

// inferDocument runs the per-document E-step and returns the normalized
// topic distribution. When sstats is non-nil the document's sufficient
// statistics are accumulated into it.
func inferDocument(row vectorizer.SparseVector, expElogBeta [][]float64, prior float64, sstats [][]float64) []float64 {
	k := len(expElogBeta)
	gammaD := make([]float64, k)
	if row.NNZ() == 0 {
		for t := range gammaD {
			gammaD[t] = prior
		}
		return normalized(gammaD)
	}
	for t := range gammaD {
		gammaD[t] = 1
	}
	expElogTheta := dirichletExpectationRow(gammaD)
	normPhi := make([]float64, row.NNZ())
	updateNormPhi(row, expElogTheta, expElogBeta, normPhi)

	last := make([]float64, k)
	for it := 0; it < ldaMaxDocUpdateIter; it++ {
		copy(last, gammaD)
		for t := 0; t < k; t++ {
			var acc float64
			for j, idx := range row.Indices {
				acc += row.Values[j] / normPhi[j] * expElogBeta[t][idx]
			}
			gammaD[t] = prior + expElogTheta[t]*acc
		}
		expElogTheta = dirichletExpectationRow(gammaD)
		updateNormPhi(row, expElogTheta, expElogBeta, normPhi)
		if meanAbsChange(last, gammaD) < ldaMeanChangeTol {
			break
		}
	}

	if sstats != nil {
		for t := 0; t < k; t++ {
			for j, idx := range row.Indices {
				sstats[t][idx] += expElogTheta[t] * row.Values[j] / normPhi[j]
			}
		}
	}
	return normalized(gammaD)
}

func updateNormPhi(row vectorizer.SparseVector, expElogTheta []float64, expElogBeta [][]float64, normPhi []float64) {
	for j, idx := range row.Indices {
		var s float64
		for t := range expElogTheta {
			s += expElogTheta[t] * expElogBeta[t][idx]
		}
		normPhi[j] = s + ldaNormalizerEpsilon
	}
}

func dirichletExpectation(params [][]float64) [][]float64 {
	out := make([][]float64, len(params))
	for t, row := range params {
		out[t] = dirichletExpectationRow(row)
	}
	return out
}

// dirichletExpectationRow returns exp(E[log x]) for x ~ Dir(row).
func dirichletExpectationRow(row []float64) []float64 {
	out := make([]float64, len(row))
	psiTotal := mathext.Digamma(floats.Sum(row))
	for i, v := range row {
		out[i] = math.Exp(mathext.Digamma(v) - psiTotal)
	}
	return out
}

func normalized(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	if sum := floats.Sum(out); sum > 0 {
		floats.Scale(1/sum, out)
	}
	return out
}

func meanAbsChange(a, b []float64) float64 {
	var total float64
	for i := range a {
		total += math.Abs(a[i] - b[i])
	}
	return total / float64(len(a))
}
