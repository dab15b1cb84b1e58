package clusterer

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/vectorizer"
)

const (
	defaultKMeansInit       = 10
	defaultKMeansIterations = 300
	defaultKMeansTolerance  = 1e-8
)

// KMeans partitions documents by minimizing within-cluster squared
// Euclidean distance. Seeding uses k-means++ from a fixed-seed generator
// and the best of NInit restarts is kept.
type KMeans struct {
	seed    uint64
	nInit   int
	maxIter int
	tol     float64
}

// NewKMeans builds the centroid strategy. Seed is used as given.
func NewKMeans(opts Options) *KMeans {
	km := &KMeans{
		seed:    opts.Seed,
		nInit:   opts.NInit,
		maxIter: opts.MaxIterations,
		tol:     opts.Tolerance,
	}
	if km.nInit <= 0 {
		km.nInit = defaultKMeansInit
	}
	if km.maxIter <= 0 {
		km.maxIter = defaultKMeansIterations
	}
	if km.tol <= 0 {
		km.tol = defaultKMeansTolerance
	}
	return km
}

// Name returns StrategyKMeans.
func (km *KMeans) Name() Strategy { return StrategyKMeans }

// Assign partitions the rows of m into k clusters. Importance holds the
// centroids; an empty cluster keeps a zero centroid.
func (km *KMeans) Assign(m *vectorizer.Matrix, k int) (*Assignment, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	if err := validateMatrix(m); err != nil {
		return nil, err
	}

	rows := m.Rows
	sqNorms := make([]float64, len(rows))
	for i, row := range rows {
		sqNorms[i] = floats.Dot(row.Values, row.Values)
	}

	rng := newRand(km.seed)
	var best *Assignment
	for run := 0; run < km.nInit; run++ {
		centers := km.seedCenters(rows, sqNorms, m.Cols, k, rng)
		labels, inertia, iters := km.lloyd(rows, sqNorms, centers)
		if best == nil || inertia < best.Inertia {
			best = &Assignment{Labels: labels, Inertia: inertia, Iterations: iters}
		}
	}
	best.Importance = memberMeans(rows, best.Labels, m.Cols, k)
	return best, nil
}

// seedCenters picks k initial centers with k-means++. Once every document
// coincides with a chosen center the remaining centers duplicate the first
// one; ties then resolve to the lower id so the duplicates stay empty.
func (km *KMeans) seedCenters(rows []vectorizer.SparseVector, sqNorms []float64, width, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	first := rng.IntN(len(rows))
	centers = append(centers, rows[first].Dense(width))

	dist := make([]float64, len(rows))
	for i, row := range rows {
		dist[i] = sqDistance(row, sqNorms[i], centers[0], floats.Dot(centers[0], centers[0]))
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		if total <= 0 {
			centers = append(centers, slices.Clone(centers[0]))
			continue
		}
		target := rng.Float64() * total
		pick := -1
		var cum float64
		for i, d := range dist {
			if d <= 0 {
				continue
			}
			pick = i
			cum += d
			if cum > target {
				break
			}
		}
		center := rows[pick].Dense(width)
		centers = append(centers, center)
		cNorm := floats.Dot(center, center)
		for i, row := range rows {
			if d := sqDistance(row, sqNorms[i], center, cNorm); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

func (km *KMeans) lloyd(rows []vectorizer.SparseVector, sqNorms []float64, centers [][]float64) ([]int, float64, int) {
	labels, inertia := assignNearest(rows, sqNorms, centers)
	iters := 0
	for iters < km.maxIter {
		iters++
		shift := updateCenters(rows, labels, centers)
		next, nextInertia := assignNearest(rows, sqNorms, centers)
		changed := !slices.Equal(labels, next)
		labels, inertia = next, nextInertia
		if !changed || shift <= km.tol {
			break
		}
	}
	return labels, inertia, iters
}

func assignNearest(rows []vectorizer.SparseVector, sqNorms []float64, centers [][]float64) ([]int, float64) {
	cNorms := make([]float64, len(centers))
	for c, center := range centers {
		cNorms[c] = floats.Dot(center, center)
	}
	labels := make([]int, len(rows))
	var inertia float64
	for i, row := range rows {
		bestC, bestD := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDistance(row, sqNorms[i], center, cNorms[c]); d < bestD {
				bestC, bestD = c, d
			}
		}
		labels[i] = bestC
		inertia += bestD
	}
	return labels, inertia
}

// updateCenters moves each non-empty center to the mean of its members and
// returns the total squared shift. Empty centers keep their position.
func updateCenters(rows []vectorizer.SparseVector, labels []int, centers [][]float64) float64 {
	width := len(centers[0])
	means := memberMeans(rows, labels, width, len(centers))
	counts := make([]int, len(centers))
	for _, l := range labels {
		counts[l]++
	}
	var shift float64
	for c := range centers {
		if counts[c] == 0 {
			continue
		}
		d := floats.Distance(centers[c], means[c], 2)
		shift += d * d
		copy(centers[c], means[c])
	}
	return shift
}

// memberMeans averages the rows of each cluster; clusters without members
// get a zero vector.
func memberMeans(rows []vectorizer.SparseVector, labels []int, width, k int) [][]float64 {
	means := make([][]float64, k)
	for c := range means {
		means[c] = make([]float64, width)
	}
	counts := make([]int, k)
	for i, row := range rows {
		c := labels[i]
		counts[c]++
		for j, idx := range row.Indices {
			means[c][idx] += row.Values[j]
		}
	}
	for c := range means {
		if counts[c] > 0 {
			floats.Scale(1/float64(counts[c]), means[c])
		}
	}
	return means
}

func sqDistance(row vectorizer.SparseVector, rowSqNorm float64, center []float64, centerSqNorm float64) float64 {
	var dot float64
	for j, idx := range row.Indices {
		dot += row.Values[j] * center[idx]
	}
	d := rowSqNorm - 2*dot + centerSqNorm
	if d < 0 {
		return 0
	}
	return d
}
