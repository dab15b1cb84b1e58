// Package clusterer assigns every row of a TF-IDF matrix to one of k
// clusters. Two strategies satisfy the same contract: centroid-based
// k-means and a latent Dirichlet allocation topic model hardened by taking
// each document's dominant topic.
package clusterer

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/vectorizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
)

const (
	MinClusters = 2
	MaxClusters = 10

	DefaultSeed = 42
)

// Strategy names a clustering algorithm.
type Strategy string

const (
	StrategyKMeans Strategy = "kmeans"
	StrategyLDA    Strategy = "lda"
)

// Assignment is the outcome of one clustering pass. Importance has one
// vocabulary-width row per cluster.
type Assignment struct {
	Labels     []int       `json:"labels"`
	Importance [][]float64 `json:"-"`
	Inertia    float64     `json:"inertia,omitempty"`
	Iterations int         `json:"iterations"`
}

// Sizes returns the number of documents per cluster.
func (a *Assignment) Sizes() []int {
	sizes := make([]int, len(a.Importance))
	for _, l := range a.Labels {
		sizes[l]++
	}
	return sizes
}

// Clusterer is implemented by every strategy.
type Clusterer interface {
	Name() Strategy
	Assign(m *vectorizer.Matrix, k int) (*Assignment, error)
}

// Options tunes the strategies. Seed is always used as given; zero values
// of the other fields select the defaults of the chosen strategy.
type Options struct {
	Seed          uint64
	NInit         int
	MaxIterations int
	Tolerance     float64
}

// ValidateK reports ErrInvalidClusterCount when k is outside [2, 10].
func ValidateK(k int) error {
	if k < MinClusters || k > MaxClusters {
		return fmt.Errorf("%w: k must be between %d and %d, got %d",
			apperrors.ErrInvalidClusterCount, MinClusters, MaxClusters, k)
	}
	return nil
}

// ParseStrategy resolves a strategy name or alias.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "kmeans", "k-means", "centroid":
		return StrategyKMeans, nil
	case "lda", "topic":
		return StrategyLDA, nil
	default:
		return "", fmt.Errorf("%w: unknown clustering strategy %q", apperrors.ErrInvalidInput, name)
	}
}

// BuilderFunc creates a Clusterer from options.
type BuilderFunc func(opts Options) Clusterer

// Registry maps strategy names to their builders.
type Registry struct {
	builders map[Strategy]BuilderFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[Strategy]BuilderFunc)}
}

// DefaultRegistry returns a registry with both built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(StrategyKMeans, func(opts Options) Clusterer { return NewKMeans(opts) })
	r.Register(StrategyLDA, func(opts Options) Clusterer { return NewLDA(opts) })
	return r
}

// Register adds or replaces the builder for name.
func (r *Registry) Register(name Strategy, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates the named strategy. Aliases accepted by ParseStrategy
// resolve to their canonical names.
func (r *Registry) Build(name string, opts Options) (Clusterer, error) {
	strategy := Strategy(name)
	if _, ok := r.builders[strategy]; !ok {
		parsed, err := ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		strategy = parsed
	}
	builder, ok := r.builders[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: strategy %q is not registered (have %s)",
			apperrors.ErrInvalidInput, name, strings.Join(r.Names(), ", "))
	}
	return builder(opts), nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// New builds a strategy from the default registry.
func New(name string, opts Options) (Clusterer, error) {
	return DefaultRegistry().Build(name, opts)
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand64(seed))
}

func rand64(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// argmax returns the index of the largest value; the lowest index wins
// ties.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func validateMatrix(m *vectorizer.Matrix) error {
	if m == nil || m.NumRows() == 0 {
		return fmt.Errorf("%w: feature matrix has no rows", apperrors.ErrInsufficientData)
	}
	if m.Cols == 0 {
		return fmt.Errorf("%w: feature matrix has no columns", apperrors.ErrEmptyVocabulary)
	}
	return nil
}
