package pipeline

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/clusterer"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/labeler"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
)

const (
	DefaultK                  = 5
	DefaultExamplesPerCluster = 5
	DefaultTopWordsPerCluster = 10
)

// Params are the caller-tunable knobs of one run.
type Params struct {
	Strategy                     string  `json:"strategy"`
	K                            int     `json:"k"`
	MinDocumentFrequency         int     `json:"min_df"`
	MaxDocumentFrequencyFraction float64 `json:"max_df"`
	TopN                         int     `json:"top_n"`
	Seed                         uint64  `json:"seed"`
	NInit                        int     `json:"n_init,omitempty"`
	MaxIterations                int     `json:"max_iter,omitempty"`
}

// DefaultParams returns the parameters of the original dashboard: k-means
// with five clusters, min_df 5, max_df 0.9, ten keywords and seed 42.
func DefaultParams() Params {
	return Params{
		Strategy:                     string(clusterer.StrategyKMeans),
		K:                            DefaultK,
		MinDocumentFrequency:         vectorizer.DefaultMinDocumentFrequency,
		MaxDocumentFrequencyFraction: vectorizer.DefaultMaxDocumentFrequencyFraction,
		TopN:                         labeler.DefaultTopN,
		Seed:                         clusterer.DefaultSeed,
	}
}

// ParamsFromConfig converts the configured defaults into run parameters.
func ParamsFromConfig(cfg config.PipelineConfig) Params {
	return Params{
		Strategy:                     cfg.Strategy,
		K:                            cfg.K,
		MinDocumentFrequency:         cfg.MinDocumentFrequency,
		MaxDocumentFrequencyFraction: cfg.MaxDocumentFrequency,
		TopN:                         cfg.TopN,
		Seed:                         cfg.Seed,
		NInit:                        cfg.NInit,
		MaxIterations:                cfg.MaxIterations,
	}
}

// Validate checks every parameter and returns the canonical form, with the
// strategy alias resolved and a zero TopN or Seed replaced by its default.
func (p Params) Validate() (Params, error) {
	strategy, err := clusterer.ParseStrategy(p.Strategy)
	if err != nil {
		return p, err
	}
	p.Strategy = string(strategy)
	if err := clusterer.ValidateK(p.K); err != nil {
		return p, err
	}
	if err := p.vectorizerOptions(nil).Validate(); err != nil {
		return p, err
	}
	if p.TopN < 0 {
		return p, fmt.Errorf("%w: top_n must not be negative, got %d", apperrors.ErrInvalidInput, p.TopN)
	}
	if p.TopN == 0 {
		p.TopN = labeler.DefaultTopN
	}
	if p.Seed == 0 {
		p.Seed = clusterer.DefaultSeed
	}
	if p.NInit < 0 || p.MaxIterations < 0 {
		return p, fmt.Errorf("%w: n_init and max_iter must not be negative", apperrors.ErrInvalidInput)
	}
	return p, nil
}

func (p Params) vectorizerOptions(stopWords map[string]struct{}) vectorizer.Options {
	return vectorizer.Options{
		MinDocumentFrequency:         p.MinDocumentFrequency,
		MaxDocumentFrequencyFraction: p.MaxDocumentFrequencyFraction,
		StopWords:                    stopWords,
	}
}

func (p Params) clustererOptions() clusterer.Options {
	return clusterer.Options{
		Seed:          p.Seed,
		NInit:         p.NInit,
		MaxIterations: p.MaxIterations,
	}
}
