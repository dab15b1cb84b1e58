// Package pipeline runs reviews through normalization, vectorization,
// clustering, labeling and sentiment aggregation, and returns the whole
// outcome atomically.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/clusterer"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/labeler"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/sentiment"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/vectorizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/tracing"
)

const (
	StageNormalize = "normalize"
	StageVectorize = "vectorize"
	StageCluster   = "cluster"
	StageLabel     = "label"
	StageProfile   = "profile"
	StageSummarize = "summarize"
)

// Recorder receives run and stage measurements. *metrics.Metrics
// implements it.
type Recorder interface {
	ObserveRun(strategy, status string, d time.Duration)
	ObserveStage(stage string, d time.Duration)
	ObserveCorpus(documents, vocabulary int, clusterSizes []int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, string, time.Duration) {}
func (nopRecorder) ObserveStage(string, time.Duration)       {}
func (nopRecorder) ObserveCorpus(int, int, []int)            {}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder reports run and stage metrics to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger replaces the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRegistry resolves strategies from r instead of the default registry.
func WithRegistry(r *clusterer.Registry) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.registry = r
		}
	}
}

// Pipeline holds validated parameters and the shared read-only language
// resource. It keeps no state between runs and is safe for concurrent use.
type Pipeline struct {
	resource   *language.Resource
	normalizer *normalizer.Normalizer
	stopWords  map[string]struct{}
	params     Params
	registry   *clusterer.Registry
	recorder   Recorder
	logger     *slog.Logger
}

// New validates params and returns a pipeline over res. A nil resource is
// ErrResourceUnavailable.
func New(res *language.Resource, params Params, opts ...Option) (*Pipeline, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: no language resource", apperrors.ErrResourceUnavailable)
	}
	validated, err := params.Validate()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		resource:   res,
		normalizer: normalizer.New(res),
		stopWords:  res.StopWordSet(),
		params:     validated,
		registry:   clusterer.DefaultRegistry(),
		recorder:   nopRecorder{},
		logger:     slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Params returns the validated parameters the pipeline runs with.
func (p *Pipeline) Params() Params { return p.params }

// WithParams returns a pipeline sharing p's resource, registry, recorder
// and logger but running with params.
func (p *Pipeline) WithParams(params Params) (*Pipeline, error) {
	validated, err := params.Validate()
	if err != nil {
		return nil, err
	}
	clone := *p
	clone.params = validated
	return &clone, nil
}

// Run clusters reviews. On failure no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, reviews []Review) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline run: %w", err)
	}
	runID := uuid.NewString()
	ctx = logger.WithFields(ctx, "run_id", runID)
	log := logger.Annotate(p.logger, ctx).With("strategy", p.params.Strategy, "k", p.params.K)
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "pipeline.run", runID)
	span.SetAttr("documents", len(reviews))
	result, err := p.run(ctx, reviews)
	span.Fail(err)
	span.End()
	span.Log(log)

	if err != nil {
		kind := apperrors.Kind(err)
		p.recorder.ObserveRun(p.params.Strategy, kind, time.Since(start))
		log.Warn("pipeline run failed", "error", err, "kind", kind)
		return nil, err
	}

	result.RunID = runID
	result.CreatedAt = start.UTC()
	result.TimingsMS = make(map[string]float64)
	for stage, d := range span.ChildDurations() {
		result.TimingsMS[stage] = millis(d)
	}
	result.TimingsMS["total"] = millis(span.Duration)

	sizes := make([]int, len(result.Clusters))
	for i, c := range result.Clusters {
		sizes[i] = c.Size
	}
	p.recorder.ObserveRun(p.params.Strategy, "ok", span.Duration)
	p.recorder.ObserveCorpus(len(result.Documents), len(result.Vocabulary), sizes)
	log.Info("pipeline run completed",
		"documents", len(result.Documents),
		"vocabulary", len(result.Vocabulary),
		"duration_ms", span.Duration.Milliseconds(),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, reviews []Review) (*Result, error) {
	if !hasText(reviews) {
		return nil, fmt.Errorf("%w: %d reviews, none with text", apperrors.ErrInsufficientData, len(reviews))
	}

	docs := make([]Document, len(reviews))
	err := p.stage(ctx, StageNormalize, func(span *tracing.Span) error {
		empty := 0
		for i, r := range reviews {
			tokens := p.normalizer.Normalize(r.Text)
			if len(tokens) == 0 {
				empty++
			}
			docs[i] = Document{
				ID:        r.ID,
				Text:      r.Text,
				Tokens:    tokens,
				Sentiment: r.Sentiment,
				Score:     finiteOrNil(r.Score),
				Timestamp: r.Timestamp,
			}
		}
		span.SetAttr("empty_documents", empty)
		if empty == len(docs) {
			return fmt.Errorf("%w: all %d reviews normalize to no tokens", apperrors.ErrInsufficientData, len(docs))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		matrix *vectorizer.Matrix
		vocab  *vectorizer.Vocabulary
	)
	err = p.stage(ctx, StageVectorize, func(span *tracing.Span) error {
		corpus := make([][]string, len(docs))
		for i := range docs {
			corpus[i] = docs[i].Tokens
		}
		var err error
		matrix, vocab, err = vectorizer.FitTransform(corpus, p.params.vectorizerOptions(p.stopWords))
		if err != nil {
			return fmt.Errorf("vectorizing corpus: %w", err)
		}
		span.SetAttr("vocabulary", vocab.Len())
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Features = matrix.Rows[i]
	}

	var assignment *clusterer.Assignment
	err = p.stage(ctx, StageCluster, func(span *tracing.Span) error {
		c, err := p.registry.Build(p.params.Strategy, p.params.clustererOptions())
		if err != nil {
			return err
		}
		assignment, err = c.Assign(matrix, p.params.K)
		if err != nil {
			return fmt.Errorf("clustering with %s: %w", c.Name(), err)
		}
		span.SetAttr("iterations", assignment.Iterations)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].ClusterID = assignment.Labels[i]
	}

	var labels []labeler.ClusterLabel
	p.measure(ctx, StageLabel, func(*tracing.Span) {
		labels = labeler.LabelAll(assignment.Importance, vocab, p.params.TopN)
	})

	clusters := make([]Cluster, p.params.K)
	p.measure(ctx, StageProfile, func(*tracing.Span) {
		for c := range clusters {
			clusters[c] = Cluster{
				ID:         c,
				Label:      labels[c].Display,
				Keywords:   labels[c].Keywords,
				Members:    make([]int, 0),
				Importance: assignment.Importance[c],
			}
		}
		for i, d := range docs {
			clusters[d.ClusterID].Members = append(clusters[d.ClusterID].Members, i)
		}
		for c := range clusters {
			clusters[c].Size = len(clusters[c].Members)
			clusters[c].TopWords = topWords(docs, clusters[c].Members, DefaultTopWordsPerCluster)
			clusters[c].Examples = examples(docs, clusters[c].Members, DefaultExamplesPerCluster)
		}
	})

	result := &Result{
		Params:     p.params,
		Documents:  docs,
		Vocabulary: vocab.Terms(),
		Clusters:   clusters,
		Inertia:    assignment.Inertia,
		Iterations: assignment.Iterations,
	}

	records := make([]sentiment.Record, len(reviews))
	for i, r := range reviews {
		records[i] = r.record()
	}
	if sentiment.HasCategories(records) {
		p.measure(ctx, StageSummarize, func(*tracing.Span) {
			result.Summaries = sentiment.Summarize(assignment.Labels, p.params.K, records)
			result.Categories = sentiment.Categories(records)
		})
	}
	return result, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(span *tracing.Span) error) error {
	span, err := tracing.Run(ctx, name, func(_ context.Context, span *tracing.Span) error {
		return fn(span)
	})
	p.recorder.ObserveStage(name, span.Duration)
	return err
}

// measure times a stage that cannot fail.
func (p *Pipeline) measure(ctx context.Context, name string, fn func(span *tracing.Span)) {
	_ = p.stage(ctx, name, func(span *tracing.Span) error {
		fn(span)
		return nil
	})
}

// Vocabulary normalizes and vectorizes reviews and returns the filtered
// vocabulary without clustering.
func (p *Pipeline) Vocabulary(ctx context.Context, reviews []Review) (*vectorizer.Vocabulary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !hasText(reviews) {
		return nil, fmt.Errorf("%w: %d reviews, none with text", apperrors.ErrInsufficientData, len(reviews))
	}
	corpus := make([][]string, len(reviews))
	empty := 0
	for i, r := range reviews {
		corpus[i] = p.normalizer.Normalize(r.Text)
		if len(corpus[i]) == 0 {
			empty++
		}
	}
	if empty == len(corpus) {
		return nil, fmt.Errorf("%w: all %d reviews normalize to no tokens", apperrors.ErrInsufficientData, len(corpus))
	}
	_, vocab, err := vectorizer.FitTransform(corpus, p.params.vectorizerOptions(p.stopWords))
	if err != nil {
		return nil, fmt.Errorf("vectorizing corpus: %w", err)
	}
	return vocab, nil
}

// Sweep runs the pipeline once per k concurrently and returns the results
// in ks order. Any failing run fails the sweep.
func (p *Pipeline) Sweep(ctx context.Context, reviews []Review, ks []int) ([]*Result, error) {
	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: sweep needs at least one k", apperrors.ErrInvalidInput)
	}
	runs := make([]*Pipeline, len(ks))
	for i, k := range ks {
		params := p.params
		params.K = k
		run, err := p.WithParams(params)
		if err != nil {
			return nil, err
		}
		runs[i] = run
	}

	results := make([]*Result, len(ks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, run := range runs {
		g.Go(func() error {
			res, err := run.Run(gctx, reviews)
			if err != nil {
				return fmt.Errorf("sweep k=%d: %w", ks[i], err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func hasText(reviews []Review) bool {
	for _, r := range reviews {
		if !normalizer.IsMissing(r.Text) {
			return true
		}
	}
	return false
}
