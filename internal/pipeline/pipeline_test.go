package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/clusterer"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
)

var scenario = []string{
	"great book loved it",
	"book was terrible hated it",
	"great story loved characters",
}

func reviewsOf(texts ...string) []Review {
	out := make([]Review, len(texts))
	for i, t := range texts {
		out[i] = Review{Text: t}
	}
	return out
}

func smallCorpusParams(k int) Params {
	p := DefaultParams()
	p.K = k
	p.MinDocumentFrequency = 1
	p.MaxDocumentFrequencyFraction = 1.0
	return p
}

func newPipeline(t *testing.T, params Params, opts ...Option) *Pipeline {
	t.Helper()
	res, err := language.Default()
	require.NoError(t, err)
	p, err := New(res, params, opts...)
	require.NoError(t, err)
	return p
}

type fakeRecorder struct {
	mu       sync.Mutex
	runs     map[string]int
	stages   map[string]int
	docs     int
	clusters []int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{runs: make(map[string]int), stages: make(map[string]int)}
}

func (f *fakeRecorder) ObserveRun(strategy, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[strategy+"/"+status]++
}

func (f *fakeRecorder) ObserveStage(stage string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages[stage]++
}

func (f *fakeRecorder) ObserveCorpus(documents, _ int, sizes []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs += documents
	f.clusters = sizes
}

func TestRunScenario(t *testing.T) {
	p := newPipeline(t, smallCorpusParams(2))
	res, err := p.Run(context.Background(), reviewsOf(scenario...))
	require.NoError(t, err)

	ids := res.ClusterIDs()
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[2])
	assert.NotEqual(t, ids[0], ids[1])

	negative := res.Clusters[ids[1]]
	require.NotEmpty(t, negative.Keywords)
	assert.Contains(t, []string{"terrible", "hate"}, negative.Keywords[0].Term)
	assert.Equal(t, 1, negative.Size)
	assert.Equal(t, []int{1}, negative.Members)

	positive := res.Clusters[ids[0]]
	assert.Equal(t, 2, positive.Size)
	assert.Equal(t, []string{"great book love", "great story love character"}, positive.Examples)
	require.NotEmpty(t, positive.TopWords)
	assert.Equal(t, WordCount{Word: "great", Count: 2}, positive.TopWords[0])
	assert.Equal(t, WordCount{Word: "love", Count: 2}, positive.TopWords[1])

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "kmeans", res.Params.Strategy)
	assert.Contains(t, res.TimingsMS, StageVectorize)
	assert.Contains(t, res.TimingsMS, "total")
	assert.Nil(t, res.Summaries)
}

func TestRunEmptyDocumentKeepsClusterID(t *testing.T) {
	p := newPipeline(t, smallCorpusParams(2))
	reviews := append(reviewsOf(scenario...), Review{Text: "NaN"}, Review{Text: ""})
	res, err := p.Run(context.Background(), reviews)
	require.NoError(t, err)

	require.Len(t, res.Documents, 5)
	for _, i := range []int{3, 4} {
		doc := res.Documents[i]
		assert.Empty(t, doc.Tokens)
		assert.NotNil(t, doc.Tokens)
		assert.Zero(t, doc.Features.NNZ())
		assert.GreaterOrEqual(t, doc.ClusterID, 0)
		assert.Less(t, doc.ClusterID, 2)
	}
}

func TestRunDeterministic(t *testing.T) {
	texts := []string{
		"the plot was gripping and the ending surprised me",
		"slow plot and a dull ending",
		"beautiful writing and vivid characters",
		"characters felt flat and the writing was clumsy",
		"shipping was fast and the cover arrived intact",
		"the cover arrived damaged after slow shipping",
		"gripping story with vivid writing",
		"dull characters and a predictable plot",
	}
	for _, strategy := range []string{"kmeans", "lda"} {
		params := smallCorpusParams(3)
		params.Strategy = strategy
		p := newPipeline(t, params)

		first, err := p.Run(context.Background(), reviewsOf(texts...))
		require.NoError(t, err)
		second, err := p.Run(context.Background(), reviewsOf(texts...))
		require.NoError(t, err)

		assert.Equal(t, first.ClusterIDs(), second.ClusterIDs(), strategy)
		for c := range first.Clusters {
			assert.Equal(t, first.Clusters[c].Keywords, second.Clusters[c].Keywords, strategy)
			assert.LessOrEqual(t, len(first.Clusters[c].Keywords), params.TopN)
		}
		assert.NotEqual(t, first.RunID, second.RunID)
	}
}

func TestNewRejectsInvalidClusterCount(t *testing.T) {
	res, err := language.Default()
	require.NoError(t, err)
	for _, k := range []int{1, 11} {
		_, err := New(res, smallCorpusParams(k))
		assert.True(t, errors.Is(err, apperrors.ErrInvalidClusterCount), "k=%d", k)
	}
}

func TestNewRequiresResource(t *testing.T) {
	_, err := New(nil, DefaultParams())
	assert.ErrorIs(t, err, apperrors.ErrResourceUnavailable)
}

func TestRunSingleCharacterDocumentsEmptyVocabulary(t *testing.T) {
	rec := newFakeRecorder()
	p := newPipeline(t, DefaultParams(), WithRecorder(rec))
	res, err := p.Run(context.Background(), reviewsOf("a", "b", "c"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrEmptyVocabulary)
	assert.Equal(t, 1, rec.runs["kmeans/empty_vocabulary"])
}

func TestRunInsufficientData(t *testing.T) {
	p := newPipeline(t, DefaultParams())
	for _, reviews := range [][]Review{nil, {}, reviewsOf("", "nan", "  ")} {
		res, err := p.Run(context.Background(), reviews)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
	}
}

func TestRunStopwordOnlyCorpusIsInsufficientData(t *testing.T) {
	rec := newFakeRecorder()
	p := newPipeline(t, smallCorpusParams(2), WithRecorder(rec))
	res, err := p.Run(context.Background(), reviewsOf("the and it", "was it", "is a the"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
	assert.Equal(t, 1, rec.runs["kmeans/insufficient_data"])

	_, err = p.Vocabulary(context.Background(), reviewsOf("the and it", "", "is a the"))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)

	// Single letters survive normalization but never enter the vocabulary.
	_, err = p.Run(context.Background(), reviewsOf("b", "c", "b c"))
	assert.ErrorIs(t, err, apperrors.ErrEmptyVocabulary)
}

func TestRunCancelledContext(t *testing.T) {
	p := newPipeline(t, smallCorpusParams(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, reviewsOf(scenario...))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSentimentSummaries(t *testing.T) {
	four, one := 4.0, 1.0
	nan := math.NaN()
	reviews := []Review{
		{Text: scenario[0], Sentiment: "positive", Score: &four},
		{Text: scenario[1], Sentiment: "negative", Score: &one},
		{Text: scenario[2], Sentiment: "positive", Score: &nan},
		{Text: "nan"},
	}
	p := newPipeline(t, smallCorpusParams(4))
	res, err := p.Run(context.Background(), reviews)
	require.NoError(t, err)

	require.Len(t, res.Summaries, 4)
	for i, s := range res.Summaries {
		total := 0
		for _, n := range s.Counts {
			total += n
		}
		assert.Equal(t, res.Clusters[i].Size, s.Documents)
		assert.Equal(t, s.Documents, total)
	}
	assert.Equal(t, []string{"negative", "positive", "unknown"}, res.Categories)
	assert.Nil(t, res.Documents[2].Score)
}

func TestRunMoreClustersThanDocuments(t *testing.T) {
	p := newPipeline(t, smallCorpusParams(5))
	res, err := p.Run(context.Background(), reviewsOf(scenario...))
	require.NoError(t, err)
	require.Len(t, res.Clusters, 5)

	empty := 0
	for _, c := range res.Clusters {
		if c.Size == 0 {
			empty++
			assert.Empty(t, c.Keywords)
			assert.Empty(t, c.Label)
			assert.Empty(t, c.Examples)
		}
	}
	assert.Equal(t, 2, empty)
}

func TestRunTopicStrategyAlias(t *testing.T) {
	params := smallCorpusParams(2)
	params.Strategy = "topic"
	rec := newFakeRecorder()
	p := newPipeline(t, params, WithRecorder(rec))
	assert.Equal(t, "lda", p.Params().Strategy)

	res, err := p.Run(context.Background(), reviewsOf(scenario...))
	require.NoError(t, err)
	for _, id := range res.ClusterIDs() {
		assert.GreaterOrEqual(t, id, 0)
		assert.Less(t, id, 2)
	}
	assert.Equal(t, 1, rec.runs["lda/ok"])
	assert.Equal(t, 3, rec.docs)
	for _, stage := range []string{StageNormalize, StageVectorize, StageCluster, StageLabel, StageProfile} {
		assert.Equal(t, 1, rec.stages[stage], stage)
	}
	assert.Zero(t, rec.stages[StageSummarize])
}

func TestSweep(t *testing.T) {
	p := newPipeline(t, smallCorpusParams(2))
	results, err := p.Sweep(context.Background(), reviewsOf(scenario...), []int{2, 3, 4})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, k := range []int{2, 3, 4} {
		assert.Equal(t, k, results[i].Params.K)
		assert.Len(t, results[i].Clusters, k)
	}
}

func TestSweepFailures(t *testing.T) {
	p := newPipeline(t, smallCorpusParams(2))
	_, err := p.Sweep(context.Background(), reviewsOf(scenario...), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = p.Sweep(context.Background(), reviewsOf(scenario...), []int{2, 11})
	assert.ErrorIs(t, err, apperrors.ErrInvalidClusterCount)

	_, err = p.Sweep(context.Background(), nil, []int{2, 3})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
}

func TestVocabulary(t *testing.T) {
	p := newPipeline(t, smallCorpusParams(2))
	vocab, err := p.Vocabulary(context.Background(), reviewsOf(scenario...))
	require.NoError(t, err)
	assert.Equal(t, []string{"book", "character", "great", "hate", "love", "story", "terrible"}, vocab.Terms())
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	p.TopN = 0
	p.Seed = 0
	p.Strategy = "centroid"
	got, err := p.Validate()
	require.NoError(t, err)
	assert.Equal(t, 10, got.TopN)
	assert.Equal(t, uint64(clusterer.DefaultSeed), got.Seed)
	assert.Equal(t, "kmeans", got.Strategy)

	bad := DefaultParams()
	bad.Strategy = "dbscan"
	_, err = bad.Validate()
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	bad = DefaultParams()
	bad.MaxDocumentFrequencyFraction = 1.5
	_, err = bad.Validate()
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	bad = DefaultParams()
	bad.TopN = -1
	_, err = bad.Validate()
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParamsFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	got, err := ParamsFromConfig(cfg.Pipeline).Validate()
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), got)
}
