package pipeline

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/labeler"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/sentiment"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/vectorizer"
)

// Review is one raw input record.
type Review struct {
	ID        string     `json:"id,omitempty"`
	Text      string     `json:"text"`
	Sentiment string     `json:"sentiment,omitempty"`
	Score     *float64   `json:"score,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (r Review) record() sentiment.Record {
	return sentiment.Record{Category: r.Sentiment, Score: finiteOrNil(r.Score)}
}

// Document is a review after it has passed through the pipeline.
type Document struct {
	ID        string                  `json:"id,omitempty"`
	Text      string                  `json:"text"`
	Tokens    []string                `json:"tokens"`
	ClusterID int                     `json:"cluster_id"`
	Sentiment string                  `json:"sentiment,omitempty"`
	Score     *float64                `json:"score,omitempty"`
	Timestamp *time.Time              `json:"timestamp,omitempty"`
	Features  vectorizer.SparseVector `json:"-"`
}

// NormalizedText is the document's tokens joined by single spaces.
func (d Document) NormalizedText() string {
	return strings.Join(d.Tokens, " ")
}

// WordCount is a token and how often it occurs in a cluster.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Cluster is one theme of a run. Members are document indices in corpus
// order.
type Cluster struct {
	ID         int               `json:"id"`
	Label      string            `json:"label"`
	Keywords   []labeler.Keyword `json:"keywords"`
	Size       int               `json:"size"`
	TopWords   []WordCount       `json:"top_words"`
	Examples   []string          `json:"examples"`
	Members    []int             `json:"members"`
	Importance []float64         `json:"-"`
}

// Result is the atomic output of a successful run.
type Result struct {
	RunID      string                     `json:"run_id"`
	Params     Params                     `json:"params"`
	Documents  []Document                 `json:"documents"`
	Vocabulary []string                   `json:"vocabulary"`
	Clusters   []Cluster                  `json:"clusters"`
	Summaries  []sentiment.ClusterSummary `json:"summaries,omitempty"`
	Categories []string                   `json:"categories,omitempty"`
	Inertia    float64                    `json:"inertia,omitempty"`
	Iterations int                        `json:"iterations"`
	TimingsMS  map[string]float64         `json:"timings_ms"`
	CreatedAt  time.Time                  `json:"created_at"`
}

// ClusterIDs returns the cluster id of every document in corpus order.
func (r *Result) ClusterIDs() []int {
	ids := make([]int, len(r.Documents))
	for i, d := range r.Documents {
		ids[i] = d.ClusterID
	}
	return ids
}

// Labels returns the display label of every cluster in id order.
func (r *Result) Labels() []string {
	labels := make([]string, len(r.Clusters))
	for i, c := range r.Clusters {
		labels[i] = c.Label
	}
	return labels
}

// Records returns the sentiment records of the documents in corpus order.
func (r *Result) Records() []sentiment.Record {
	records := make([]sentiment.Record, len(r.Documents))
	for i, d := range r.Documents {
		records[i] = sentiment.Record{Category: d.Sentiment, Score: d.Score}
	}
	return records
}

// topWords counts tokens over the given documents and returns the n most
// frequent, ties broken by word.
func topWords(docs []Document, members []int, n int) []WordCount {
	counts := make(map[string]int)
	for _, i := range members {
		for _, tok := range docs[i].Tokens {
			counts[tok]++
		}
	}
	out := make([]WordCount, 0, len(counts))
	for w, c := range counts {
		out = append(out, WordCount{Word: w, Count: c})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Word < out[b].Word
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func examples(docs []Document, members []int, n int) []string {
	out := make([]string, 0, n)
	for _, i := range members {
		if len(out) == n {
			break
		}
		out = append(out, docs[i].NormalizedText())
	}
	return out
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
