// Package sentiment joins cluster assignments with the per-review
// sentiment signal supplied by the caller and produces per-cluster
// category tallies and mean scores.
package sentiment

import (
	"math"
	"sort"
	"strings"
)

// UnknownCategory tallies documents that carry no sentiment category, so
// per-cluster counts always add up to the cluster size.
const UnknownCategory = "unknown"

// Record is the externally supplied sentiment of one document.
type Record struct {
	Category string   `json:"sentiment,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

func (r Record) category() string {
	c := strings.TrimSpace(r.Category)
	if c == "" {
		return UnknownCategory
	}
	return c
}

func (r Record) score() (float64, bool) {
	if r.Score == nil || math.IsNaN(*r.Score) || math.IsInf(*r.Score, 0) {
		return 0, false
	}
	return *r.Score, true
}

// ClusterSummary is the sentiment breakdown of one cluster. MeanScore is
// nil when no member has a score.
type ClusterSummary struct {
	ClusterID       int            `json:"cluster_id"`
	Documents       int            `json:"documents"`
	Counts          map[string]int `json:"counts"`
	ScoredDocuments int            `json:"scored_documents"`
	MeanScore       *float64       `json:"mean_score"`
}

// HasCategories reports whether any record carries a sentiment category.
func HasCategories(records []Record) bool {
	for _, r := range records {
		if strings.TrimSpace(r.Category) != "" {
			return true
		}
	}
	return false
}

// Summarize groups documents by cluster id. Every cluster 0..k-1 appears in
// the output, in id order, even when it has no documents. Documents
// without a score count towards their category but not the mean.
func Summarize(clusterIDs []int, k int, records []Record) []ClusterSummary {
	summaries := make([]ClusterSummary, k)
	sums := make([]float64, k)
	for c := range summaries {
		summaries[c] = ClusterSummary{ClusterID: c, Counts: make(map[string]int)}
	}
	for i, c := range clusterIDs {
		if c < 0 || c >= k {
			continue
		}
		var rec Record
		if i < len(records) {
			rec = records[i]
		}
		s := &summaries[c]
		s.Documents++
		s.Counts[rec.category()]++
		if v, ok := rec.score(); ok {
			s.ScoredDocuments++
			sums[c] += v
		}
	}
	for c := range summaries {
		if summaries[c].ScoredDocuments > 0 {
			mean := sums[c] / float64(summaries[c].ScoredDocuments)
			summaries[c].MeanScore = &mean
		}
	}
	return summaries
}

// Categories returns the distinct categories across records, sorted.
// UnknownCategory is included when some record has no category.
func Categories(records []Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.category()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CrossTab lays summaries out as a cluster-by-category count table in the
// given category order.
func CrossTab(summaries []ClusterSummary, categories []string) [][]int {
	table := make([][]int, len(summaries))
	for i, s := range summaries {
		table[i] = make([]int, len(categories))
		for j, c := range categories {
			table[i][j] = s.Counts[c]
		}
	}
	return table
}

// Filter returns the indices of records whose category equals category,
// in corpus order.
func Filter(records []Record, category string) []int {
	want := strings.TrimSpace(category)
	if want == "" {
		want = UnknownCategory
	}
	out := make([]int, 0)
	for i, r := range records {
		if r.category() == want {
			out = append(out, i)
		}
	}
	return out
}
