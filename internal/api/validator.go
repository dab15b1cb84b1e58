package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/clusterer"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
)

const (
	maxReviews    = 200000
	maxTextLength = 65536
	maxIDLength   = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateReviews checks the request shape. Blank or missing texts are
// allowed here; the pipeline keeps them as empty documents.
func ValidateReviews(reviews []pipeline.Review) error {
	errs := make(map[string]string)
	switch {
	case len(reviews) == 0:
		errs["reviews"] = "at least one review is required"
	case len(reviews) > maxReviews:
		errs["reviews"] = fmt.Sprintf("at most %d reviews per request", maxReviews)
	}
	for i, r := range reviews {
		if len(r.Text) > maxTextLength {
			errs[fmt.Sprintf("reviews[%d].text", i)] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
		}
		if len(r.ID) > maxIDLength {
			errs[fmt.Sprintf("reviews[%d].id", i)] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
		}
		if len(errs) >= 10 {
			break
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateKs checks a sweep's cluster counts.
func ValidateKs(ks []int, maxSweepSize int) error {
	errs := make(map[string]string)
	seen := make(map[int]bool, len(ks))
	switch {
	case len(ks) == 0:
		errs["ks"] = "at least one k is required"
	case maxSweepSize > 0 && len(ks) > maxSweepSize:
		errs["ks"] = fmt.Sprintf("at most %d values of k per sweep", maxSweepSize)
	}
	for i, k := range ks {
		if k < clusterer.MinClusters || k > clusterer.MaxClusters {
			errs[fmt.Sprintf("ks[%d]", i)] = fmt.Sprintf("k must be between %d and %d", clusterer.MinClusters, clusterer.MaxClusters)
		} else if seen[k] {
			errs[fmt.Sprintf("ks[%d]", i)] = fmt.Sprintf("duplicate k %d", k)
		}
		seen[k] = true
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
