package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndStatus(t *testing.T) {
	tests := []struct {
		err    error
		kind   string
		status int
	}{
		{fmt.Errorf("loading stopwords: %w", ErrResourceUnavailable), "resource_unavailable", http.StatusServiceUnavailable},
		{fmt.Errorf("min_df 5: %w", ErrEmptyVocabulary), "empty_vocabulary", http.StatusUnprocessableEntity},
		{fmt.Errorf("k=11: %w", ErrInvalidClusterCount), "invalid_cluster_count", http.StatusBadRequest},
		{ErrInsufficientData, "insufficient_data", http.StatusUnprocessableEntity},
		{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
		{fmt.Errorf("%w: 42", ErrRunNotFound), "not_found", http.StatusNotFound},
		{fmt.Errorf("run: %w", ErrTimeout), "timeout", http.StatusServiceUnavailable},
		{context.Canceled, KindInternal, http.StatusInternalServerError},
		{errors.New("disk full"), KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Kind(tt.err), tt.err.Error())
		assert.Equal(t, tt.status, HTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestKindPrefersFirstMatch(t *testing.T) {
	err := errors.Join(ErrTimeout, ErrEmptyVocabulary)
	assert.Equal(t, "empty_vocabulary", Kind(err))
}
