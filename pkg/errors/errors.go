// Package errors defines the named failures reported by the theme pipeline
// and the service layers around it, and maps them onto stable kind names
// and HTTP statuses.
package errors

import (
	"errors"
	"net/http"
)

var (
	ErrResourceUnavailable = errors.New("language resource unavailable")
	ErrEmptyVocabulary     = errors.New("empty vocabulary")
	ErrInvalidClusterCount = errors.New("invalid cluster count")
	ErrInsufficientData    = errors.New("insufficient data")

	ErrInvalidInput = errors.New("invalid input")
	ErrRunNotFound  = errors.New("run not found")
	ErrTimeout      = errors.New("operation timed out")
)

// KindInternal is reported for any error outside the table below.
const KindInternal = "internal"

type kind struct {
	sentinel error
	name     string
	status   int
}

// Checked in order; the first sentinel found in the chain wins.
var kinds = []kind{
	{ErrResourceUnavailable, "resource_unavailable", http.StatusServiceUnavailable},
	{ErrEmptyVocabulary, "empty_vocabulary", http.StatusUnprocessableEntity},
	{ErrInvalidClusterCount, "invalid_cluster_count", http.StatusBadRequest},
	{ErrInsufficientData, "insufficient_data", http.StatusUnprocessableEntity},
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{ErrRunNotFound, "not_found", http.StatusNotFound},
	{ErrTimeout, "timeout", http.StatusServiceUnavailable},
}

func lookup(err error) (kind, bool) {
	if err == nil {
		return kind{}, false
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k, true
		}
	}
	return kind{}, false
}

// Kind returns a stable machine-readable name for the failure wrapped in
// err, or KindInternal.
func Kind(err error) string {
	if k, ok := lookup(err); ok {
		return k.name
	}
	return KindInternal
}

// HTTPStatusCode maps err to a response status; unknown errors are 500.
func HTTPStatusCode(err error) int {
	if k, ok := lookup(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}
