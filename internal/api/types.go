// Package api serves the theme pipeline over HTTP: synchronous runs and
// sweeps, stored run lookup, vocabulary inspection and cache control.
package api

import (
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
)

// RunRequest is the body of POST /api/v1/runs. Params fields that are
// omitted keep the service defaults.
type RunRequest struct {
	Reviews []pipeline.Review `json:"reviews"`
	Params  json.RawMessage   `json:"params,omitempty"`
}

// SweepRequest is the body of POST /api/v1/sweeps.
type SweepRequest struct {
	Reviews []pipeline.Review `json:"reviews"`
	Params  json.RawMessage   `json:"params,omitempty"`
	Ks      []int             `json:"ks"`
}

// RunResponse is a run result plus how it was served.
type RunResponse struct {
	*pipeline.Result
	Cached    bool `json:"cached"`
	Persisted bool `json:"persisted"`
}

// SweepPoint is one row of the sweep overview, used to pick k.
type SweepPoint struct {
	K       int      `json:"k"`
	RunID   string   `json:"run_id"`
	Inertia float64  `json:"inertia,omitempty"`
	Sizes   []int    `json:"sizes"`
	Labels  []string `json:"labels"`
}

// SweepResponse carries one overview row and one full result per k, in
// request order.
type SweepResponse struct {
	Overview []SweepPoint       `json:"overview"`
	Results  []*pipeline.Result `json:"results"`
}

// VocabularyTerm describes one retained term.
type VocabularyTerm struct {
	Term    string  `json:"term"`
	DocFreq int     `json:"doc_freq"`
	IDF     float64 `json:"idf"`
}

// VocabularyResponse is the filtered vocabulary in column order.
type VocabularyResponse struct {
	Size  int              `json:"size"`
	Terms []VocabularyTerm `json:"terms"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}
