package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/runcache"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

// RunStore persists results. *store.RunStore implements it.
type RunStore interface {
	Save(ctx context.Context, result *pipeline.Result) error
	Get(ctx context.Context, id string) (*pipeline.Result, error)
	List(ctx context.Context, limit int, label string) ([]store.RunSummary, error)
}

// CompletionPublisher announces finished runs. *events.Publisher
// implements it.
type CompletionPublisher interface {
	PublishCompleted(ctx context.Context, result *pipeline.Result, batchID string, cached bool) error
}

// Options wires the optional collaborators. Nil collaborators disable the
// matching feature.
type Options struct {
	Cache        *runcache.Cache
	Store        RunStore
	Events       CompletionPublisher
	RunTimeout   time.Duration
	MaxBodyBytes int64
	MaxSweepSize int
	StoreRetry   resilience.RetryConfig
}

// Handler serves the theme API.
type Handler struct {
	pipeline *pipeline.Pipeline
	opts     Options
	logger   *slog.Logger
}

// New returns a Handler running p. Nil collaborators in opts disable the
// matching feature.
func New(p *pipeline.Pipeline, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	return &Handler{
		pipeline: p,
		opts:     opts,
		logger:   slog.Default().With("component", "themes-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/runs", h.CreateRun)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)
	mux.HandleFunc("POST /api/v1/sweeps", h.CreateSweep)
	mux.HandleFunc("POST /api/v1/vocabulary", h.Vocabulary)
	mux.HandleFunc("GET /api/v1/cache", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

// CreateRun handles POST /api/v1/runs.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req RunRequest
	if !h.decode(w, r, &req) {
		return
	}
	run, ok := h.prepare(w, req.Reviews, req.Params)
	if !ok {
		return
	}

	compute := func() (*pipeline.Result, error) {
		return resilience.Timed(ctx, h.opts.RunTimeout, "pipeline run", func(ctx context.Context) (*pipeline.Result, error) {
			return run.Run(ctx, req.Reviews)
		})
	}

	var (
		result *pipeline.Result
		cached bool
		err    error
	)
	if h.opts.Cache != nil {
		result, cached, err = h.opts.Cache.GetOrCompute(ctx, runcache.Key(req.Reviews, run.Params()), compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Warn("run failed", "error", err, "kind", apperrors.Kind(err))
		h.writeFailure(w, err)
		return
	}

	persisted := h.persist(ctx, result)
	h.announce(ctx, result, cached)
	log.Info("run served",
		"run_id", result.RunID,
		"strategy", result.Params.Strategy,
		"k", result.Params.K,
		"documents", len(result.Documents),
		"cached", cached,
	)
	h.writeJSON(w, http.StatusOK, RunResponse{Result: result, Cached: cached, Persisted: persisted})
}

// CreateSweep handles POST /api/v1/sweeps.
func (h *Handler) CreateSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req SweepRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := ValidateKs(req.Ks, h.opts.MaxSweepSize); err != nil {
		h.writeValidation(w, err)
		return
	}
	run, ok := h.prepare(w, req.Reviews, req.Params)
	if !ok {
		return
	}

	results, err := resilience.Timed(ctx, h.opts.RunTimeout, "pipeline sweep", func(ctx context.Context) ([]*pipeline.Result, error) {
		return run.Sweep(ctx, req.Reviews, req.Ks)
	})
	if err != nil {
		log.Warn("sweep failed", "error", err, "kind", apperrors.Kind(err))
		h.writeFailure(w, err)
		return
	}

	resp := SweepResponse{Overview: make([]SweepPoint, len(results)), Results: results}
	for i, res := range results {
		h.persist(ctx, res)
		sizes := make([]int, len(res.Clusters))
		for c, cl := range res.Clusters {
			sizes[c] = cl.Size
		}
		resp.Overview[i] = SweepPoint{
			K:       res.Params.K,
			RunID:   res.RunID,
			Inertia: res.Inertia,
			Sizes:   sizes,
			Labels:  res.Labels(),
		}
	}
	log.Info("sweep served", "ks", req.Ks, "documents", len(req.Reviews))
	h.writeJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.opts.Store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "run storage is disabled")
		return
	}
	id := r.PathValue("id")
	result, err := h.opts.Store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, apperrors.ErrRunNotFound) {
			logger.FromContext(r.Context()).Error("loading run failed", "run_id", id, "error", err)
		}
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RunResponse{Result: result, Persisted: true})
}

// ListRuns handles GET /api/v1/runs with optional limit and label.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.opts.Store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "run storage is disabled")
		return
	}
	limit := store.DefaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	runs, err := h.opts.Store.List(r.Context(), limit, r.URL.Query().Get("label"))
	if err != nil {
		logger.FromContext(r.Context()).Error("listing runs failed", "error", err)
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// Vocabulary handles POST /api/v1/vocabulary.
func (h *Handler) Vocabulary(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !h.decode(w, r, &req) {
		return
	}
	run, ok := h.prepare(w, req.Reviews, req.Params)
	if !ok {
		return
	}
	vocab, err := run.Vocabulary(r.Context(), req.Reviews)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	resp := VocabularyResponse{Size: vocab.Len(), Terms: make([]VocabularyTerm, vocab.Len())}
	for i := 0; i < vocab.Len(); i++ {
		resp.Terms[i] = VocabularyTerm{Term: vocab.Term(i), DocFreq: vocab.DocFreq(i), IDF: vocab.IDF(i)}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats handles GET /api/v1/cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.opts.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"backend":  h.opts.Cache.Enabled(),
		"breaker":  h.opts.Cache.Breaker(),
	})
}

// CacheInvalidate handles DELETE /api/v1/cache.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.opts.Cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// prepare validates reviews and merges raw parameter overrides into the
// service defaults. It writes the error response itself.
func (h *Handler) prepare(w http.ResponseWriter, reviews []pipeline.Review, raw json.RawMessage) (*pipeline.Pipeline, bool) {
	if err := ValidateReviews(reviews); err != nil {
		h.writeValidation(w, err)
		return nil, false
	}
	params := h.pipeline.Params()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid params object")
			return nil, false
		}
	}
	run, err := h.pipeline.WithParams(params)
	if err != nil {
		h.writeFailure(w, err)
		return nil, false
	}
	return run, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) persist(ctx context.Context, result *pipeline.Result) bool {
	if h.opts.Store == nil {
		return false
	}
	err := resilience.Retry(ctx, "save run", h.opts.StoreRetry, func() error {
		return h.opts.Store.Save(ctx, result)
	})
	if err != nil {
		logger.FromContext(ctx).Error("persisting run failed", "run_id", result.RunID, "error", err)
		return false
	}
	return true
}

func (h *Handler) announce(ctx context.Context, result *pipeline.Result, cached bool) {
	if h.opts.Events == nil {
		return
	}
	if err := h.opts.Events.PublishCompleted(ctx, result, "", cached); err != nil {
		logger.FromContext(ctx).Warn("announcing run failed", "run_id", result.RunID, "error", err)
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeJSON(w, status, errorResponse{Error: msg, Kind: apperrors.Kind(err)})
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "validation failed",
			Kind:   "invalid_input",
			Fields: validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}
