// Package integration exercises the themes HTTP surface wired to a real
// PostgreSQL run store. Tests skip when PostgreSQL is unreachable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/runcache"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "reviewthemes_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "reviewthemes"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func newStore(t *testing.T) *store.RunStore {
	t.Helper()
	rs := store.New(skipIfNoPostgres(t))
	require.NoError(t, rs.EnsureSchema(t.Context()))
	return rs
}

func newThemesServer(t *testing.T, rs *store.RunStore) *httptest.Server {
	t.Helper()
	res, err := language.Default()
	require.NoError(t, err)
	p, err := pipeline.New(res, pipeline.DefaultParams())
	require.NoError(t, err)

	h := api.New(p, api.Options{
		Cache:      runcache.New(runcache.NewMemoryBackend(), time.Minute, nil),
		Store:      rs,
		RunTimeout: 30 * time.Second,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(middleware.RequestID(mux))
	t.Cleanup(srv.Close)
	return srv
}

var reviews = []pipeline.Review{
	{Text: "great book loved it", Sentiment: "positive"},
	{Text: "book was terrible hated it", Sentiment: "negative"},
	{Text: "great story loved characters", Sentiment: "positive"},
}

func TestRunStoreRoundTrip(t *testing.T) {
	rs := newStore(t)
	ctx := t.Context()

	res, err := language.Default()
	require.NoError(t, err)
	params := pipeline.DefaultParams()
	params.K = 2
	params.MinDocumentFrequency = 1
	params.MaxDocumentFrequencyFraction = 1.0
	p, err := pipeline.New(res, params)
	require.NoError(t, err)
	result, err := p.Run(ctx, reviews)
	require.NoError(t, err)

	require.NoError(t, rs.Save(ctx, result))
	require.NoError(t, rs.Save(ctx, result), "saving twice is a no-op")

	got, err := rs.Get(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.ClusterIDs(), got.ClusterIDs())
	assert.Equal(t, result.Labels(), got.Labels())
	assert.Equal(t, result.Vocabulary, got.Vocabulary)

	runs, err := rs.List(ctx, 200, "")
	require.NoError(t, err)
	var found bool
	for _, r := range runs {
		if r.ID == result.RunID {
			found = true
			assert.Equal(t, 2, r.K)
			assert.Equal(t, 3, r.Documents)
		}
	}
	assert.True(t, found)

	_, err = rs.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, apperrors.ErrRunNotFound)
}

func TestRunsEndpointPersists(t *testing.T) {
	srv := newThemesServer(t, newStore(t))

	body, err := json.Marshal(map[string]any{
		"reviews": reviews,
		"params":  map[string]any{"k": 2, "min_df": 1, "max_df": 1.0},
	})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	var run struct {
		RunID     string `json:"run_id"`
		Persisted bool   `json:"persisted"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.True(t, run.Persisted)

	get, err := http.Get(srv.URL + "/api/v1/runs/" + run.RunID)
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/runs?limit=5", nil)
	require.NoError(t, err)
	list, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer list.Body.Close()
	assert.Equal(t, http.StatusOK, list.StatusCode)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
