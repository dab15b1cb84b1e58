// Package store persists completed pipeline runs in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/postgres"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

// schemaLock serializes schema creation across processes.
const schemaLock int64 = 0x7468656d6573

// Schema creates the runs table, where results are stored whole as JSONB,
// and a per-cluster table for label queries.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS theme_runs (
	    id          UUID PRIMARY KEY,
	    strategy    TEXT NOT NULL,
	    k           INT NOT NULL,
	    documents   INT NOT NULL,
	    result      JSONB NOT NULL,
	    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS theme_runs_created_at_idx ON theme_runs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS theme_clusters (
	    run_id      UUID NOT NULL REFERENCES theme_runs (id) ON DELETE CASCADE,
	    cluster_id  INT NOT NULL,
	    label       TEXT NOT NULL,
	    size        INT NOT NULL,
	    PRIMARY KEY (run_id, cluster_id)
	)`,
	`CREATE INDEX IF NOT EXISTS theme_clusters_label_idx ON theme_clusters (label)`,
}

// RunSummary is one row of a run listing.
type RunSummary struct {
	ID        string    `json:"run_id"`
	Strategy  string    `json:"strategy"`
	K         int       `json:"k"`
	Documents int       `json:"documents"`
	Labels    []string  `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
}

// RunStore saves and loads pipeline results.
type RunStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New returns a store over db. Call EnsureSchema before use.
func New(db *postgres.Client) *RunStore {
	return &RunStore{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

// EnsureSchema creates the runs table if it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.Migrate(ctx, schemaLock, Schema...); err != nil {
		return fmt.Errorf("creating run store schema: %w", err)
	}
	return nil
}

// Save stores result. Saving the same run id twice is a no-op.
func (s *RunStore) Save(ctx context.Context, result *pipeline.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", result.RunID, err)
	}
	var inserted bool
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO theme_runs (id, strategy, k, documents, result, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			result.RunID, result.Params.Strategy, result.Params.K, len(result.Documents),
			data, result.CreatedAt,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		inserted = true
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO theme_clusters (run_id, cluster_id, label, size) VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range result.Clusters {
			if _, err := stmt.ExecContext(ctx, result.RunID, c.ID, c.Label, c.Size); err != nil {
				return fmt.Errorf("cluster %d: %w", c.ID, err)
			}
		}
		return nil
	})
	if postgres.IsUniqueViolation(err) {
		// Duplicate rows mean the run is already stored.
		inserted, err = false, nil
	}
	if err != nil {
		return fmt.Errorf("saving run %s: %w", result.RunID, err)
	}
	if !inserted {
		s.logger.Debug("run already saved", "run_id", result.RunID)
		return nil
	}
	s.logger.Info("run saved",
		"run_id", result.RunID,
		"strategy", result.Params.Strategy,
		"k", result.Params.K,
		"documents", len(result.Documents),
	)
	return nil
}

// Get loads a run by id, or returns ErrRunNotFound.
func (s *RunStore) Get(ctx context.Context, id string) (*pipeline.Result, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT result FROM theme_runs WHERE id = $1`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	var result pipeline.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling run %s: %w", id, err)
	}
	return &result, nil
}

// List returns the most recent runs, newest first, with their cluster
// labels. A non-empty label keeps only runs with a cluster of that label.
// Out-of-range limits are clamped.
func (s *RunStore) List(ctx context.Context, limit int, label string) ([]RunSummary, error) {
	limit = ClampLimit(limit)
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT r.id, r.strategy, r.k, r.documents, r.created_at,
		        COALESCE(array_agg(c.label ORDER BY c.cluster_id) FILTER (WHERE c.run_id IS NOT NULL), '{}')
		 FROM theme_runs r
		 LEFT JOIN theme_clusters c ON c.run_id = r.id
		 WHERE $2 = '' OR EXISTS (
		     SELECT 1 FROM theme_clusters f WHERE f.run_id = r.id AND f.label = $2)
		 GROUP BY r.id
		 ORDER BY r.created_at DESC LIMIT $1`,
		limit, label,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0, limit)
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Strategy, &r.K, &r.Documents, &r.CreatedAt, pq.Array(&r.Labels)); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Ping checks the database connection.
func (s *RunStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ClampLimit maps a requested list size into [1, MaxListLimit], using
// DefaultListLimit for non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
