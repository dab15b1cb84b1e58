// Package postgres opens the lib/pq connection pool used by the run store
// and provides transaction and schema helpers.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
)

// Client owns the connection pool.
type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens the pool and pings it once so a misconfigured database fails
// at startup instead of on the first save.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return FromDB(db), nil
}

// FromDB wraps an already-open pool.
func FromDB(db *sql.DB) *Client {
	return &Client{DB: db, logger: slog.Default().With("component", "postgres")}
}

// Ping checks the database answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in a transaction, committing when it returns nil.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Error("rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Migrate applies statements in one transaction while holding the advisory
// lock lockID, so the API and worker can start together against an empty
// database. Statements must be idempotent.
func (c *Client) Migrate(ctx context.Context, lockID int64, statements ...string) error {
	start := time.Now()
	err := c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockID); err != nil {
			return fmt.Errorf("acquiring migration lock: %w", err)
		}
		for i, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration statement %d: %w", i+1, describe(err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Debug("schema applied", "statements", len(statements), "duration", time.Since(start))
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// describe adds the server's detail and hint, which pq.Error.Error omits.
func describe(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch {
	case pqErr.Detail != "" && pqErr.Hint != "":
		return fmt.Errorf("%w (detail: %s; hint: %s)", err, pqErr.Detail, pqErr.Hint)
	case pqErr.Detail != "":
		return fmt.Errorf("%w (detail: %s)", err, pqErr.Detail)
	case pqErr.Hint != "":
		return fmt.Errorf("%w (hint: %s)", err, pqErr.Hint)
	}
	return err
}
