// Package store is the PostgreSQL fact store: schema management, dimension
// snapshot loading, fact upserts and the read queries backing the analytics
// engine. All round-trips honor the configured query timeout and surface
// deadline hits as retryable timeout errors.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cwtcli/internal/config"
	apperrors "cwtcli/internal/errors"
	"cwtcli/internal/infrastructure"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a pgx connection pool with query instrumentation
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// New connects to the fact store and verifies the connection
func New(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{
		pool:    pool,
		timeout: cfg.QueryTimeout,
		logger:  logger.With("component", "store"),
		metrics: infrastructure.GetMetrics(),
	}, nil
}

// Close releases the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the store is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates tables and seeds reference data. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info("schema ensured")
	return nil
}

// Begin starts a load transaction
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// query runs one named read operation under the configured timeout and
// records its duration. Deadline hits map to a retryable timeout error.
func (s *Store) query(ctx context.Context, op string, fn func(context.Context) error) error {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(qctx)
	s.metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded)) {
		s.logger.Warn("query timed out", "operation", op, "timeout", s.timeout)
		return apperrors.NewQueryTimeout(op, s.timeout)
	}
	return err
}
