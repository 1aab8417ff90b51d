// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobgrid/feed-importer/internal/importer"
)

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

func newPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore writes deduplicated job rows into Postgres.
type JobStore struct {
	pool dbPool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg PoolConfig) (*JobStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	s.pool.Close()
}

// CreateJob inserts a new job row. A unique violation on external_id is
// reported as ErrDuplicateJob so callers can fall back to an update.
// It assumes a table schema like:
// CREATE TABLE jobs (
//
//	external_id TEXT PRIMARY KEY,
//	title TEXT NOT NULL,
//	company TEXT,
//	location TEXT,
//	description TEXT,
//	raw JSONB,
//	run_ids TEXT[] NOT NULL DEFAULT '{}',
//	created_at TIMESTAMPTZ NOT NULL,
//	updated_at TIMESTAMPTZ NOT NULL
//
// );
func (s *JobStore) CreateJob(ctx context.Context, rec importer.JobRecord) error {
	query := `
		INSERT INTO jobs (external_id, title, company, location, description, raw, run_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ExternalID,
		rec.Title,
		rec.Company,
		rec.Location,
		rec.Description,
		[]byte(rec.Raw),
		rec.RunIDs,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return importer.ErrDuplicateJob
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob overwrites the descriptive fields of an existing job and adds
// the run id to its run set. Adding a run id the row already has is a no-op.
func (s *JobStore) UpdateJob(ctx context.Context, rec importer.JobRecord, runID string) error {
	query := `
		UPDATE jobs
		SET title = $2,
			company = $3,
			location = $4,
			description = $5,
			raw = $6,
			updated_at = $7,
			run_ids = CASE WHEN $8 = ANY(run_ids) THEN run_ids ELSE array_append(run_ids, $8) END
		WHERE external_id = $1;
	`
	tag, err := s.pool.Exec(ctx, query,
		rec.ExternalID,
		rec.Title,
		rec.Company,
		rec.Location,
		rec.Description,
		[]byte(rec.Raw),
		rec.UpdatedAt,
		runID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return importer.ErrJobNotFound
	}
	return nil
}

// GetJob retrieves a single job by its external id.
func (s *JobStore) GetJob(ctx context.Context, externalID string) (importer.JobRecord, error) {
	query := `
		SELECT external_id, title, company, location, description, raw, run_ids, created_at, updated_at
		FROM jobs
		WHERE external_id = $1;
	`
	var rec importer.JobRecord
	var raw []byte
	err := s.pool.QueryRow(ctx, query, externalID).Scan(
		&rec.ExternalID,
		&rec.Title,
		&rec.Company,
		&rec.Location,
		&rec.Description,
		&raw,
		&rec.RunIDs,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return importer.JobRecord{}, importer.ErrJobNotFound
		}
		return importer.JobRecord{}, fmt.Errorf("get job: %w", err)
	}
	rec.Raw = raw
	return rec, nil
}
