package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jobgrid/feed-importer/internal/importer"
)

// RunStore persists import run state and counters in Postgres.
type RunStore struct {
	pool dbPool
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg PoolConfig) (*RunStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool dbPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	s.pool.Close()
}

// CreateRun inserts a pending run row with zeroed counters.
// It assumes a table schema like:
// CREATE TABLE import_runs (
//
//	run_id TEXT PRIMARY KEY,
//	file_name TEXT NOT NULL,
//	status TEXT NOT NULL,
//	created_at TIMESTAMPTZ NOT NULL,
//	total_fetched INT NOT NULL DEFAULT 0,
//	total_imported INT NOT NULL DEFAULT 0,
//	new_jobs INT NOT NULL DEFAULT 0,
//	updated_jobs INT NOT NULL DEFAULT 0,
//	failed_jobs_count INT NOT NULL DEFAULT 0,
//	pending_items INT NOT NULL DEFAULT 0
//
// );
//
// with failures recorded in a companion table:
// CREATE TABLE import_run_failures (
//
//	id BIGSERIAL PRIMARY KEY,
//	run_id TEXT NOT NULL REFERENCES import_runs(run_id),
//	item JSONB,
//	reason TEXT NOT NULL
//
// );
func (s *RunStore) CreateRun(ctx context.Context, runID, fileName string, createdAt time.Time) error {
	query := `
		INSERT INTO import_runs (run_id, file_name, status, created_at)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := s.pool.Exec(ctx, query, runID, fileName, importer.RunStatusPending, createdAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// StartRun moves a pending run to running, or straight to completed when
// nothing was enqueued for it.
func (s *RunStore) StartRun(ctx context.Context, runID string) error {
	query := `
		UPDATE import_runs
		SET status = CASE WHEN pending_items <= 0 THEN 'completed' ELSE 'running' END
		WHERE run_id = $1 AND status = 'pending';
	`
	tag, err := s.pool.Exec(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return importer.ErrRunNotFound
	}
	return nil
}

// IncrementFetched adds to the run's fetched counter.
func (s *RunStore) IncrementFetched(ctx context.Context, runID string, n int) error {
	query := `UPDATE import_runs SET total_fetched = total_fetched + $2 WHERE run_id = $1;`
	return s.exec(ctx, query, runID, n)
}

// IncrementCreated counts one newly created job against the run.
func (s *RunStore) IncrementCreated(ctx context.Context, runID string) error {
	query := `
		UPDATE import_runs
		SET new_jobs = new_jobs + 1, total_imported = total_imported + 1
		WHERE run_id = $1;
	`
	return s.exec(ctx, query, runID)
}

// IncrementUpdated counts one updated job against the run.
func (s *RunStore) IncrementUpdated(ctx context.Context, runID string) error {
	query := `
		UPDATE import_runs
		SET updated_jobs = updated_jobs + 1, total_imported = total_imported + 1
		WHERE run_id = $1;
	`
	return s.exec(ctx, query, runID)
}

// AddPending raises the run's outstanding item count.
func (s *RunStore) AddPending(ctx context.Context, runID string, n int) error {
	query := `UPDATE import_runs SET pending_items = pending_items + $2 WHERE run_id = $1;`
	return s.exec(ctx, query, runID, n)
}

// RecordFailure appends a failure row and bumps the run's failure counter
// in one statement.
func (s *RunStore) RecordFailure(ctx context.Context, runID string, failed importer.FailedJob) error {
	item, err := json.Marshal(failed.Item)
	if err != nil {
		return fmt.Errorf("marshal failed item: %w", err)
	}
	query := `
		WITH failure AS (
			INSERT INTO import_run_failures (run_id, item, reason)
			VALUES ($1, $2, $3)
		)
		UPDATE import_runs
		SET failed_jobs_count = failed_jobs_count + 1
		WHERE run_id = $1;
	`
	return s.exec(ctx, query, runID, item, failed.Reason)
}

// FinishItem retires one outstanding item. A running run whose last item
// finishes flips to completed in the same statement, so there is no
// window where two workers both observe an unfinished run.
func (s *RunStore) FinishItem(ctx context.Context, runID string) error {
	query := `
		UPDATE import_runs
		SET pending_items = pending_items - 1,
			status = CASE WHEN status = 'running' AND pending_items - 1 <= 0 THEN 'completed' ELSE status END
		WHERE run_id = $1;
	`
	return s.exec(ctx, query, runID)
}

// GetRun retrieves one run including its recorded failures.
func (s *RunStore) GetRun(ctx context.Context, runID string) (importer.ImportRun, error) {
	query := `
		SELECT run_id, file_name, status, created_at,
			total_fetched, total_imported, new_jobs, updated_jobs,
			failed_jobs_count, pending_items
		FROM import_runs
		WHERE run_id = $1;
	`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return importer.ImportRun{}, importer.ErrRunNotFound
		}
		return importer.ImportRun{}, fmt.Errorf("get run: %w", err)
	}

	failures, err := s.listFailures(ctx, runID)
	if err != nil {
		return importer.ImportRun{}, err
	}
	run.FailedJobs = failures
	return run, nil
}

// ListRuns returns one page of run history, newest first. Failure details
// are omitted from listings; the counter column still reflects them.
func (s *RunStore) ListRuns(ctx context.Context, page, pageSize int) (importer.RunPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_runs;`).Scan(&total); err != nil {
		return importer.RunPage{}, fmt.Errorf("count runs: %w", err)
	}

	query := `
		SELECT run_id, file_name, status, created_at,
			total_fetched, total_imported, new_jobs, updated_jobs,
			failed_jobs_count, pending_items
		FROM import_runs
		ORDER BY created_at DESC, run_id DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.pool.Query(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return importer.RunPage{}, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := importer.RunPage{Page: page, PageSize: pageSize, Total: total}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return importer.RunPage{}, fmt.Errorf("scan run row: %w", err)
		}
		result.Items = append(result.Items, run)
	}
	if err := rows.Err(); err != nil {
		return importer.RunPage{}, fmt.Errorf("list runs: %w", err)
	}
	return result, nil
}

func (s *RunStore) listFailures(ctx context.Context, runID string) ([]importer.FailedJob, error) {
	query := `
		SELECT item, reason
		FROM import_run_failures
		WHERE run_id = $1
		ORDER BY id;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list run failures: %w", err)
	}
	defer rows.Close()

	var failures []importer.FailedJob
	for rows.Next() {
		var item []byte
		var failed importer.FailedJob
		if err := rows.Scan(&item, &failed.Reason); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		if len(item) > 0 {
			if err := json.Unmarshal(item, &failed.Item); err != nil {
				return nil, fmt.Errorf("decode failed item: %w", err)
			}
		}
		failures = append(failures, failed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run failures: %w", err)
	}
	return failures, nil
}

func (s *RunStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return importer.ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (importer.ImportRun, error) {
	var run importer.ImportRun
	err := row.Scan(
		&run.RunID,
		&run.FileName,
		&run.Status,
		&run.CreatedAt,
		&run.TotalFetched,
		&run.TotalImported,
		&run.NewJobs,
		&run.UpdatedJobs,
		&run.FailedJobsCount,
		&run.PendingItems,
	)
	return run, err
}
