// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gbif/content-crawler-sub000/internal/store"
)

// Schema creates the ledger tables when they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS crawl_runs (
	id            uuid PRIMARY KEY,
	started_at    timestamptz NOT NULL,
	finished_at   timestamptz,
	status        text NOT NULL,
	error_message text
);
CREATE TABLE IF NOT EXISTS crawl_content_types (
	run_id         uuid NOT NULL REFERENCES crawl_runs (id) ON DELETE CASCADE,
	content_type   text NOT NULL,
	index_name     text NOT NULL DEFAULT '',
	last_update    timestamptz NOT NULL,
	indexed        bigint NOT NULL DEFAULT 0,
	failed         bigint NOT NULL DEFAULT 0,
	skipped        bigint NOT NULL DEFAULT 0,
	tags_applied   bigint NOT NULL DEFAULT 0,
	tags_unchanged bigint NOT NULL DEFAULT 0,
	tags_dropped   bigint NOT NULL DEFAULT 0,
	recreated      boolean NOT NULL DEFAULT false,
	PRIMARY KEY (run_id, content_type)
);`

// RunStoreConfig controls the Postgres connection pool used for the ledger.
type RunStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Migrate applies Schema on startup.
	Migrate bool
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool pool
}

// NewRunStore connects to Postgres and optionally applies Schema.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &RunStore{pool: p}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: p}, nil
}

// Migrate applies Schema.
func (s *RunStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// Ping checks that the ledger database is reachable.
func (s *RunStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping ledger: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertRunStart inserts a running run or flips an existing one back to running.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE crawl_runs.status <> EXCLUDED.status;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertContentTypeStats adds delta to the (run, content type) counters.
func (s *RunStore) UpsertContentTypeStats(
	ctx context.Context,
	runID uuid.UUID,
	contentType string,
	index string,
	delta store.StatsDelta,
	at time.Time,
) error {
	query := `
		INSERT INTO crawl_content_types (
			run_id, content_type, index_name, last_update,
			indexed, failed, skipped, tags_applied, tags_unchanged, tags_dropped, recreated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, content_type) DO UPDATE SET
			index_name     = CASE WHEN EXCLUDED.index_name = '' THEN crawl_content_types.index_name ELSE EXCLUDED.index_name END,
			last_update    = GREATEST(crawl_content_types.last_update, EXCLUDED.last_update),
			indexed        = crawl_content_types.indexed + EXCLUDED.indexed,
			failed         = crawl_content_types.failed + EXCLUDED.failed,
			skipped        = crawl_content_types.skipped + EXCLUDED.skipped,
			tags_applied   = crawl_content_types.tags_applied + EXCLUDED.tags_applied,
			tags_unchanged = crawl_content_types.tags_unchanged + EXCLUDED.tags_unchanged,
			tags_dropped   = crawl_content_types.tags_dropped + EXCLUDED.tags_dropped,
			recreated      = crawl_content_types.recreated OR EXCLUDED.recreated;
	`
	_, err := s.pool.Exec(ctx, query,
		runID,
		contentType,
		index,
		at,
		delta.Indexed,
		delta.Failed,
		delta.Skipped,
		delta.TagsApplied,
		delta.TagsUnchanged,
		delta.TagsDropped,
		delta.Recreated,
	)
	if err != nil {
		return fmt.Errorf("upsert content type stats: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM crawl_runs
		WHERE id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		var run store.Run
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// ListRunContentTypes retrieves per-content-type counters for one run.
func (s *RunStore) ListRunContentTypes(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.ContentTypeStats, error) {
	query := `
		SELECT run_id, content_type, index_name, last_update,
			indexed, failed, skipped, tags_applied, tags_unchanged, tags_dropped, recreated
		FROM crawl_content_types
		WHERE run_id = $1
		ORDER BY last_update DESC, content_type
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run content types: %w", err)
	}
	defer rows.Close()

	stats := []store.ContentTypeStats{}
	for rows.Next() {
		var stat store.ContentTypeStats
		if err := rows.Scan(
			&stat.RunID,
			&stat.ContentType,
			&stat.Index,
			&stat.LastUpdate,
			&stat.Indexed,
			&stat.Failed,
			&stat.Skipped,
			&stat.TagsApplied,
			&stat.TagsUnchanged,
			&stat.TagsDropped,
			&stat.Recreated,
		); err != nil {
			return nil, fmt.Errorf("scan content type row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content type rows: %w", err)
	}
	return stats, nil
}
