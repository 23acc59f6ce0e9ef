package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixturelab/matchday-crawler/internal/runs"
)

// RunStoreConfig controls the Postgres connection pool behind the run store.
type RunStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type runPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore persists crawl run history in Postgres. It assumes the schema:
//
//	CREATE TABLE crawl_runs (
//		id TEXT PRIMARY KEY,
//		status TEXT NOT NULL,
//		started_at TIMESTAMPTZ NOT NULL,
//		completed_at TIMESTAMPTZ,
//		note TEXT NOT NULL DEFAULT '',
//		attempted INT NOT NULL DEFAULT 0,
//		succeeded INT NOT NULL DEFAULT 0,
//		failed INT NOT NULL DEFAULT 0,
//		skipped INT NOT NULL DEFAULT 0,
//		load_more_clicks INT NOT NULL DEFAULT 0
//	);
//
//	CREATE TABLE league_stats (
//		run_id TEXT NOT NULL,
//		country TEXT NOT NULL,
//		league TEXT NOT NULL,
//		attempted INT NOT NULL DEFAULT 0,
//		succeeded INT NOT NULL DEFAULT 0,
//		failed INT NOT NULL DEFAULT 0,
//		skipped INT NOT NULL DEFAULT 0,
//		load_more_clicks INT NOT NULL DEFAULT 0,
//		updated_at TIMESTAMPTZ NOT NULL,
//		PRIMARY KEY (run_id, country, league)
//	);
type RunStore struct {
	pool runPool
}

var _ runs.Repository = (*RunStore)(nil)

// NewRunStore connects a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
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
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewRunStoreWithPool(pool runPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertRunStart inserts the run as running, keeping the original start time
// on replays. A finished run is never flipped back to running.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID string, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, status, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE crawl_runs.completed_at IS NULL;
	`
	if _, err := s.pool.Exec(ctx, query, runID, runs.StatusRunning, startedAt); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks the run finished with its final status, note, and counts.
// The insert path covers completions whose start update was dropped.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID string,
	completedAt time.Time,
	status runs.Status,
	note string,
	counts runs.Counts,
) error {
	query := `
		INSERT INTO crawl_runs (
			id, status, started_at, completed_at, note,
			attempted, succeeded, failed, skipped, load_more_clicks
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			note = EXCLUDED.note,
			attempted = EXCLUDED.attempted,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			skipped = EXCLUDED.skipped,
			load_more_clicks = EXCLUDED.load_more_clicks;
	`
	_, err := s.pool.Exec(ctx, query,
		runID, status, completedAt, completedAt, note,
		counts.Attempted, counts.Succeeded, counts.Failed, counts.Skipped, counts.LoadMoreClicks,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// UpsertLeagueStats overwrites the per-league aggregate for the run. Unit
// updates carry totals, so the latest write wins.
func (s *RunStore) UpsertLeagueStats(ctx context.Context, runID string, stats runs.LeagueStats) error {
	query := `
		INSERT INTO league_stats (
			run_id, country, league,
			attempted, succeeded, failed, skipped, load_more_clicks, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, country, league) DO UPDATE
		SET attempted = EXCLUDED.attempted,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			skipped = EXCLUDED.skipped,
			load_more_clicks = EXCLUDED.load_more_clicks,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(ctx, query,
		runID, stats.Country, stats.League,
		stats.Attempted, stats.Succeeded, stats.Failed, stats.Skipped, stats.LoadMoreClicks,
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert league stats: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its id.
func (s *RunStore) GetRun(ctx context.Context, runID string) (runs.Run, error) {
	query := `
		SELECT id, status, started_at, completed_at, note,
			attempted, succeeded, failed, skipped, load_more_clicks
		FROM crawl_runs
		WHERE id = $1;
	`
	var run runs.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Note,
		&run.Counts.Attempted,
		&run.Counts.Succeeded,
		&run.Counts.Failed,
		&run.Counts.Skipped,
		&run.Counts.LoadMoreClicks,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return runs.Run{}, runs.ErrNotFound
		}
		return runs.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *runs.Status, limit, offset int) ([]runs.Run, error) {
	query := `
		SELECT id, status, started_at, completed_at, note,
			attempted, succeeded, failed, skipped, load_more_clicks
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

	var out []runs.Run
	for rows.Next() {
		var run runs.Run
		err := rows.Scan(
			&run.ID,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Note,
			&run.Counts.Attempted,
			&run.Counts.Succeeded,
			&run.Counts.Failed,
			&run.Counts.Skipped,
			&run.Counts.LoadMoreClicks,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// ListLeagueStats retrieves per-league aggregates for one run, most recently
// updated first.
func (s *RunStore) ListLeagueStats(ctx context.Context, runID string) ([]runs.LeagueStats, error) {
	query := `
		SELECT country, league,
			attempted, succeeded, failed, skipped, load_more_clicks, updated_at
		FROM league_stats
		WHERE run_id = $1
		ORDER BY updated_at DESC;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list league stats: %w", err)
	}
	defer rows.Close()

	var out []runs.LeagueStats
	for rows.Next() {
		var stats runs.LeagueStats
		err := rows.Scan(
			&stats.Country,
			&stats.League,
			&stats.Attempted,
			&stats.Succeeded,
			&stats.Failed,
			&stats.Skipped,
			&stats.LoadMoreClicks,
			&stats.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan league stats row: %w", err)
		}
		out = append(out, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list league stats: %w", err)
	}
	return out, nil
}
