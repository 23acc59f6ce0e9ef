// Package runs declares the crawl run history model and its repository
// contract.
package runs

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Status mirrors the crawl_runs status column.
type Status string

// Run statuses persisted in crawl_runs.status.
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Counts aggregates match-level outcomes for a run.
type Counts struct {
	Attempted      int `json:"attempted"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
	Skipped        int `json:"skipped"`
	LoadMoreClicks int `json:"loadMoreClicks"`
}

// Run models the crawl_runs table for API responses.
type Run struct {
	// ID is the run identifier assigned at submission.
	ID string `json:"id"`
	// Status is running/success/error.
	Status Status `json:"status"`
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time `json:"startedAt"`
	// CompletedAt is nil until the run finishes.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	// Note optionally stores the final failure reason.
	Note   string `json:"note,omitempty"`
	Counts Counts `json:"counts"`
}

// LeagueStats captures per-league aggregation for a run.
type LeagueStats struct {
	Country        string    `json:"country"`
	League         string    `json:"league"`
	Attempted      int       `json:"attempted"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	LoadMoreClicks int       `json:"loadMoreClicks"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Repository persists run lifecycle updates and per-league aggregates.
type Repository interface {
	// UpsertRunStart inserts (or idempotently updates) the started_at timestamp.
	UpsertRunStart(ctx context.Context, runID string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status, note, and counts.
	CompleteRun(ctx context.Context, runID string, completedAt time.Time, status Status, note string, counts Counts) error
	// UpsertLeagueStats records the latest per-league totals for the run.
	UpsertLeagueStats(ctx context.Context, runID string, stats LeagueStats) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID string) (Run, error)
	// ListRuns returns runs ordered newest first, filtered by optional status.
	ListRuns(ctx context.Context, status *Status, limit, offset int) ([]Run, error)
	// ListLeagueStats returns per-league aggregates for one run.
	ListLeagueStats(ctx context.Context, runID string) ([]LeagueStats, error)
}
