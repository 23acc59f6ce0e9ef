package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fixturelab/matchday-crawler/internal/runs"
)

// RunStore keeps run history in-memory for development and tests.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]runs.Run
	stats map[string]map[string]runs.LeagueStats
}

var _ runs.Repository = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[string]runs.Run),
		stats: make(map[string]map[string]runs.LeagueStats),
	}
}

// UpsertRunStart records the run as running. Repeated calls keep the original
// start time, and a finished run is never flipped back to running.
func (s *RunStore) UpsertRunStart(_ context.Context, runID string, startedAt time.Time) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.runs[runID]; ok {
		if existing.CompletedAt == nil {
			existing.Status = runs.StatusRunning
			s.runs[runID] = existing
		}
		return nil
	}
	s.runs[runID] = runs.Run{ID: runID, Status: runs.StatusRunning, StartedAt: startedAt}
	return nil
}

// CompleteRun marks the run finished. A completion for an unknown run still
// records it; the start update may have been dropped under backpressure.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID string,
	completedAt time.Time,
	status runs.Status,
	note string,
	counts runs.Counts,
) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = runs.Run{ID: runID, StartedAt: completedAt}
	}
	run.Status = status
	run.CompletedAt = &completedAt
	run.Note = note
	run.Counts = counts
	s.runs[runID] = run
	return nil
}

// UpsertLeagueStats overwrites the per-league aggregate for the run. Unit
// updates carry totals, so the latest write wins.
func (s *RunStore) UpsertLeagueStats(_ context.Context, runID string, stats runs.LeagueStats) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byLeague, ok := s.stats[runID]
	if !ok {
		byLeague = make(map[string]runs.LeagueStats)
		s.stats[runID] = byLeague
	}
	byLeague[stats.Country+"/"+stats.League] = stats
	return nil
}

// GetRun fetches one run by id.
func (s *RunStore) GetRun(_ context.Context, runID string) (runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return runs.Run{}, runs.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status. A limit
// of zero or less returns everything after offset.
func (s *RunStore) ListRuns(_ context.Context, status *runs.Status, limit, offset int) ([]runs.Run, error) {
	s.mu.RLock()
	out := make([]runs.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListLeagueStats returns per-league aggregates for one run, most recently
// updated first.
func (s *RunStore) ListLeagueStats(_ context.Context, runID string) ([]runs.LeagueStats, error) {
	s.mu.RLock()
	byLeague := s.stats[runID]
	out := make([]runs.LeagueStats, 0, len(byLeague))
	for _, stats := range byLeague {
		out = append(out, stats)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].League < out[j].League
	})
	return out, nil
}
