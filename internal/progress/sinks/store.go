package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/progress"
	"github.com/fixturelab/matchday-crawler/internal/runs"
)

// StoreSink persists run lifecycle updates via a runs.Repository. It collapses
// per-league rows so repeated unit events within a batch produce one upsert.
type StoreSink struct {
	repo   runs.Repository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo runs.Repository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run transitions in order and league aggregates collapsed
// per batch. It respects ctx deadlines and returns repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	leagues := make(map[leagueKey]*leagueSnapshot)

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
			if err := s.handleRunEvent(ctx, evt); err != nil {
				return err
			}
		case progress.StageUnitDone, progress.StageUnitError:
			recordLeagueSnapshot(leagues, evt)
		}
	}

	for key, snap := range leagues {
		if err := s.repo.UpsertLeagueStats(ctx, key.runID, runs.LeagueStats{
			Country:        key.country,
			League:         key.league,
			Attempted:      snap.attempted,
			Succeeded:      snap.succeeded,
			Failed:         snap.failed,
			Skipped:        snap.skipped,
			LoadMoreClicks: snap.clicks,
			UpdatedAt:      snap.at,
		}); err != nil {
			return fmt.Errorf("upsert league stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.UpsertRunStart(ctx, evt.RunID, evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageRunDone:
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, runs.StatusSuccess, evt.Note, eventCounts(evt)); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.StageRunError:
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, runs.StatusError, evt.Note, eventCounts(evt)); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

// recordLeagueSnapshot keeps the newest totals per league. Unit events carry
// cumulative counts, so later snapshots supersede earlier ones.
func recordLeagueSnapshot(leagues map[leagueKey]*leagueSnapshot, evt progress.Event) {
	if evt.Country == "" || evt.League == "" {
		return
	}
	key := leagueKey{runID: evt.RunID, country: evt.Country, league: evt.League}
	snap := leagues[key]
	if snap != nil && snap.at.After(evt.TS) {
		return
	}
	leagues[key] = &leagueSnapshot{
		attempted: evt.Attempted,
		succeeded: evt.Succeeded,
		failed:    evt.Failed,
		skipped:   evt.Skipped,
		clicks:    evt.Clicks,
		at:        evt.TS,
	}
}

func eventCounts(evt progress.Event) runs.Counts {
	return runs.Counts{
		Attempted:      evt.Attempted,
		Succeeded:      evt.Succeeded,
		Failed:         evt.Failed,
		Skipped:        evt.Skipped,
		LoadMoreClicks: evt.Clicks,
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type leagueKey struct {
	runID   string
	country string
	league  string
}

type leagueSnapshot struct {
	attempted int
	succeeded int
	failed    int
	skipped   int
	clicks    int
	at        time.Time
}
