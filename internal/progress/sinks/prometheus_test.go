package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/fixturelab/matchday-crawler/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := uuid.NewString()
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
		{
			RunID:   runID,
			TS:      time.Now().Add(2 * time.Second),
			Stage:   progress.StageLoadMore,
			Country: "england",
			League:  "premier-league",
			Clicks:  7,
		},
		{
			RunID:   runID,
			TS:      time.Now().Add(5 * time.Second),
			Stage:   progress.StageMatchFetched,
			Country: "england",
			League:  "premier-league",
			MatchID: "xAbC1234",
			Dur:     200 * time.Millisecond,
		},
		{
			RunID:     runID,
			TS:        time.Now().Add(6 * time.Second),
			Stage:     progress.StageMatchFetched,
			Country:   "england",
			League:    "premier-league",
			MatchID:   "yDeF5678",
			FromCache: true,
		},
		{
			RunID:     runID,
			TS:        time.Now().Add(10 * time.Second),
			Stage:     progress.StageUnitDone,
			Country:   "england",
			League:    "premier-league",
			Attempted: 2,
			Succeeded: 1,
			Skipped:   1,
		},
		{RunID: runID, TS: time.Now().Add(15 * time.Second), Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))

	require.InDelta(t, 7.0, testutil.ToFloat64(sink.loadMoreClicks.WithLabelValues("england")), 1e-9)
	require.InDelta(
		t,
		1.0,
		testutil.ToFloat64(sink.matchesFetched.WithLabelValues("england", "premier-league", "live")),
		1e-9,
	)
	require.InDelta(
		t,
		1.0,
		testutil.ToFloat64(sink.matchesFetched.WithLabelValues("england", "premier-league", "cache")),
		1e-9,
	)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.unitsCompleted.WithLabelValues("england", "success")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "matchday_match_fetch_duration_seconds"))
}

// TestPrometheusSinkTracksRunningGauge verifies the gauge survives duplicate transitions.
func TestPrometheusSinkTracksRunningGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := uuid.NewString()
	start := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart}
	done := progress.Event{RunID: runID, TS: time.Now().Add(time.Second), Stage: progress.StageRunDone}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done, done}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
}
