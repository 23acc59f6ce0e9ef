package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fixturelab/matchday-crawler/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-league fetch counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	unitsCompleted *prometheus.CounterVec
	matchesFetched *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	loadMoreClicks *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchday_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matchday_run_duration_seconds",
			Help:    "Wall time per completed crawl run.",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		unitsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_units_completed_total",
			Help: "League units completed partitioned by country and result.",
		}, []string{"country", "result"}),
		matchesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_matches_fetched_total",
			Help: "Match detail fetches partitioned by league and source.",
		}, []string{"country", "league", "source"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchday_match_fetch_duration_seconds",
			Help:    "Latency of live match detail fetches.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		loadMoreClicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_load_more_clicks_total",
			Help: "Load-more button clicks issued while expanding match lists.",
		}, []string{"country"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.unitsCompleted,
		s.matchesFetched,
		s.fetchDuration,
		s.loadMoreClicks,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StageUnitDone:
		s.unitsCompleted.WithLabelValues(countryLabel(evt), "success").Inc()
	case progress.StageUnitError:
		s.unitsCompleted.WithLabelValues(countryLabel(evt), "error").Inc()
	case progress.StageLoadMore:
		if evt.Clicks > 0 {
			s.loadMoreClicks.WithLabelValues(countryLabel(evt)).Add(float64(evt.Clicks))
		}
	case progress.StageMatchFetched:
		s.handleMatchEvent(evt)
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeDuration(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeDuration(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeDuration(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleMatchEvent(evt progress.Event) {
	source := "live"
	if evt.FromCache {
		source = "cache"
	}
	league := evt.League
	if league == "" {
		league = "unknown"
	}
	s.matchesFetched.WithLabelValues(countryLabel(evt), league, source).Inc()
	if !evt.FromCache && evt.Dur > 0 {
		s.fetchDuration.Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func countryLabel(evt progress.Event) string {
	if evt.Country == "" {
		return "unknown"
	}
	return evt.Country
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
