// Package crawl walks configured countries and leagues, expands paginated
// match listings to exhaustion, and merges fetched match detail into
// per-league files keyed by match id.
package crawl

import (
	"context"
	"time"
)

// Target selects one (country, league) pair for a crawl run.
type Target struct {
	Country string `json:"country" mapstructure:"country"`
	League  string `json:"league" mapstructure:"league"`
}

// Season is one selectable season of a league archive.
type Season struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Unit is a single (country, league, season) traversal target together with
// the match ids already persisted for its league.
type Unit struct {
	Country string
	League  string
	Season  Season
	Known   map[string]struct{}
}

// Team captures one side of a fixture.
type Team struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// InfoPair is one label/value row from the match summary panel.
type InfoPair struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// StatRow is one statistic with home and away readings.
type StatRow struct {
	Name string `json:"name"`
	Home string `json:"home"`
	Away string `json:"away"`
}

// MatchRecord is the scraped payload persisted per match. Records are merged
// into per-league files and never deleted by the crawl engine.
type MatchRecord struct {
	ID          string     `json:"id"`
	Stage       string     `json:"stage,omitempty"`
	Date        string     `json:"date,omitempty"`
	Status      string     `json:"status,omitempty"`
	Home        Team       `json:"home"`
	Away        Team       `json:"away"`
	Score       string     `json:"score,omitempty"`
	Information []InfoPair `json:"information,omitempty"`
	Statistics  []StatRow  `json:"statistics,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// Report aggregates the outcome of one run.
type Report struct {
	Attempted      int `json:"attempted"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
	Skipped        int `json:"skipped"`
	LoadMoreClicks int `json:"load_more_clicks"`
	CacheHits      int `json:"cache_hits"`
}

// Completion describes one saved league file for downstream import.
type Completion struct {
	RunID       string    `json:"run_id"`
	Country     string    `json:"country"`
	League      string    `json:"league"`
	Matches     int       `json:"matches"`
	NewMatches  int       `json:"new_matches"`
	URI         string    `json:"uri"`
	CompletedAt time.Time `json:"completed_at"`
}

// MatchStore loads and saves the per-league match files used for dedup.
// Save returns the URI of the written artifact.
type MatchStore interface {
	Load(ctx context.Context, country, league string) (map[string]MatchRecord, error)
	Save(ctx context.Context, country, league string, records map[string]MatchRecord) (string, error)
}

// Publisher announces league completions to downstream importers.
type Publisher interface {
	Publish(ctx context.Context, c Completion) error
}

// Clock abstracts time for deterministic pacing and record timestamps.
type Clock interface {
	Now() time.Time
}
