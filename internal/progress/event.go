package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart          Stage = "RUN_START"
	StageSeasonsDiscovered Stage = "SEASONS_DISCOVERED"
	StageUnitStart         Stage = "UNIT_START"
	StageLoadMore          Stage = "LOAD_MORE"
	StageMatchFetched      Stage = "MATCH_FETCHED"
	StageUnitDone          Stage = "UNIT_DONE"
	StageUnitError         Stage = "UNIT_ERROR"
	StageRunDone           Stage = "RUN_DONE"
	StageRunError          Stage = "RUN_ERROR"
)

// Event captures a single milestone of crawl progress.
type Event struct {
	// RunID identifies the crawl run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Country/League/Season scope unit-level events.
	Country string
	League  string
	Season  string
	// MatchID scopes match-level events.
	MatchID string
	// Seasons carries the discovery count for SEASONS_DISCOVERED.
	Seasons int
	// Clicks carries the pagination click total for LOAD_MORE.
	Clicks int
	// Attempted/Succeeded/Failed/Skipped aggregate unit or run outcomes.
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
	// FromCache marks a MATCH_FETCHED served without a page fetch.
	FromCache bool
	// Dur captures execution latency for match fetches and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSeasonsDiscovered, StageUnitStart, StageLoadMore, StageUnitDone, StageUnitError:
		if e.Country == "" || e.League == "" {
			return fmt.Errorf("%s requires country and league", e.Stage)
		}
	case StageMatchFetched:
		if e.MatchID == "" {
			return errors.New("match fetched requires match id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
