package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEventValidate exercises the per-stage requirements.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := Event{
		RunID:   "run-1",
		TS:      time.Unix(1700000000, 0),
		Stage:   StageUnitDone,
		Country: "england",
		League:  "premier-league",
	}

	cases := []struct {
		name    string
		mutate  func(*Event)
		wantErr string
	}{
		{
			name:   "valid unit event",
			mutate: func(*Event) {},
		},
		{
			name: "run stages need no scope",
			mutate: func(e *Event) {
				e.Stage = StageRunStart
				e.Country = ""
				e.League = ""
			},
		},
		{
			name:    "missing run id",
			mutate:  func(e *Event) { e.RunID = "" },
			wantErr: "run id is required",
		},
		{
			name:    "missing timestamp",
			mutate:  func(e *Event) { e.TS = time.Time{} },
			wantErr: "timestamp is required",
		},
		{
			name: "unit stage missing league",
			mutate: func(e *Event) {
				e.Stage = StageLoadMore
				e.League = ""
			},
			wantErr: "requires country and league",
		},
		{
			name: "match fetched missing match id",
			mutate: func(e *Event) {
				e.Stage = StageMatchFetched
				e.MatchID = ""
			},
			wantErr: "match id",
		},
		{
			name:    "unknown stage",
			mutate:  func(e *Event) { e.Stage = "WARP" },
			wantErr: "unknown stage",
		},
		{
			name:    "negative duration",
			mutate:  func(e *Event) { e.Dur = -time.Second },
			wantErr: "duration",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			evt := valid
			tc.mutate(&evt)
			err := evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
