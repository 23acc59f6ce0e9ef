package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fixturelab/matchday-crawler/internal/browser"
	"github.com/fixturelab/matchday-crawler/internal/cache"
	"github.com/fixturelab/matchday-crawler/internal/queue"
	"github.com/fixturelab/matchday-crawler/internal/runs"
	"github.com/fixturelab/matchday-crawler/internal/storage/memory"
)

func doRequest(t *testing.T, s *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{Runner: &fakeRunner{}})
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestServerReadyz(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{Runner: &fakeRunner{current: "run-9", pending: 2}})
	rec := doRequest(t, s, http.MethodGet, "/readyz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ready", body["status"])
	require.Equal(t, "run-9", body["current_run"])
	require.Equal(t, float64(2), body["pending"])
}

func TestServerReadyzWithoutRunner(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{})
	rec := doRequest(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerSubmitRun(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{nextID: "run-42", pending: 1}
	s := NewServer(Config{}, Deps{Runner: runner})

	rec := doRequest(t, s, http.MethodPost, "/v1/runs", strings.NewReader(`{"note":"weekend sweep"}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body submitRunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "run-42", body.RunID)
	require.Equal(t, 1, body.Pending)
	require.Equal(t, []string{"weekend sweep"}, runner.submitted())
}

func TestServerSubmitRunEmptyBody(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{nextID: "run-1"}
	s := NewServer(Config{}, Deps{Runner: runner})

	rec := doRequest(t, s, http.MethodPost, "/v1/runs", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{""}, runner.submitted())
}

func TestServerSubmitRunQueueFull(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{Runner: &fakeRunner{err: queue.ErrFull}})
	rec := doRequest(t, s, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestServerSubmitRunBadJSON(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{Runner: &fakeRunner{}})
	rec := doRequest(t, s, http.MethodPost, "/v1/runs", strings.NewReader(`{"note":`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerListRuns(t *testing.T) {
	t.Parallel()

	store := memory.NewRunStore()
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertRunStart(ctx, "run-1", base))
	require.NoError(t, store.CompleteRun(ctx, "run-1", base.Add(time.Minute), runs.StatusSuccess, "", runs.Counts{Succeeded: 4}))
	require.NoError(t, store.UpsertRunStart(ctx, "run-2", base.Add(time.Hour)))
	require.NoError(t, store.CompleteRun(ctx, "run-2", base.Add(2*time.Hour), runs.StatusError, "browser died", runs.Counts{Failed: 1}))
	require.NoError(t, store.UpsertRunStart(ctx, "run-3", base.Add(3*time.Hour)))

	s := NewServer(Config{}, Deps{Runs: store})

	rec := doRequest(t, s, http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []runs.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Runs, 3)
	require.Equal(t, "run-3", body.Runs[0].ID)

	rec = doRequest(t, s, http.MethodGet, "/v1/runs?status=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body.Runs = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "run-2", body.Runs[0].ID)

	rec = doRequest(t, s, http.MethodGet, "/v1/runs?limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body.Runs = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "run-2", body.Runs[0].ID)
}

func TestServerListRunsRejectsBadQuery(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{Runs: memory.NewRunStore()})

	rec := doRequest(t, s, http.MethodGet, "/v1/runs?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/runs?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/runs?offset=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerGetRun(t *testing.T) {
	t.Parallel()

	store := memory.NewRunStore()
	ctx := context.Background()
	started := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertRunStart(ctx, "run-1", started))

	s := NewServer(Config{}, Deps{Runs: store})

	rec := doRequest(t, s, http.MethodGet, "/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run runs.Run `json:"run"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "run-1", body.Run.ID)
	require.Equal(t, runs.StatusRunning, body.Run.Status)

	rec = doRequest(t, s, http.MethodGet, "/v1/runs/run-99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerListRunLeagues(t *testing.T) {
	t.Parallel()

	store := memory.NewRunStore()
	ctx := context.Background()
	updated := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertLeagueStats(ctx, "run-1", runs.LeagueStats{
		Country: "england", League: "premier-league", Succeeded: 9, UpdatedAt: updated,
	}))
	require.NoError(t, store.UpsertLeagueStats(ctx, "run-1", runs.LeagueStats{
		Country: "spain", League: "laliga", Succeeded: 7, UpdatedAt: updated.Add(time.Minute),
	}))

	s := NewServer(Config{}, Deps{Runs: store})

	rec := doRequest(t, s, http.MethodGet, "/v1/runs/run-1/leagues", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Leagues []runs.LeagueStats `json:"leagues"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Leagues, 2)
	require.Equal(t, "spain", body.Leagues[0].Country)
}

func TestServerPoolStats(t *testing.T) {
	t.Parallel()

	pool := &fakePool{active: true, stats: browser.PoolStats{Size: 3, Available: 1}}
	s := NewServer(Config{}, Deps{Pool: pool})

	rec := doRequest(t, s, http.MethodGet, "/v1/pool/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body poolStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.True(t, body.Active)
	require.NotNil(t, body.Stats)
	require.Equal(t, 3, body.Stats.Size)
}

func TestServerPoolStatsInactive(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{Pool: &fakePool{}})

	rec := doRequest(t, s, http.MethodGet, "/v1/pool/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body poolStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.False(t, body.Active)
	require.Nil(t, body.Stats)
}

func TestServerCacheStats(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{Cache: &fakeCache{stats: cache.Stats{TotalEntries: 7, HitCount: 3}}})

	rec := doRequest(t, s, http.MethodGet, "/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Stats cache.Stats `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 7, body.Stats.TotalEntries)
	require.Equal(t, int64(3), body.Stats.HitCount)
}

func TestServerUnwiredCollaborators(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, Deps{})

	for _, target := range []string{"/v1/runs", "/v1/runs/run-1", "/v1/runs/run-1/leagues", "/v1/pool/stats", "/v1/cache/stats"} {
		rec := doRequest(t, s, http.MethodGet, target, nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
	rec := doRequest(t, s, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerAPIKey(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{APIKey: "s3cret"}, Deps{Runner: &fakeRunner{}})

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "s3cret")
	recHeader := httptest.NewRecorder()
	s.Handler().ServeHTTP(recHeader, req)
	require.Equal(t, http.StatusOK, recHeader.Code)

	rec = doRequest(t, s, http.MethodGet, "/healthz?api_key=s3cret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerMetricsRoute(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# series"))
	})
	s := NewServer(Config{}, Deps{Metrics: handler})

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# series")

	bare := NewServer(Config{}, Deps{})
	rec = doRequest(t, bare, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeRunner struct {
	mu      sync.Mutex
	notes   []string
	nextID  string
	err     error
	current string
	pending int
}

func (f *fakeRunner) Submit(note string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.notes = append(f.notes, note)
	return f.nextID, nil
}

func (f *fakeRunner) Current() (string, bool) { return f.current, f.current != "" }

func (f *fakeRunner) Pending() int { return f.pending }

func (f *fakeRunner) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.notes))
	copy(out, f.notes)
	return out
}

type fakePool struct {
	stats  browser.PoolStats
	active bool
}

func (f *fakePool) PoolStats() (browser.PoolStats, bool) { return f.stats, f.active }

type fakeCache struct {
	stats cache.Stats
}

func (f *fakeCache) Stats() cache.Stats { return f.stats }
