package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/browser"
	"github.com/fixturelab/matchday-crawler/internal/cache"
	"github.com/fixturelab/matchday-crawler/internal/queue"
	"github.com/fixturelab/matchday-crawler/internal/runs"
)

// RunSubmitter is the runner surface the API drives.
type RunSubmitter interface {
	Submit(note string) (string, error)
	Current() (string, bool)
	Pending() int
}

// RunReader is the read side of the run history store.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (runs.Run, error)
	ListRuns(ctx context.Context, status *runs.Status, limit, offset int) ([]runs.Run, error)
	ListLeagueStats(ctx context.Context, runID string) ([]runs.LeagueStats, error)
}

// PoolStatser reports live page pool statistics. The pool only exists while a
// run executes, so the bool mirrors that.
type PoolStatser interface {
	PoolStats() (browser.PoolStats, bool)
}

// CacheStatser reports match cache statistics.
type CacheStatser interface {
	Stats() cache.Stats
}

// Config controls the HTTP surface.
type Config struct {
	// RequestTimeout bounds each request end to end. Zero means one minute.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// APIKey, when set, is required on every request via X-API-Key.
	APIKey string `mapstructure:"api_key"`
}

// Server wires HTTP handlers to the runner and stores. Optional collaborators
// may be nil; their endpoints answer 503 until wired.
type Server struct {
	router chi.Router
	runner RunSubmitter
	runs   RunReader
	pool   PoolStatser
	cache  CacheStatser
	logger *zap.Logger
}

const (
	defaultRunLimit       = 50
	maxRunLimit           = 500
	defaultRequestTimeout = time.Minute
	repoTimeout           = 3 * time.Second
)

// NewServer constructs a Server with middleware and routes. The metrics
// handler, usually promhttp, is mounted at /metrics when non-nil.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		runner: deps.Runner,
		runs:   deps.Runs,
		pool:   deps.Pool,
		cache:  deps.Cache,
		logger: logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(timeout))
	if cfg.APIKey != "" {
		r.Use(s.apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pool/stats", s.poolStats)
		r.Get("/cache/stats", s.cacheStats)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/leagues", s.listRunLeagues)
			})
		})
	})

	s.router = r
	return s
}

// Deps carries the server's collaborators.
type Deps struct {
	Runner  RunSubmitter
	Runs    RunReader
	Pool    PoolStatser
	Cache   CacheStatser
	Metrics http.Handler
	Logger  *zap.Logger
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.runner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "runner not started")
		return
	}
	resp := map[string]any{"status": "ready", "pending": s.runner.Pending()}
	if id, ok := s.runner.Current(); ok {
		resp["current_run"] = id
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) poolStats(w http.ResponseWriter, _ *http.Request) {
	if s.pool == nil {
		s.writeError(w, http.StatusServiceUnavailable, "pool stats unavailable")
		return
	}
	stats, active := s.pool.PoolStats()
	resp := poolStatsResponse{Active: active}
	if active {
		resp.Stats = &stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		s.writeError(w, http.StatusServiceUnavailable, "cache stats unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stats": s.cache.Stats()})
}

type poolStatsResponse struct {
	Active bool               `json:"active"`
	Stats  *browser.PoolStats `json:"stats,omitempty"`
}

type submitRunRequest struct {
	Note string `json:"note"`
}

type submitRunResponse struct {
	RunID   string `json:"run_id"`
	Pending int    `json:"pending"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "runner unavailable")
		return
	}
	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	runID, err := s.runner.Submit(req.Note)
	switch {
	case errors.Is(err, queue.ErrFull):
		s.writeError(w, http.StatusTooManyRequests, "run queue full")
		return
	case errors.Is(err, queue.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		s.logger.Error("run submit failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}
	s.writeJSON(w, http.StatusAccepted, submitRunResponse{RunID: runID, Pending: s.runner.Pending()})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := parseStatusFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), repoTimeout)
	defer cancel()

	list, err := s.runs.ListRuns(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": list})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		s.writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), repoTimeout)
	defer cancel()

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) listRunLeagues(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		s.writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), repoTimeout)
	defer cancel()

	leagues, err := s.runs.ListLeagueStats(ctx, runID)
	if err != nil {
		s.logger.Error("list run leagues failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list league stats")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"leagues": leagues})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatusFilter(r *http.Request) (*runs.Status, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, nil
	}
	var status runs.Status
	switch strings.ToLower(raw) {
	case "running":
		status = runs.StatusRunning
	case "success":
		status = runs.StatusSuccess
	case "error", "failed", "failure":
		status = runs.StatusError
	default:
		return nil, errors.New("invalid status")
	}
	return &status, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestIDFrom(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func (s *Server) apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				s.writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
