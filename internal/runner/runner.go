// Package runner executes crawl runs sequentially off the bounded request
// queue. One run owns the whole browser budget, so requests never overlap.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/crawl"
	"github.com/fixturelab/matchday-crawler/internal/queue"
)

// Orchestrator is the slice of the crawl engine the runner drives.
type Orchestrator interface {
	Run(ctx context.Context, runID string) (crawl.Report, error)
}

// IDGenerator mints run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Runner drains the queue one request at a time.
type Runner struct {
	queue  queue.Queue
	orch   Orchestrator
	ids    IDGenerator
	clock  crawl.Clock
	logger *zap.Logger

	mu      sync.Mutex
	current string
}

// New validates collaborators and returns a Runner.
func New(q queue.Queue, orch Orchestrator, ids IDGenerator, clock crawl.Clock, logger *zap.Logger) (*Runner, error) {
	if q == nil {
		return nil, errors.New("queue is required")
	}
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		queue:  q,
		orch:   orch,
		ids:    ids,
		clock:  clock,
		logger: logger.Named("runner"),
	}, nil
}

// Submit queues a new run and returns its id without waiting for execution.
// Callers map queue.ErrFull to a backpressure response.
func (r *Runner) Submit(note string) (string, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	req := queue.Request{RunID: id, Note: note, EnqueuedAt: r.clock.Now()}
	if err := r.queue.TryEnqueue(req); err != nil {
		return "", err
	}
	r.logger.Info("run queued",
		zap.String("run_id", req.RunID),
		zap.Int("pending", r.queue.Len()),
	)
	return req.RunID, nil
}

// Current reports the id of the run executing right now.
func (r *Runner) Current() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.current != ""
}

// Pending reports how many requests wait in the queue.
func (r *Runner) Pending() int {
	return r.queue.Len()
}

// Run blocks, consuming requests until the context finishes or the queue
// closes.
func (r *Runner) Run(ctx context.Context) {
	for {
		req, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			r.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		r.execute(ctx, req)
	}
}

func (r *Runner) execute(ctx context.Context, req queue.Request) {
	r.setCurrent(req.RunID)
	defer r.setCurrent("")

	logger := r.logger.With(zap.String("run_id", req.RunID))
	fields := []zap.Field{zap.Duration("queue_wait", r.clock.Now().Sub(req.EnqueuedAt))}
	if req.Note != "" {
		fields = append(fields, zap.String("note", req.Note))
	}
	logger.Info("run starting", fields...)

	report, err := r.orch.Run(ctx, req.RunID)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return
	}
	logger.Info("run finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("cache_hits", report.CacheHits),
	)
}

func (r *Runner) setCurrent(id string) {
	r.mu.Lock()
	r.current = id
	r.mu.Unlock()
}
