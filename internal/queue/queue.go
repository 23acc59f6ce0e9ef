// Package queue defines the bounded handoff between the API surface and the
// crawl runner. Requests are accepted only while capacity remains, so callers
// get immediate backpressure instead of unbounded buffering.
package queue

import (
	"context"
	"errors"
	"time"
)

// Request asks for one full crawl run.
type Request struct {
	// RunID is assigned by the submitter and identifies the run everywhere:
	// progress events, run history, published completions.
	RunID string
	// Note is an optional operator annotation, logged when the run starts.
	Note string
	// EnqueuedAt is when the request entered the queue.
	EnqueuedAt time.Time
}

// ErrFull is returned by TryEnqueue when the queue is at capacity.
var ErrFull = errors.New("queue full")

// ErrClosed is returned once the queue has shut down.
var ErrClosed = errors.New("queue closed")

// Queue is the run-request pipe. Producers use TryEnqueue for non-blocking
// submission; the consumer blocks on Dequeue until work or cancellation.
type Queue interface {
	// TryEnqueue adds the request without blocking. It returns ErrFull when
	// capacity is exhausted and ErrClosed after Close.
	TryEnqueue(req Request) error
	// Dequeue pops the next request, waiting until one arrives, the context
	// ends, or the queue closes.
	Dequeue(ctx context.Context) (Request, error)
	// Len reports how many requests are waiting.
	Len() int
	// Close shuts the queue; pending requests remain readable. Close is
	// idempotent.
	Close()
}
