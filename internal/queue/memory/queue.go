// Package memory provides the channel-backed run queue used by every
// deployment mode. Requests are cheap to resubmit, so nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fixturelab/matchday-crawler/internal/queue"
)

// Queue is a bounded in-memory run queue with context-aware dequeue.
type Queue struct {
	ch      chan queue.Request
	closeMu sync.Mutex
	closed  bool
}

var _ queue.Queue = (*Queue)(nil)

// NewQueue constructs a queue holding at most capacity pending requests.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan queue.Request, capacity),
	}
}

// TryEnqueue adds the request if capacity remains. The close mutex is held
// across the send so a concurrent Close cannot panic the channel.
func (q *Queue) TryEnqueue(req queue.Request) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	select {
	case q.ch <- req:
		return nil
	default:
		return queue.ErrFull
	}
}

// Dequeue pops the next request, respecting context cancellation. After Close
// it drains any pending requests before reporting ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (queue.Request, error) {
	select {
	case <-ctx.Done():
		return queue.Request{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return queue.Request{}, queue.ErrClosed
		}
		return req, nil
	}
}

// Len reports how many requests are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
