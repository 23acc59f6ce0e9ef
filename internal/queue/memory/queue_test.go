package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fixturelab/matchday-crawler/internal/queue"
)

func TestQueueTryEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan queue.Request, 1)
	errCh := make(chan error, 1)

	go func() {
		req, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- req
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	req := queue.Request{RunID: "run-1", Note: "nightly", EnqueuedAt: time.Now()}
	if err := q.TryEnqueue(req); err != nil {
		t.Fatalf("TryEnqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.RunID != "run-1" || got.Note != "nightly" {
			t.Fatalf("expected run-1, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return request")
	}
}

func TestQueueTryEnqueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if err := q.TryEnqueue(queue.Request{RunID: "run-1"}); err != nil {
		t.Fatalf("failed to prime queue: %v", err)
	}
	if err := q.TryEnqueue(queue.Request{RunID: "run-2"}); !errors.Is(err, queue.ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if got := q.Len(); got != 1 {
		t.Fatalf("expected 1 pending request, got %d", got)
	}
}

func TestQueueDequeueCancelation(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.TryEnqueue(queue.Request{RunID: "run-1"}); err != nil {
		t.Fatalf("failed to prime queue: %v", err)
	}
	q.Close()

	if err := q.TryEnqueue(queue.Request{RunID: "run-2"}); !errors.Is(err, queue.ErrClosed) {
		t.Fatalf("expected ErrClosed on enqueue, got %v", err)
	}

	// Pending requests drain before the closed state surfaces.
	req, err := q.Dequeue(context.Background())
	if err != nil || req.RunID != "run-1" {
		t.Fatalf("expected drained run-1, got %+v err=%v", req, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, queue.ErrClosed) {
		t.Fatalf("expected ErrClosed on dequeue, got %v", err)
	}

	// Closing twice should be safe.
	q.Close()
}
