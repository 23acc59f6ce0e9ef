// Package events carries lifecycle notifications emitted by the cache store
// and the page pool. Listeners register explicitly and receive events
// synchronously on the emitting goroutine.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type tags an Event with the operation that produced it.
type Type string

// Cache store event types.
const (
	CacheSet    Type = "SET"
	CacheHit    Type = "HIT"
	CacheMiss   Type = "MISS"
	CacheDelete Type = "DELETE"
	CacheClear  Type = "CLEAR"
)

// Page pool event types.
const (
	PageCreated   Type = "PAGE_CREATED"
	PageActivated Type = "PAGE_ACTIVATED"
	PageReleased  Type = "PAGE_RELEASED"
	PageRemoved   Type = "PAGE_REMOVED"
	IdleCleanup   Type = "IDLE_CLEANUP"
)

// Event describes one cache or pool occurrence.
type Event struct {
	// Type denotes which operation occurred.
	Type Type
	// Key is the cache key for cache events; empty for pool events.
	Key string
	// PageID identifies the pooled page for pool events; empty for cache events.
	PageID string
	// Count carries an operation-specific total (entries cleared, idle pages
	// reaped); zero when not applicable.
	Count int
	// At is the UTC timestamp recorded by the emitter.
	At time.Time
}

// Listener receives events synchronously. Implementations must return quickly;
// a slow listener stalls the emitting operation.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(Event)

// HandleEvent calls f.
func (f ListenerFunc) HandleEvent(evt Event) { f(evt) }

type registration struct {
	id       int
	listener Listener
}

// Registry dispatches events to registered listeners in registration order.
// A panic inside one listener is recovered and logged; it reaches neither the
// emitting operation nor the remaining listeners.
type Registry struct {
	logger *zap.Logger

	mu     sync.RWMutex
	regs   []registration
	nextID int
}

// NewRegistry creates a Registry logging through the provided logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger.Named("events")}
}

// AddListener registers l and returns a token for RemoveListener.
func (r *Registry) AddListener(l Listener) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.regs = append(r.regs, registration{id: r.nextID, listener: l})
	return r.nextID
}

// RemoveListener drops the registration identified by token. Unknown tokens
// are ignored.
func (r *Registry) RemoveListener(token int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.regs {
		if reg.id == token {
			r.regs = append(r.regs[:i], r.regs[i+1:]...)
			return
		}
	}
}

// Len reports the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}

// Emit dispatches evt to every registered listener. The listener set is
// snapshotted first so listeners may add or remove registrations from within
// their handler.
func (r *Registry) Emit(evt Event) {
	r.mu.RLock()
	regs := make([]registration, len(r.regs))
	copy(regs, r.regs)
	r.mu.RUnlock()

	for _, reg := range regs {
		r.dispatch(reg, evt)
	}
}

func (r *Registry) dispatch(reg registration, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event listener panicked",
				zap.Int("listener", reg.id),
				zap.String("type", string(evt.Type)),
				zap.Any("panic", rec))
		}
	}()
	reg.listener.HandleEvent(evt)
}
