// Package memory holds an in-process completion publisher. It backs tests and
// deployments that run without a message broker.
package memory

import (
	"context"
	"sync"

	"github.com/fixturelab/matchday-crawler/internal/crawl"
)

// Publisher records every completion it is handed.
type Publisher struct {
	mu          sync.RWMutex
	completions []crawl.Completion
}

var _ crawl.Publisher = (*Publisher)(nil)

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish stores the completion. It never fails.
func (p *Publisher) Publish(_ context.Context, c crawl.Completion) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completions = append(p.completions, c)
	return nil
}

// Completions returns a copy of everything published so far.
func (p *Publisher) Completions() []crawl.Completion {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawl.Completion, len(p.completions))
	copy(out, p.completions)
	return out
}
