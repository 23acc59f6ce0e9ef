// Package browser defines the automation driver surface consumed by the
// crawler and the page pool built on top of it.
package browser

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by the pool.
var (
	// ErrPoolDestroyed rejects any pool operation after Destroy.
	ErrPoolDestroyed = errors.New("page pool is destroyed")
	// ErrAcquireTimeout signals the wait for a released page exceeded the
	// acquire budget.
	ErrAcquireTimeout = errors.New("timed out waiting for a pooled page")
	// ErrCreateTimeout signals the driver did not produce a page within the
	// acquire budget.
	ErrCreateTimeout = errors.New("timed out creating a page")
)

// BlankURL is the neutral location pages are parked on between uses.
const BlankURL = "about:blank"

// Options configures a browser launch.
type Options struct {
	// Headless hides the browser UI; disable for local debugging.
	Headless bool
	// UserAgent overrides the default agent string when non-empty.
	UserAgent string
	// ExecPath points at a specific browser binary; empty uses the driver's
	// default resolution.
	ExecPath string
	// NavigationTimeout bounds each Navigate call issued through a page.
	NavigationTimeout time.Duration
}

// Driver launches browser processes.
type Driver interface {
	Launch(ctx context.Context, opts Options) (Browser, error)
}

// Browser owns page handles.
type Browser interface {
	// NewPage creates a fresh page. Implementations must respect ctx; the
	// pool enforces its creation timeout through the context deadline.
	NewPage(ctx context.Context) (Page, error)
	// Close tears down the browser and every remaining page.
	Close(ctx context.Context) error
}

// Page is one automation tab.
type Page interface {
	// Navigate loads url and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
	// Count reports how many nodes currently match the CSS selector.
	Count(ctx context.Context, selector string) (int, error)
	// Click dispatches a click on the first node matching the selector.
	Click(ctx context.Context, selector string) error
	// IsClosed reports whether the page has been torn down.
	IsClosed() bool
	// Close releases the page.
	Close(ctx context.Context) error
}

// Clock abstracts time for pool idle accounting.
type Clock interface {
	Now() time.Time
}
