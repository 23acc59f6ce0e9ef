package headless

import (
	"context"
	"errors"

	"github.com/fixturelab/matchday-crawler/internal/browser"
)

// NoopDriver implements browser.Driver but always fails, for builds and
// environments where no Chrome binary is available.
type NoopDriver struct{}

// NewNoopDriver creates a driver that refuses to launch.
func NewNoopDriver() *NoopDriver {
	return &NoopDriver{}
}

// Launch returns an error since this is a stub implementation.
func (NoopDriver) Launch(context.Context, browser.Options) (browser.Browser, error) {
	return nil, errors.New("headless browser not available in this build")
}
