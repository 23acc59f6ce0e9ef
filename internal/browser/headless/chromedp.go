// Package headless drives real browser tabs via chromedp and headless Chrome.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/fixturelab/matchday-crawler/internal/browser"
)

const defaultNavigationTimeout = 45 * time.Second

// Driver launches a Chrome process through a chromedp exec allocator.
type Driver struct{}

// NewDriver returns the chromedp-backed browser driver.
func NewDriver() *Driver {
	return &Driver{}
}

// Launch starts Chrome and verifies the process came up. The returned Browser
// owns the allocator; Close tears the whole process tree down.
func (Driver) Launch(ctx context.Context, opts browser.Options) (browser.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser; bound it so a broken binary or a
	// missing display fails fast instead of hanging Launch.
	startCtx, cancel := context.WithTimeout(browserCtx, navigationTimeout(opts))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(startCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Browser{
		opts:          opts,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

func allocatorOptions(opts browser.Options) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return allocOpts
}

func navigationTimeout(opts browser.Options) time.Duration {
	if opts.NavigationTimeout > 0 {
		return opts.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// Browser is a running Chrome process. Each NewPage opens a tab in it.
type Browser struct {
	opts          browser.Options
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewPage opens a tab, enables the network domain, and applies the user-agent
// override when one is configured.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	page := &Page{
		tabCtx:     tabCtx,
		tabCancel:  tabCancel,
		navTimeout: navigationTimeout(b.opts),
	}
	if err := page.run(ctx, b.tabSetupAction()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return page, nil
}

func (b *Browser) tabSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.opts.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.opts.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// Close shuts the browser down gracefully and releases the allocator.
func (b *Browser) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.browserCtx) }()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	b.browserCancel()
	b.allocCancel()
	if err != nil {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}

// Page is one Chrome tab. All operations are bounded by the navigation
// timeout and the caller's context, whichever ends first.
type Page struct {
	tabCtx     context.Context
	tabCancel  context.CancelFunc
	navTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Navigate loads the URL and waits for the document body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// HTML returns the full rendered document markup.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// Count evaluates how many elements currently match the selector.
func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := p.run(ctx, chromedp.Evaluate(countExpr(selector), &n)); err != nil {
		return 0, fmt.Errorf("count %q: %w", selector, err)
	}
	return n, nil
}

// Click clicks the first visible element matching the selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// IsClosed reports whether the tab has been closed or its context torn down.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed || p.tabCtx.Err() != nil
}

// Close closes the tab. Closing twice is safe.
func (p *Page) Close(context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.tabCancel()
	return nil
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.IsClosed() {
		return fmt.Errorf("tab is closed")
	}
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.navTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func countExpr(selector string) string {
	return fmt.Sprintf("document.querySelectorAll(%q).length", selector)
}
