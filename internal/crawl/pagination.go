package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/browser"
)

// PaginationConfig bounds the "load more" expansion loop.
type PaginationConfig struct {
	// MaxClicks is the absolute attempt ceiling per listing.
	MaxClicks int `mapstructure:"max_clicks"`
	// MaxNoProgress stops after this many consecutive clicks without growth.
	MaxNoProgress int `mapstructure:"max_no_progress"`
	// SettleDelay is the wait between a click and the recount.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// ClickTimeout bounds each click dispatch; a timeout reads as exhaustion.
	ClickTimeout time.Duration `mapstructure:"click_timeout"`
}

// Validate checks the ceilings are usable.
func (c PaginationConfig) Validate() error {
	if c.MaxClicks <= 0 {
		return errors.New("pagination max_clicks must be positive")
	}
	if c.MaxNoProgress <= 0 {
		return errors.New("pagination max_no_progress must be positive")
	}
	if c.SettleDelay < 0 {
		return errors.New("pagination settle_delay must not be negative")
	}
	if c.ClickTimeout <= 0 {
		return errors.New("pagination click_timeout must be positive")
	}
	return nil
}

// Paginator drives a "load more" control until the listing stops growing.
type Paginator struct {
	cfg    PaginationConfig
	logger *zap.Logger
}

// NewPaginator validates cfg and builds a Paginator.
func NewPaginator(cfg PaginationConfig, logger *zap.Logger) (*Paginator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pagination config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{cfg: cfg, logger: logger.Named("paginator")}, nil
}

// ExpandAll clicks the load-more control until the listing is exhausted or a
// ceiling is hit. It returns the number of clicks issued. An absent control
// or a failed click both read as exhaustion; only ctx cancellation is an
// error.
func (p *Paginator) ExpandAll(ctx context.Context, page browser.Page, rowSelector, moreSelector string) (int, error) {
	clicks := 0
	noProgress := 0
	count, err := page.Count(ctx, rowSelector)
	if err != nil {
		return 0, fmt.Errorf("count listing rows: %w", err)
	}

	for clicks < p.cfg.MaxClicks && noProgress < p.cfg.MaxNoProgress {
		if err := ctx.Err(); err != nil {
			return clicks, fmt.Errorf("pagination interrupted: %w", err)
		}
		controls, err := page.Count(ctx, moreSelector)
		if err != nil || controls == 0 {
			break
		}
		clickCtx, cancel := context.WithTimeout(ctx, p.cfg.ClickTimeout)
		clickErr := page.Click(clickCtx, moreSelector)
		cancel()
		if clickErr != nil {
			if ctx.Err() != nil {
				return clicks, fmt.Errorf("pagination interrupted: %w", ctx.Err())
			}
			p.logger.Debug("load more click failed, treating listing as exhausted", zap.Error(clickErr))
			break
		}
		clicks++

		if err := sleepCtx(ctx, p.cfg.SettleDelay); err != nil {
			return clicks, fmt.Errorf("pagination interrupted: %w", err)
		}
		next, err := page.Count(ctx, rowSelector)
		if err != nil {
			if ctx.Err() != nil {
				return clicks, fmt.Errorf("pagination interrupted: %w", ctx.Err())
			}
			p.logger.Debug("recount after load more failed", zap.Error(err))
			break
		}
		if next == count {
			noProgress++
		} else {
			noProgress = 0
			count = next
		}
	}
	return clicks, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
