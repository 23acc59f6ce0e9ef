package crawl

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// PacingConfig holds the three delay budgets applied between units of work.
// Matches are the cheapest tier and countries the most sensitive, so the
// budgets are expected to grow tier by tier.
type PacingConfig struct {
	MatchDelay    time.Duration `mapstructure:"match_delay"`
	MatchJitter   time.Duration `mapstructure:"match_jitter"`
	LeagueDelay   time.Duration `mapstructure:"league_delay"`
	LeagueJitter  time.Duration `mapstructure:"league_jitter"`
	CountryDelay  time.Duration `mapstructure:"country_delay"`
	CountryJitter time.Duration `mapstructure:"country_jitter"`
}

// Validate rejects negative budgets.
func (c PacingConfig) Validate() error {
	for _, d := range []time.Duration{
		c.MatchDelay, c.MatchJitter,
		c.LeagueDelay, c.LeagueJitter,
		c.CountryDelay, c.CountryJitter,
	} {
		if d < 0 {
			return errors.New("pacing delays must not be negative")
		}
	}
	return nil
}

// Pacer sleeps a fixed base plus uniform jitter between consecutive units of
// work. Each tier is an independent budget, not a shared token bucket.
type Pacer struct {
	cfg PacingConfig
}

// NewPacer validates cfg and builds a Pacer.
func NewPacer(cfg PacingConfig) (*Pacer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pacing config: %w", err)
	}
	return &Pacer{cfg: cfg}, nil
}

// BetweenMatches paces consecutive match-detail fetches.
func (p *Pacer) BetweenMatches(ctx context.Context) error {
	return p.pause(ctx, p.cfg.MatchDelay, p.cfg.MatchJitter)
}

// BetweenLeagues paces consecutive league units within one country.
func (p *Pacer) BetweenLeagues(ctx context.Context) error {
	return p.pause(ctx, p.cfg.LeagueDelay, p.cfg.LeagueJitter)
}

// BetweenCountries paces the transition to a new country.
func (p *Pacer) BetweenCountries(ctx context.Context) error {
	return p.pause(ctx, p.cfg.CountryDelay, p.cfg.CountryJitter)
}

func (p *Pacer) pause(ctx context.Context, base, jitter time.Duration) error {
	d := base + randomJitter(jitter)
	if d <= 0 {
		return ctx.Err()
	}
	return sleepCtx(ctx, d)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
