package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/browser"
	"github.com/fixturelab/matchday-crawler/internal/cache"
	"github.com/fixturelab/matchday-crawler/internal/events"
	"github.com/fixturelab/matchday-crawler/internal/fetch"
	"github.com/fixturelab/matchday-crawler/internal/progress"
)

// Config shapes one crawl run: which leagues to visit, how the site is laid
// out, and how aggressively to page and pace.
type Config struct {
	BaseURL    string           `mapstructure:"base_url"`
	Targets    []Target         `mapstructure:"targets"`
	Selectors  Selectors        `mapstructure:"selectors"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Pacing     PacingConfig     `mapstructure:"pacing"`
	// SeasonLimit caps the seasons crawled per league; 0 crawls every season
	// the archive lists.
	SeasonLimit int `mapstructure:"season_limit"`
	// SaveEvery persists the merged league file after this many new records;
	// 0 saves once per league at the end.
	SaveEvery int `mapstructure:"save_every"`
}

// Validate checks the run shape before any browser work starts.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if len(c.Targets) == 0 {
		return errors.New("at least one crawl target is required")
	}
	for i, t := range c.Targets {
		if t.Country == "" || t.League == "" {
			return fmt.Errorf("target %d: country and league are required", i)
		}
	}
	if c.SeasonLimit < 0 {
		return errors.New("season_limit must not be negative")
	}
	if c.SaveEvery < 0 {
		return errors.New("save_every must not be negative")
	}
	return nil
}

// Deps collects the orchestrator's collaborators. Driver, Store, and Clock
// are required; the rest degrade gracefully when absent.
type Deps struct {
	Driver   browser.Driver
	Browser  browser.Options
	Pool     browser.PoolConfig
	Registry *events.Registry

	Fetcher  fetch.Fetcher
	Detector *fetch.Detector

	Store     MatchStore
	Cache     *cache.Store[MatchRecord]
	Keys      *cache.KeyGenerator
	Progress  progress.Emitter
	Publisher Publisher
	Clock     Clock
	Logger    *zap.Logger
}

// Orchestrator walks the configured targets: discover seasons, expand each
// listing to exhaustion, fetch detail for unseen match ids, and merge into
// the per-league files. One run owns one browser instance and one page pool.
type Orchestrator struct {
	cfg       Config
	urls      *URLBuilder
	parser    *Parser
	paginator *Paginator
	pacer     *Pacer

	driver      browser.Driver
	browserOpts browser.Options
	poolCfg     browser.PoolConfig
	registry    *events.Registry

	fetcher   fetch.Fetcher
	detector  *fetch.Detector
	store     MatchStore
	cache     *cache.Store[MatchRecord]
	keys      *cache.KeyGenerator
	progress  progress.Emitter
	publisher Publisher
	clock     Clock
	logger    *zap.Logger

	mu   sync.Mutex
	pool *browser.Pool
}

// New validates cfg and deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl config: %w", err)
	}
	if cfg.Selectors == (Selectors{}) {
		cfg.Selectors = DefaultSelectors()
	}
	if deps.Driver == nil {
		return nil, errors.New("browser driver is required")
	}
	if deps.Store == nil {
		return nil, errors.New("match store is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if (deps.Cache == nil) != (deps.Keys == nil) {
		return nil, errors.New("cache and key generator must be provided together")
	}
	if err := deps.Pool.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("crawl")

	urls, err := NewURLBuilder(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	paginator, err := NewPaginator(cfg.Pagination, logger)
	if err != nil {
		return nil, err
	}
	pacer, err := NewPacer(cfg.Pacing)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:         cfg,
		urls:        urls,
		parser:      NewParser(cfg.Selectors),
		paginator:   paginator,
		pacer:       pacer,
		driver:      deps.Driver,
		browserOpts: deps.Browser,
		poolCfg:     deps.Pool,
		registry:    deps.Registry,
		fetcher:     deps.Fetcher,
		detector:    deps.Detector,
		store:       deps.Store,
		cache:       deps.Cache,
		keys:        deps.Keys,
		progress:    deps.Progress,
		publisher:   deps.Publisher,
		clock:       deps.Clock,
		logger:      logger,
	}, nil
}

// Run executes one full crawl. Only a browser launch failure is fatal; every
// per-unit failure is logged, counted, and skipped. The returned Report is
// meaningful even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context, runID string) (Report, error) {
	start := o.clock.Now()
	var report Report
	o.emit(progress.Event{RunID: runID, TS: start, Stage: progress.StageRunStart})

	b, err := o.driver.Launch(ctx, o.browserOpts)
	if err != nil {
		err = fmt.Errorf("launch browser: %w", err)
		o.finishRun(runID, report, start, err)
		return report, err
	}
	pool, perr := browser.NewPool(o.poolCfg, b, o.clock, o.registry, o.logger)
	if perr == nil {
		perr = pool.Start(ctx)
	}
	if perr != nil {
		o.closeBrowser(b)
		perr = fmt.Errorf("start page pool: %w", perr)
		o.finishRun(runID, report, start, perr)
		return report, perr
	}
	o.setPool(pool)
	defer func() {
		o.setPool(nil)
		pool.Destroy(context.Background())
		o.closeBrowser(b)
	}()

	report, err = o.runTargets(ctx, runID, pool)
	o.finishRun(runID, report, start, err)
	return report, err
}

// PoolStats snapshots the active run's page pool. ok is false between runs.
func (o *Orchestrator) PoolStats() (browser.PoolStats, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pool == nil {
		return browser.PoolStats{}, false
	}
	return o.pool.Stats(), true
}

func (o *Orchestrator) runTargets(ctx context.Context, runID string, pool *browser.Pool) (Report, error) {
	var report Report
	lastCountry := ""
	for i, target := range o.cfg.Targets {
		if i > 0 {
			var paceErr error
			if target.Country != lastCountry {
				paceErr = o.pacer.BetweenCountries(ctx)
			} else {
				paceErr = o.pacer.BetweenLeagues(ctx)
			}
			if paceErr != nil {
				return report, fmt.Errorf("run interrupted: %w", paceErr)
			}
		}
		lastCountry = target.Country

		unit, err := o.crawlLeague(ctx, runID, pool, target)
		report.add(unit)
		if err != nil {
			return report, fmt.Errorf("run interrupted: %w", err)
		}
	}
	return report, nil
}

// crawlLeague processes every season of one (country, league) target. The
// returned error is non-nil only when ctx was canceled mid-unit.
func (o *Orchestrator) crawlLeague(ctx context.Context, runID string, pool *browser.Pool, target Target) (Report, error) {
	logger := o.logger.With(zap.String("country", target.Country), zap.String("league", target.League))
	var uc unitCounters
	o.emit(progress.Event{
		RunID: runID, TS: o.clock.Now(), Stage: progress.StageUnitStart,
		Country: target.Country, League: target.League,
	})

	records, err := o.store.Load(ctx, target.Country, target.League)
	if err != nil {
		// Without the persisted set a save could shrink the league file, so
		// the unit is abandoned rather than crawled blind.
		logger.Error("load persisted league file failed", zap.Error(err))
		o.emitUnitEnd(runID, target, uc, fmt.Sprintf("load league file: %v", err))
		return uc.report(), ctx.Err()
	}
	if records == nil {
		records = make(map[string]MatchRecord)
	}

	seasons := o.discoverSeasons(ctx, runID, pool, target, logger)
	for _, season := range seasons {
		if err := o.crawlSeason(ctx, runID, pool, target, season, records, &uc, logger); err != nil {
			o.emitUnitEnd(runID, target, uc, fmt.Sprintf("interrupted: %v", err))
			return uc.report(), err
		}
	}

	saveNote := ""
	var uri string
	if uc.newRecords > 0 {
		uri, err = o.store.Save(ctx, target.Country, target.League, records)
		if err != nil {
			logger.Error("save league file failed", zap.Error(err))
			saveNote = fmt.Sprintf("save league file: %v", err)
		}
	}
	o.emitUnitEnd(runID, target, uc, saveNote)
	if saveNote == "" {
		o.publishCompletion(ctx, runID, target, len(records), uc.newRecords, uri)
	}
	logger.Info("league crawled",
		zap.Int("seasons", len(seasons)),
		zap.Int("attempted", uc.attempted),
		zap.Int("succeeded", uc.succeeded),
		zap.Int("failed", uc.failed),
		zap.Int("skipped", uc.skipped),
		zap.Int("load_more_clicks", uc.clicks),
		zap.Int("cache_hits", uc.cacheHits),
	)
	return uc.report(), nil
}

// discoverSeasons probes the archive statically first and renders it in the
// browser when the probe looks JS-shelled or fails. Any discovery failure
// falls back to the current season only.
func (o *Orchestrator) discoverSeasons(
	ctx context.Context,
	runID string,
	pool *browser.Pool,
	target Target,
	logger *zap.Logger,
) []Season {
	archiveURL := o.urls.SeasonArchive(target)
	html := o.probeArchive(ctx, archiveURL, logger)
	if html == "" {
		rendered, err := o.renderPage(ctx, pool, archiveURL)
		if err != nil {
			logger.Warn("season discovery failed, falling back to current season", zap.Error(err))
			return o.currentSeasonOnly(runID, target)
		}
		html = rendered
	}

	seasons, err := o.parser.Seasons(html, o.urls.Resolve)
	if err != nil || len(seasons) == 0 {
		logger.Warn("season archive yielded no seasons, falling back to current season", zap.Error(err))
		return o.currentSeasonOnly(runID, target)
	}
	if o.cfg.SeasonLimit > 0 && len(seasons) > o.cfg.SeasonLimit {
		seasons = seasons[:o.cfg.SeasonLimit]
	}
	o.emit(progress.Event{
		RunID: runID, TS: o.clock.Now(), Stage: progress.StageSeasonsDiscovered,
		Country: target.Country, League: target.League, Seasons: len(seasons),
	})
	return seasons
}

func (o *Orchestrator) probeArchive(ctx context.Context, archiveURL string, logger *zap.Logger) string {
	if o.fetcher == nil {
		return ""
	}
	resp, err := o.fetcher.Fetch(ctx, fetch.Request{URL: archiveURL})
	if err != nil {
		logger.Debug("static archive probe failed", zap.Error(err))
		return ""
	}
	if resp.StatusCode >= 400 {
		logger.Debug("static archive probe rejected", zap.Int("status", resp.StatusCode))
		return ""
	}
	if o.detector != nil && o.detector.NeedsBrowser(resp.Body) {
		logger.Debug("archive looks JS-rendered, using browser for discovery")
		return ""
	}
	return string(resp.Body)
}

func (o *Orchestrator) currentSeasonOnly(runID string, target Target) []Season {
	o.emit(progress.Event{
		RunID: runID, TS: o.clock.Now(), Stage: progress.StageSeasonsDiscovered,
		Country: target.Country, League: target.League, Seasons: 1,
		Note: "archive unavailable, current season only",
	})
	return []Season{{Name: "current", URL: o.urls.LeagueResults(target)}}
}

// crawlSeason expands one season listing and fetches detail for every
// candidate id not already persisted.
func (o *Orchestrator) crawlSeason(
	ctx context.Context,
	runID string,
	pool *browser.Pool,
	target Target,
	season Season,
	records map[string]MatchRecord,
	uc *unitCounters,
	logger *zap.Logger,
) error {
	ids, clicks, err := o.expandListing(ctx, pool, season.URL)
	uc.clicks += clicks
	if clicks > 0 {
		o.emit(progress.Event{
			RunID: runID, TS: o.clock.Now(), Stage: progress.StageLoadMore,
			Country: target.Country, League: target.League, Season: season.Name,
			Clicks: clicks,
		})
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("season listing failed", zap.String("season", season.Name), zap.Error(err))
		return nil
	}
	logger.Debug("season listing expanded",
		zap.String("season", season.Name),
		zap.Int("candidates", len(ids)),
		zap.Int("clicks", clicks),
	)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := records[id]; ok {
			uc.skipped++
			continue
		}
		uc.attempted++

		if rec, ok := o.cachedDetail(id); ok {
			records[id] = rec
			uc.succeeded++
			uc.cacheHits++
			uc.recordNew()
			o.emit(progress.Event{
				RunID: runID, TS: o.clock.Now(), Stage: progress.StageMatchFetched,
				Country: target.Country, League: target.League, Season: season.Name,
				MatchID: id, FromCache: true,
			})
			o.maybeFlush(ctx, target, records, uc, logger)
			continue
		}

		if uc.liveFetches > 0 {
			if err := o.pacer.BetweenMatches(ctx); err != nil {
				return err
			}
		}
		uc.liveFetches++
		rec, dur, err := o.fetchMatchDetail(ctx, pool, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			uc.failed++
			logger.Warn("match detail fetch failed", zap.String("match_id", id), zap.Error(err))
			continue
		}
		records[id] = rec
		uc.succeeded++
		uc.recordNew()
		o.cacheDetail(id, rec, logger)
		o.emit(progress.Event{
			RunID: runID, TS: o.clock.Now(), Stage: progress.StageMatchFetched,
			Country: target.Country, League: target.League, Season: season.Name,
			MatchID: id, Dur: dur,
		})
		o.maybeFlush(ctx, target, records, uc, logger)
	}
	return nil
}

// expandListing renders a season listing, clicks load-more to exhaustion, and
// extracts the candidate match ids.
func (o *Orchestrator) expandListing(ctx context.Context, pool *browser.Pool, listingURL string) ([]string, int, error) {
	pp, err := pool.Acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer pool.Release(pp)
	page := pp.Page()

	if err := page.Navigate(ctx, listingURL); err != nil {
		return nil, 0, fmt.Errorf("navigate listing: %w", err)
	}
	clicks, err := o.paginator.ExpandAll(ctx, page, o.cfg.Selectors.MatchRow, o.cfg.Selectors.LoadMore)
	if err != nil {
		return nil, clicks, err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, clicks, fmt.Errorf("read listing: %w", err)
	}
	ids, err := o.parser.MatchIDs(html)
	if err != nil {
		return nil, clicks, err
	}
	return ids, clicks, nil
}

// fetchMatchDetail loads the summary panel (required) and the statistics
// panel (optional) for one match.
func (o *Orchestrator) fetchMatchDetail(ctx context.Context, pool *browser.Pool, id string) (MatchRecord, time.Duration, error) {
	start := o.clock.Now()
	pp, err := pool.Acquire(ctx)
	if err != nil {
		return MatchRecord{}, 0, err
	}
	defer pool.Release(pp)
	page := pp.Page()

	if err := page.Navigate(ctx, o.urls.MatchSummary(id)); err != nil {
		return MatchRecord{}, 0, fmt.Errorf("navigate summary: %w", err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return MatchRecord{}, 0, fmt.Errorf("read summary: %w", err)
	}
	rec, err := o.parser.MatchDetail(id, html)
	if err != nil {
		return MatchRecord{}, 0, err
	}

	// Not every competition publishes statistics; failures here degrade to a
	// record without rows.
	if navErr := page.Navigate(ctx, o.urls.MatchStatistics(id)); navErr != nil {
		o.logger.Debug("statistics navigation failed", zap.String("match_id", id), zap.Error(navErr))
	} else if statsHTML, htmlErr := page.HTML(ctx); htmlErr != nil {
		o.logger.Debug("statistics read failed", zap.String("match_id", id), zap.Error(htmlErr))
	} else if rows, parseErr := o.parser.Statistics(statsHTML); parseErr != nil {
		o.logger.Debug("statistics parse failed", zap.String("match_id", id), zap.Error(parseErr))
	} else {
		rec.Statistics = rows
	}

	rec.FetchedAt = o.clock.Now()
	return rec, o.clock.Now().Sub(start), nil
}

func (o *Orchestrator) cachedDetail(id string) (MatchRecord, bool) {
	if o.cache == nil {
		return MatchRecord{}, false
	}
	return o.cache.Get(o.keys.Match(id))
}

func (o *Orchestrator) cacheDetail(id string, rec MatchRecord, logger *zap.Logger) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(o.keys.Match(id), rec); err != nil {
		logger.Debug("cache match detail failed", zap.String("match_id", id), zap.Error(err))
	}
}

func (o *Orchestrator) maybeFlush(
	ctx context.Context,
	target Target,
	records map[string]MatchRecord,
	uc *unitCounters,
	logger *zap.Logger,
) {
	if o.cfg.SaveEvery <= 0 || uc.unsaved < o.cfg.SaveEvery {
		return
	}
	if _, err := o.store.Save(ctx, target.Country, target.League, records); err != nil {
		logger.Warn("incremental save failed", zap.Error(err))
		return
	}
	uc.unsaved = 0
}

func (o *Orchestrator) publishCompletion(ctx context.Context, runID string, target Target, total, fresh int, uri string) {
	if o.publisher == nil || fresh == 0 {
		return
	}
	c := Completion{
		RunID:       runID,
		Country:     target.Country,
		League:      target.League,
		Matches:     total,
		NewMatches:  fresh,
		URI:         uri,
		CompletedAt: o.clock.Now(),
	}
	if err := o.publisher.Publish(ctx, c); err != nil {
		o.logger.Warn("league completion publish failed",
			zap.String("country", target.Country),
			zap.String("league", target.League),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) emitUnitEnd(runID string, target Target, uc unitCounters, note string) {
	stage := progress.StageUnitDone
	if note != "" {
		stage = progress.StageUnitError
	}
	o.emit(progress.Event{
		RunID: runID, TS: o.clock.Now(), Stage: stage,
		Country: target.Country, League: target.League,
		Attempted: uc.attempted, Succeeded: uc.succeeded,
		Failed: uc.failed, Skipped: uc.skipped, Clicks: uc.clicks,
		Note: note,
	})
}

func (o *Orchestrator) finishRun(runID string, report Report, start time.Time, err error) {
	dur := o.clock.Now().Sub(start)
	evt := progress.Event{
		RunID: runID, TS: o.clock.Now(), Dur: dur,
		Attempted: report.Attempted, Succeeded: report.Succeeded,
		Failed: report.Failed, Skipped: report.Skipped, Clicks: report.LoadMoreClicks,
	}
	if err != nil {
		evt.Stage = progress.StageRunError
		evt.Note = err.Error()
		o.emit(evt)
		o.logger.Error("crawl run failed", zap.String("run_id", runID), zap.Duration("dur", dur), zap.Error(err))
		return
	}
	evt.Stage = progress.StageRunDone
	o.emit(evt)
	o.logger.Info("crawl run complete",
		zap.String("run_id", runID),
		zap.Duration("dur", dur),
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("load_more_clicks", report.LoadMoreClicks),
		zap.Int("cache_hits", report.CacheHits),
	)
}

func (o *Orchestrator) renderPage(ctx context.Context, pool *browser.Pool, url string) (string, error) {
	pp, err := pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer pool.Release(pp)
	page := pp.Page()
	if err := page.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return html, nil
}

func (o *Orchestrator) closeBrowser(b browser.Browser) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := b.Close(ctx); err != nil {
		o.logger.Warn("browser close failed", zap.Error(err))
	}
}

func (o *Orchestrator) setPool(p *browser.Pool) {
	o.mu.Lock()
	o.pool = p
	o.mu.Unlock()
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.progress == nil {
		return
	}
	o.progress.Emit(evt)
}

// unitCounters tracks one league unit. liveFetches counts only browser
// fetches so pacing skips cache hits; unsaved drives incremental saves.
type unitCounters struct {
	attempted   int
	succeeded   int
	failed      int
	skipped     int
	clicks      int
	cacheHits   int
	newRecords  int
	unsaved     int
	liveFetches int
}

func (c *unitCounters) recordNew() {
	c.newRecords++
	c.unsaved++
}

func (c unitCounters) report() Report {
	return Report{
		Attempted:      c.attempted,
		Succeeded:      c.succeeded,
		Failed:         c.failed,
		Skipped:        c.skipped,
		LoadMoreClicks: c.clicks,
		CacheHits:      c.cacheHits,
	}
}

func (r *Report) add(u Report) {
	r.Attempted += u.Attempted
	r.Succeeded += u.Succeeded
	r.Failed += u.Failed
	r.Skipped += u.Skipped
	r.LoadMoreClicks += u.LoadMoreClicks
	r.CacheHits += u.CacheHits
}
