package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/events"
)

// closeTimeout bounds page teardown during discard, reaping, and Destroy.
const closeTimeout = 10 * time.Second

// PoolConfig bounds the page pool.
type PoolConfig struct {
	// MinPages is the floor the idle reaper never shrinks below.
	MinPages int `mapstructure:"min_pages"`
	// MaxPages caps how many pages exist at once.
	MaxPages int `mapstructure:"max_pages"`
	// IdleTimeout is how long an unused page may sit idle before reaping.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// AcquireTimeout bounds both page creation and waiting for a release.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	// ReapInterval is the idle reaper's tick period.
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// Validate checks the configuration for internal consistency.
func (c PoolConfig) Validate() error {
	if c.MinPages < 0 {
		return fmt.Errorf("pool.min_pages must be >= 0, got %d", c.MinPages)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("pool.max_pages must be > 0, got %d", c.MaxPages)
	}
	if c.MinPages > c.MaxPages {
		return fmt.Errorf("pool.min_pages %d exceeds pool.max_pages %d", c.MinPages, c.MaxPages)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("pool.acquire_timeout must be positive, got %s", c.AcquireTimeout)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("pool.idle_timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("pool.reap_interval must be positive, got %s", c.ReapInterval)
	}
	return nil
}

// PooledPage pairs a driver page with pool bookkeeping. The pool owns the
// handle's lifecycle; callers use the page between Acquire and Release and
// never close it themselves.
type PooledPage struct {
	id         string
	page       Page
	createdAt  time.Time
	lastUsedAt time.Time
	active     bool
	usageCount int64
}

// ID returns the pool-assigned identifier.
func (p *PooledPage) ID() string { return p.id }

// Page exposes the underlying automation page.
func (p *PooledPage) Page() Page { return p.page }

// PageStats describes one tracked page in a Stats snapshot.
type PageStats struct {
	ID         string        `json:"id"`
	Age        time.Duration `json:"age"`
	IdleFor    time.Duration `json:"idleFor"`
	Active     bool          `json:"active"`
	UsageCount int64         `json:"usageCount"`
}

// PoolStats is a point-in-time pool snapshot.
type PoolStats struct {
	Size      int         `json:"size"`
	Available int         `json:"available"`
	Pages     []PageStats `json:"pages"`
}

// Pool owns a bounded set of automation pages. Idle pages are handed out
// LIFO; when the pool is full, acquirers queue FIFO and releases hand pages
// directly to the longest waiter.
type Pool struct {
	cfg      PoolConfig
	browser  Browser
	clock    Clock
	logger   *zap.Logger
	registry *events.Registry

	mu        sync.Mutex
	pages     map[string]*PooledPage
	idle      []*PooledPage
	waiters   []chan *PooledPage
	creating  int
	nextID    int64
	destroyed bool
	started   bool
	reapStop  chan struct{}
	reapDone  chan struct{}
}

// NewPool creates a Pool over an already-launched browser. The reaper does
// not run until Start.
func NewPool(cfg PoolConfig, b Browser, clk Clock, registry *events.Registry, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("browser is required")
	}
	if clk == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = events.NewRegistry(logger)
	}
	return &Pool{
		cfg:      cfg,
		browser:  b,
		clock:    clk,
		logger:   logger.Named("pool"),
		registry: registry,
		pages:    make(map[string]*PooledPage),
	}, nil
}

// Start warms the pool to its floor and launches the idle reaper. It may be
// called again after Stop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrPoolDestroyed
	}
	if p.started {
		p.mu.Unlock()
		return errors.New("pool already started")
	}
	p.started = true
	stop := make(chan struct{})
	done := make(chan struct{})
	p.reapStop, p.reapDone = stop, done
	p.mu.Unlock()

	if err := p.warmUp(ctx); err != nil {
		return fmt.Errorf("warm pool: %w", err)
	}
	go p.reapLoop(stop, done)
	return nil
}

// Stop halts the idle reaper without touching pooled pages.
func (p *Pool) Stop() {
	p.mu.Lock()
	stop, done := p.reapStop, p.reapDone
	p.reapStop, p.reapDone = nil, nil
	p.started = false
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Acquire returns a page for exclusive use. It pops an idle page when one is
// live, creates a page while under the size cap, and otherwise waits FIFO for
// a release. Every path is bounded by the configured acquire timeout and the
// caller's context.
func (p *Pool) Acquire(ctx context.Context) (*PooledPage, error) {
	for {
		p.mu.Lock()
		if p.destroyed {
			p.mu.Unlock()
			return nil, ErrPoolDestroyed
		}

		if n := len(p.idle); n > 0 {
			pp := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			if pp.page.IsClosed() {
				p.logger.Warn("discarding dead idle page", zap.String("page_id", pp.id))
				p.removePage(pp, "liveness check failed")
				continue
			}
			p.markActive(pp)
			return pp, nil
		}

		if len(p.pages)+p.creating < p.cfg.MaxPages {
			p.creating++
			p.mu.Unlock()
			pp, err := p.createPage(ctx)
			p.mu.Lock()
			p.creating--
			if err != nil {
				p.mu.Unlock()
				p.wakeOneWaiter()
				return nil, err
			}
			if p.destroyed {
				p.mu.Unlock()
				p.closePage(pp)
				return nil, ErrPoolDestroyed
			}
			p.pages[pp.id] = pp
			p.mu.Unlock()
			p.emit(events.PageCreated, pp.id, 0)
			p.markActive(pp)
			return pp, nil
		}

		waiter := make(chan *PooledPage, 1)
		p.waiters = append(p.waiters, waiter)
		p.mu.Unlock()

		pp, err := p.awaitRelease(ctx, waiter)
		if err != nil {
			return nil, err
		}
		if pp == nil {
			continue
		}
		if pp.page.IsClosed() {
			p.logger.Warn("discarding dead handed-off page", zap.String("page_id", pp.id))
			p.removePage(pp, "liveness check failed")
			continue
		}
		return pp, nil
	}
}

// Release returns a page to the pool. The page is parked on a blank document
// first; if that reset fails the page is destroyed rather than pooled.
// Releasing a page the pool does not track is a warned no-op.
func (p *Pool) Release(pp *PooledPage) {
	if pp == nil {
		p.logger.Warn("release of nil page ignored")
		return
	}
	p.mu.Lock()
	tracked, ok := p.pages[pp.id]
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		return
	}
	if !ok || tracked != pp {
		p.logger.Warn("release of unmanaged page ignored", zap.String("page_id", pp.id))
		return
	}

	if err := p.resetPage(pp); err != nil {
		p.logger.Warn("page reset failed, destroying page",
			zap.String("page_id", pp.id),
			zap.Error(err))
		p.removePage(pp, "reset failure")
		return
	}

	p.mu.Lock()
	if p.destroyed {
		// Destroy owns the page now and will close it.
		p.mu.Unlock()
		return
	}
	pp.active = false
	pp.lastUsedAt = p.clock.Now()
	if len(p.waiters) > 0 {
		// Hand-off must be atomic with the queue pop; the waiter channel is
		// buffered so this send never blocks under the lock.
		waiter := p.waiters[0]
		p.waiters = p.waiters[1:]
		pp.active = true
		pp.usageCount++
		waiter <- pp
		p.mu.Unlock()
		p.emit(events.PageReleased, pp.id, 0)
		p.emit(events.PageActivated, pp.id, 0)
		return
	}
	p.idle = append(p.idle, pp)
	p.mu.Unlock()
	p.emit(events.PageReleased, pp.id, 0)
}

// Destroy tears the pool down: it stops the reaper, wakes every waiter with
// ErrPoolDestroyed, and closes all tracked pages, tolerating individual close
// failures. Destroy is idempotent.
func (p *Pool) Destroy(ctx context.Context) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()

	// The reaper must be gone before handles are torn down.
	p.Stop()

	p.mu.Lock()
	waiters := p.waiters
	p.waiters = nil
	pages := make([]*PooledPage, 0, len(p.pages))
	for _, pp := range p.pages {
		pages = append(pages, pp)
	}
	p.pages = make(map[string]*PooledPage)
	p.idle = nil
	p.mu.Unlock()

	for _, waiter := range waiters {
		close(waiter)
	}
	for _, pp := range pages {
		if err := p.closePageCtx(ctx, pp); err != nil {
			p.logger.Warn("closing page during destroy failed",
				zap.String("page_id", pp.id),
				zap.Error(err))
		}
		p.emit(events.PageRemoved, pp.id, 0)
	}
	p.logger.Info("pool destroyed", zap.Int("pages_closed", len(pages)))
}

// Size reports how many pages the pool tracks, including in-flight creations.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages) + p.creating
}

// Available reports how many idle pages could be acquired without waiting.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Stats snapshots the pool without side effects.
func (p *Pool) Stats() PoolStats {
	now := p.clock.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	st := PoolStats{
		Size:      len(p.pages) + p.creating,
		Available: len(p.idle),
		Pages:     make([]PageStats, 0, len(p.pages)),
	}
	for _, pp := range p.pages {
		st.Pages = append(st.Pages, PageStats{
			ID:         pp.id,
			Age:        now.Sub(pp.createdAt),
			IdleFor:    now.Sub(pp.lastUsedAt),
			Active:     pp.active,
			UsageCount: pp.usageCount,
		})
	}
	sort.Slice(st.Pages, func(i, j int) bool { return st.Pages[i].ID < st.Pages[j].ID })
	return st
}

// AddListener registers a pool event listener and returns a removal token.
func (p *Pool) AddListener(l events.Listener) int {
	return p.registry.AddListener(l)
}

// RemoveListener drops a previously registered listener.
func (p *Pool) RemoveListener(token int) {
	p.registry.RemoveListener(token)
}

func (p *Pool) awaitRelease(ctx context.Context, waiter chan *PooledPage) (*PooledPage, error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case pp, ok := <-waiter:
		if !ok {
			return nil, ErrPoolDestroyed
		}
		return pp, nil
	case <-timer.C:
		if pp := p.abandonWaiter(waiter); pp != nil {
			// A release arrived in the same instant; use it.
			return pp, nil
		}
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		if pp := p.abandonWaiter(waiter); pp != nil {
			p.requeue(pp)
		}
		return nil, fmt.Errorf("acquire page: %w", ctx.Err())
	}
}

// abandonWaiter removes the waiter from the queue and drains any page that a
// racing release already handed to it.
func (p *Pool) abandonWaiter(waiter chan *PooledPage) *PooledPage {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	select {
	case pp, ok := <-waiter:
		if !ok {
			return nil
		}
		return pp
	default:
		return nil
	}
}

// requeue puts an already-reset page back in circulation after its designated
// acquirer walked away.
func (p *Pool) requeue(pp *PooledPage) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		p.closePage(pp)
		return
	}
	pp.active = false
	if len(p.waiters) > 0 {
		waiter := p.waiters[0]
		p.waiters = p.waiters[1:]
		pp.active = true
		waiter <- pp
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, pp)
	p.mu.Unlock()
}

func (p *Pool) warmUp(ctx context.Context) error {
	for p.Size() < p.cfg.MinPages {
		pp, err := p.createPage(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		if p.destroyed {
			p.mu.Unlock()
			p.closePage(pp)
			return ErrPoolDestroyed
		}
		p.pages[pp.id] = pp
		pp.active = false
		p.idle = append(p.idle, pp)
		p.mu.Unlock()
		p.emit(events.PageCreated, pp.id, 0)
	}
	return nil
}

func (p *Pool) createPage(ctx context.Context) (*PooledPage, error) {
	createCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	page, err := p.browser.NewPage(createCtx)
	if err != nil {
		if errors.Is(createCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrCreateTimeout, p.cfg.AcquireTimeout)
		}
		return nil, fmt.Errorf("create page: %w", err)
	}
	now := p.clock.Now()
	p.mu.Lock()
	p.nextID++
	id := fmt.Sprintf("page-%d", p.nextID)
	p.mu.Unlock()
	return &PooledPage{
		id:         id,
		page:       page,
		createdAt:  now,
		lastUsedAt: now,
	}, nil
}

func (p *Pool) markActive(pp *PooledPage) {
	p.mu.Lock()
	pp.active = true
	pp.lastUsedAt = p.clock.Now()
	pp.usageCount++
	p.mu.Unlock()
	p.emit(events.PageActivated, pp.id, 0)
}

func (p *Pool) resetPage(pp *PooledPage) error {
	resetCtx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
	defer cancel()
	if pp.page.IsClosed() {
		return errors.New("page already closed")
	}
	if err := pp.page.Navigate(resetCtx, BlankURL); err != nil {
		return fmt.Errorf("navigate to blank: %w", err)
	}
	return nil
}

// removePage drops a page from all tracking, closes it, and wakes one waiter
// so a blocked acquirer can claim the freed capacity.
func (p *Pool) removePage(pp *PooledPage, reason string) {
	p.mu.Lock()
	delete(p.pages, pp.id)
	for i, idle := range p.idle {
		if idle == pp {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.closePage(pp)
	p.logger.Debug("page removed", zap.String("page_id", pp.id), zap.String("reason", reason))
	p.emit(events.PageRemoved, pp.id, 0)
	p.wakeOneWaiter()
}

// wakeOneWaiter sends a retry signal to the longest-blocked acquirer, if any.
func (p *Pool) wakeOneWaiter() {
	p.mu.Lock()
	if len(p.waiters) == 0 {
		p.mu.Unlock()
		return
	}
	waiter := p.waiters[0]
	p.waiters = p.waiters[1:]
	waiter <- nil
	p.mu.Unlock()
}

func (p *Pool) reapLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

// reapIdle closes idle pages older than the idle timeout while keeping the
// pool at or above its floor.
func (p *Pool) reapIdle() {
	now := p.clock.Now()
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	size := len(p.pages) + p.creating
	var victims []*PooledPage
	keep := p.idle[:0]
	for _, pp := range p.idle {
		if now.Sub(pp.lastUsedAt) > p.cfg.IdleTimeout && size-len(victims) > p.cfg.MinPages {
			victims = append(victims, pp)
			continue
		}
		keep = append(keep, pp)
	}
	p.idle = keep
	for _, pp := range victims {
		delete(p.pages, pp.id)
	}
	p.mu.Unlock()

	if len(victims) == 0 {
		return
	}
	for _, pp := range victims {
		p.closePage(pp)
		p.emit(events.PageRemoved, pp.id, 0)
	}
	p.logger.Debug("idle pages reaped", zap.Int("count", len(victims)))
	p.emit(events.IdleCleanup, "", len(victims))
}

func (p *Pool) closePage(pp *PooledPage) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := p.closePageCtx(ctx, pp); err != nil {
		p.logger.Warn("closing page failed", zap.String("page_id", pp.id), zap.Error(err))
	}
}

func (p *Pool) closePageCtx(ctx context.Context, pp *PooledPage) error {
	if pp.page.IsClosed() {
		return nil
	}
	return pp.page.Close(ctx)
}

func (p *Pool) emit(t events.Type, pageID string, count int) {
	p.registry.Emit(events.Event{Type: t, PageID: pageID, Count: count, At: p.clock.Now()})
}
