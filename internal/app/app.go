// Package app assembles the crawler's long-lived services from configuration
// and drives the one-shot crawl and serve modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/api"
	"github.com/fixturelab/matchday-crawler/internal/browser"
	"github.com/fixturelab/matchday-crawler/internal/browser/headless"
	"github.com/fixturelab/matchday-crawler/internal/cache"
	"github.com/fixturelab/matchday-crawler/internal/clock/system"
	"github.com/fixturelab/matchday-crawler/internal/config"
	"github.com/fixturelab/matchday-crawler/internal/crawl"
	"github.com/fixturelab/matchday-crawler/internal/events"
	"github.com/fixturelab/matchday-crawler/internal/fetch"
	"github.com/fixturelab/matchday-crawler/internal/hash/sha256"
	"github.com/fixturelab/matchday-crawler/internal/id/uuid"
	"github.com/fixturelab/matchday-crawler/internal/matchstore"
	"github.com/fixturelab/matchday-crawler/internal/metrics"
	"github.com/fixturelab/matchday-crawler/internal/progress"
	"github.com/fixturelab/matchday-crawler/internal/progress/sinks"
	"github.com/fixturelab/matchday-crawler/internal/publisher/pubsub"
	qmemory "github.com/fixturelab/matchday-crawler/internal/queue/memory"
	"github.com/fixturelab/matchday-crawler/internal/runner"
	"github.com/fixturelab/matchday-crawler/internal/runs"
	"github.com/fixturelab/matchday-crawler/internal/storage"
	"github.com/fixturelab/matchday-crawler/internal/storage/gcs"
	"github.com/fixturelab/matchday-crawler/internal/storage/local"
	smemory "github.com/fixturelab/matchday-crawler/internal/storage/memory"
	"github.com/fixturelab/matchday-crawler/internal/storage/postgres"
)

const shutdownTimeout = 15 * time.Second

// App holds the shared services behind both the one-shot crawl and serve
// modes. Construct with New, release with Close.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock
	ids    *uuid.Generator

	registry   *events.Registry
	metrics    *prometheus.Registry
	blobs      storage.BlobStore
	matches    *matchstore.Store
	matchCache *cache.Store[crawl.MatchRecord]
	keys       *cache.KeyGenerator
	runStore   runs.Repository
	publisher  crawl.Publisher
	hub        *progress.Hub
	orch       *crawl.Orchestrator

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New builds every configured service, failing fast on the first error.
// Services opened before the failure are closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}

	a.registry = events.NewRegistry(logger)
	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewCollector(a.metrics)
	if err != nil {
		return nil, a.fail(err)
	}
	a.registry.AddListener(collector)

	blobs, closeBlobs, err := NewBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, a.fail(err)
	}
	a.blobs = blobs
	if closeBlobs != nil {
		a.addCloser("blob store", closeBlobs)
	}

	matches, err := matchstore.New(a.blobs, cfg.Storage.MatchPrefix, logger)
	if err != nil {
		return nil, a.fail(fmt.Errorf("init match store: %w", err))
	}
	a.matches = matches

	if err := a.buildCache(); err != nil {
		return nil, a.fail(err)
	}
	if err := a.buildRunStore(ctx); err != nil {
		return nil, a.fail(err)
	}
	if err := a.buildPublisher(ctx); err != nil {
		return nil, a.fail(err)
	}
	if err := a.buildProgressHub(); err != nil {
		return nil, a.fail(err)
	}
	if err := a.buildOrchestrator(); err != nil {
		return nil, a.fail(err)
	}

	logger.Info("services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DatabaseEnabled()),
		zap.Bool("publisher", cfg.PublisherEnabled()),
	)
	return a, nil
}

// NewBlobStore builds the configured blob backend. The returned close func is
// nil when the backend holds no external connection.
func NewBlobStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.BlobStore, func() error, error) {
	switch cfg.Backend {
	case "local":
		blobs, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local storage: %w", err)
		}
		return blobs, nil, nil
	case "memory":
		if logger != nil {
			logger.Info("using in-memory blob storage, artifacts are discarded on exit")
		}
		return smemory.NewBlobStore(), nil, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			if cerr := client.Close(); cerr != nil && logger != nil {
				logger.Warn("gcs client close failed", zap.Error(cerr))
			}
			return nil, nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return blobs, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) buildCache() error {
	hasher := sha256.New()
	validator, err := cache.NewValidator[crawl.MatchRecord](cache.ValidatorConfig[crawl.MatchRecord]{
		Hasher: hasher,
		Clock:  a.clock,
	})
	if err != nil {
		return fmt.Errorf("init cache validator: %w", err)
	}
	store, err := cache.New[crawl.MatchRecord](
		cache.Config{DefaultTTL: a.cfg.Cache.TTL},
		validator, a.clock, a.registry, a.logger,
	)
	if err != nil {
		return fmt.Errorf("init match cache: %w", err)
	}
	keys, err := cache.NewKeyGenerator(hasher)
	if err != nil {
		return fmt.Errorf("init key generator: %w", err)
	}
	a.matchCache = store
	a.keys = keys
	return nil
}

func (a *App) buildRunStore(ctx context.Context) error {
	if !a.cfg.DatabaseEnabled() {
		a.runStore = smemory.NewRunStore()
		a.logger.Info("run history kept in memory")
		return nil
	}
	store, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect run store: %w", err)
	}
	a.addCloser("run store", func() error { store.Close(); return nil })
	a.runStore = store
	a.logger.Info("run history persisted to postgres")
	return nil
}

func (a *App) buildPublisher(ctx context.Context) error {
	if !a.cfg.PublisherEnabled() {
		return nil
	}
	pub, err := pubsub.New(ctx, pubsub.Config{
		ProjectID: a.cfg.Publisher.ProjectID,
		TopicID:   a.cfg.Publisher.TopicID,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("connect publisher: %w", err)
	}
	a.addCloser("publisher", pub.Close)
	a.publisher = pub
	a.logger.Info("league completions published to pubsub",
		zap.String("topic", a.cfg.Publisher.TopicID))
	return nil
}

func (a *App) buildProgressHub() error {
	prom, err := sinks.NewPrometheusSink(a.metrics)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: a.logger},
		sinks.NewLogSink(a.logger),
		prom,
		sinks.NewStoreSink(a.runStore, a.logger),
	)
	a.addCloser("progress hub", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.hub.Close(ctx)
	})
	return nil
}

func (a *App) buildOrchestrator() error {
	orch, err := crawl.New(a.cfg.Site, crawl.Deps{
		Driver: headless.NewDriver(),
		Browser: browser.Options{
			Headless:          a.cfg.Browser.Headless,
			UserAgent:         a.cfg.Browser.UserAgent,
			ExecPath:          a.cfg.Browser.ExecPath,
			NavigationTimeout: a.cfg.Browser.NavTimeout,
		},
		Pool:      a.cfg.Pool,
		Registry:  a.registry,
		Fetcher:   fetch.NewStatic(a.cfg.Fetch.Static, a.logger),
		Detector:  fetch.NewDetector(a.cfg.Fetch.Detector),
		Store:     a.matches,
		Cache:     a.matchCache,
		Keys:      a.keys,
		Progress:  a.hub,
		Publisher: a.publisher,
		Clock:     a.clock,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	a.orch = orch
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// CrawlOnce restores the cache snapshot, executes a single crawl run, and
// persists the snapshot again. The report is meaningful even on error.
func (a *App) CrawlOnce(ctx context.Context) (crawl.Report, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return crawl.Report{}, fmt.Errorf("generate run id: %w", err)
	}
	a.restoreCacheSnapshot(ctx)

	report, runErr := a.orch.Run(ctx, runID)

	snapCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.persistCacheSnapshot(snapCtx)
	return report, runErr
}

// Serve runs the ops HTTP server and the run queue until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	a.restoreCacheSnapshot(ctx)

	queue := qmemory.NewQueue(a.cfg.Queue.Capacity)
	run, err := runner.New(queue, a.orch, a.ids, a.clock, a.logger)
	if err != nil {
		return fmt.Errorf("init runner: %w", err)
	}

	server := api.NewServer(api.Config{
		RequestTimeout: a.cfg.Server.RequestTimeout,
		APIKey:         a.cfg.Server.APIKey,
	}, api.Deps{
		Runner:  run,
		Runs:    a.runStore,
		Pool:    a.orch,
		Cache:   a.matchCache,
		Metrics: promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
		Logger:  a.logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Runs outlive a canceled ctx only until the shutdown below cancels them.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		run.Run(workCtx)
	}()
	if a.cfg.Cache.CleanupInterval > 0 {
		go a.cacheJanitor(workCtx)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.Int("port", a.cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		cancelWork()
		<-runnerDone
		return fmt.Errorf("http server: %w", err)
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", zap.Error(err))
	}
	queue.Close()
	cancelWork()
	<-runnerDone
	a.persistCacheSnapshot(shutdownCtx)
	return nil
}

func (a *App) cacheJanitor(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Cache.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.matchCache.Cleanup(); n > 0 {
				a.logger.Debug("cache cleanup removed entries", zap.Int("count", n))
			}
		}
	}
}

// restoreCacheSnapshot seeds the match cache from the persisted snapshot.
// A missing or unreadable snapshot is not an error; the run starts cold.
func (a *App) restoreCacheSnapshot(ctx context.Context) {
	blob, err := LoadSnapshot(ctx, a.blobs, a.cfg.Storage.SnapshotKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.logger.Debug("no cache snapshot found", zap.String("key", a.cfg.Storage.SnapshotKey))
			return
		}
		a.logger.Warn("cache snapshot restore failed", zap.Error(err))
		return
	}
	n, err := a.matchCache.Import(blob)
	if err != nil {
		a.logger.Warn("cache snapshot import failed", zap.Error(err))
		return
	}
	a.logger.Info("cache snapshot restored",
		zap.Int("entries", n),
		zap.Time("exported_at", blob.ExportedAt),
	)
}

// persistCacheSnapshot writes the current cache contents back to storage. An
// empty cache never overwrites an existing snapshot.
func (a *App) persistCacheSnapshot(ctx context.Context) {
	blob := a.matchCache.Export()
	if len(blob.Entries) == 0 {
		return
	}
	uri, err := SaveSnapshot(ctx, a.blobs, a.cfg.Storage.SnapshotKey, blob)
	if err != nil {
		a.logger.Warn("cache snapshot persist failed", zap.Error(err))
		return
	}
	a.logger.Info("cache snapshot persisted",
		zap.Int("entries", len(blob.Entries)),
		zap.String("uri", uri),
	)
}

// Close releases every service in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func (a *App) fail(err error) error {
	a.Close()
	return err
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}
