// Package metrics exposes cache and browser pool activity as Prometheus
// series. The Collector consumes lifecycle events, so instrumented components
// carry no metrics code of their own.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fixturelab/matchday-crawler/internal/events"
)

// Collector translates lifecycle events into Prometheus collectors. Attach it
// with AddListener to the cache store's and the page pool's event registries;
// the two sources emit disjoint event types, so one Collector serves both.
type Collector struct {
	cacheLookups *prometheus.CounterVec
	cacheWrites  prometheus.Counter
	cacheDeletes prometheus.Counter
	cacheCleared prometheus.Counter

	pagesOpen    prometheus.Gauge
	pagesCreated prometheus.Counter
	pagesRemoved prometheus.Counter
	leases       prometheus.Counter
	releases     prometheus.Counter
	idleReaped   prometheus.Counter
}

var _ events.Listener = (*Collector)(nil)

// NewCollector registers all collectors against reg. A nil registerer falls
// back to the process-global default.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_cache_lookups_total",
			Help: "Cache lookups partitioned by result.",
		}, []string{"result"}),
		cacheWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_cache_writes_total",
			Help: "Entries written to the match cache, including imports.",
		}),
		cacheDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_cache_deletes_total",
			Help: "Entries removed individually, including pattern invalidation.",
		}),
		cacheCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_cache_entries_cleared_total",
			Help: "Entries dropped by full cache clears.",
		}),
		pagesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchday_pool_pages_open",
			Help: "Pages currently tracked by the browser pool.",
		}),
		pagesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_pool_pages_created_total",
			Help: "Pages opened by the browser pool.",
		}),
		pagesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_pool_pages_removed_total",
			Help: "Pages closed and dropped from the browser pool.",
		}),
		leases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_pool_leases_total",
			Help: "Page leases handed to callers.",
		}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_pool_releases_total",
			Help: "Page leases returned to the pool.",
		}),
		idleReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_pool_idle_reaped_total",
			Help: "Idle pages closed by the reaper.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		c.cacheLookups,
		c.cacheWrites,
		c.cacheDeletes,
		c.cacheCleared,
		c.pagesOpen,
		c.pagesCreated,
		c.pagesRemoved,
		c.leases,
		c.releases,
		c.idleReaped,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register lifecycle collector: %w", err)
		}
	}
	return c, nil
}

// HandleEvent updates the collectors for one lifecycle event. Unknown event
// types are ignored so new emitters cannot break the listener.
func (c *Collector) HandleEvent(evt events.Event) {
	switch evt.Type {
	case events.CacheHit:
		c.cacheLookups.WithLabelValues("hit").Inc()
	case events.CacheMiss:
		c.cacheLookups.WithLabelValues("miss").Inc()
	case events.CacheSet:
		c.cacheWrites.Inc()
	case events.CacheDelete:
		c.cacheDeletes.Inc()
	case events.CacheClear:
		c.cacheCleared.Add(float64(evt.Count))
	case events.PageCreated:
		c.pagesCreated.Inc()
		c.pagesOpen.Inc()
	case events.PageRemoved:
		c.pagesRemoved.Inc()
		c.pagesOpen.Dec()
	case events.PageActivated:
		c.leases.Inc()
	case events.PageReleased:
		c.releases.Inc()
	case events.IdleCleanup:
		c.idleReaped.Add(float64(evt.Count))
	}
}
