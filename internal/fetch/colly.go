package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const defaultStaticTimeout = 15 * time.Second

// StaticConfig controls collector behavior.
type StaticConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	HostRPS       float64       `mapstructure:"host_rps"`
	HostBurst     int           `mapstructure:"host_burst"`
}

// StaticFetcher implements Fetcher using the Colly collector. One base
// collector holds the pooled transport; each Fetch clones it.
type StaticFetcher struct {
	cfg     StaticConfig
	limiter *HostLimiter
	base    *colly.Collector
	logger  *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewStatic builds a StaticFetcher.
func NewStatic(cfg StaticConfig, logger *zap.Logger) *StaticFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &StaticFetcher{
		cfg:     cfg,
		limiter: NewHostLimiter(cfg.HostRPS, cfg.HostBurst),
		base:    c,
		logger:  logger.Named("fetch"),
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *StaticFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	if req.URL == "" {
		return Response{}, fmt.Errorf("fetch url is required")
	}
	if err := f.limiter.Wait(ctx, req.URL); err != nil {
		return Response{}, err
	}

	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(req, start, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, req.URL, &fetchErr); err != nil {
		return Response{}, err
	}
	f.logger.Debug("static fetch complete",
		zap.String("url", result.URL),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (f *StaticFetcher) buildCollector(req Request, start time.Time, result *Response, fetchErr *error) *colly.Collector {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultStaticTimeout
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, req, start, result, fetchErr)
	return collector
}

func (f *StaticFetcher) configureCollectorHooks(hooks collectorHooks, req Request, start time.Time, result *Response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *StaticFetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", url, *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
