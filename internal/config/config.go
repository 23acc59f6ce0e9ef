// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fixturelab/matchday-crawler/internal/browser"
	"github.com/fixturelab/matchday-crawler/internal/crawl"
	"github.com/fixturelab/matchday-crawler/internal/fetch"
	"github.com/fixturelab/matchday-crawler/internal/matchstore"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig       `mapstructure:"server"`
	Logging   LoggingConfig      `mapstructure:"logging"`
	Site      crawl.Config       `mapstructure:"site"`
	Fetch     FetchConfig        `mapstructure:"fetch"`
	Browser   BrowserConfig      `mapstructure:"browser"`
	Pool      browser.PoolConfig `mapstructure:"pool"`
	Cache     CacheConfig        `mapstructure:"cache"`
	Storage   StorageConfig      `mapstructure:"storage"`
	Database  DatabaseConfig     `mapstructure:"database"`
	Publisher PublisherConfig    `mapstructure:"publisher"`
	Queue     QueueConfig        `mapstructure:"queue"`
}

// ServerConfig controls the ops HTTP server. An empty APIKey leaves the API
// open; setting it requires X-API-Key on every request.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	APIKey         string        `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig governs the static fetcher and the render heuristic.
type FetchConfig struct {
	Static   fetch.StaticConfig   `mapstructure:"static"`
	Detector fetch.DetectorConfig `mapstructure:"detector"`
}

// BrowserConfig controls the launched browser process. An empty UserAgent
// keeps the driver default; an empty ExecPath lets the driver resolve the
// binary.
type BrowserConfig struct {
	Headless   bool          `mapstructure:"headless"`
	UserAgent  string        `mapstructure:"user_agent"`
	ExecPath   string        `mapstructure:"exec_path"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
}

// CacheConfig controls the match cache. A zero CleanupInterval disables the
// background sweep.
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// StorageConfig selects the blob backend for match files and cache snapshots.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	MatchPrefix string `mapstructure:"match_prefix"`
	SnapshotKey string `mapstructure:"snapshot_key"`
}

// DatabaseConfig controls the optional Postgres run-history store. An empty
// DSN keeps run history in memory.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PublisherConfig holds metadata for league-completion notifications.
type PublisherConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// QueueConfig bounds the serve-mode run queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MATCHDAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", time.Minute)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("site.base_url", "https://www.flashscore.com")
	v.SetDefault("site.targets", []map[string]any{
		{"country": "england", "league": "premier-league"},
	})
	v.SetDefault("site.season_limit", 1)
	v.SetDefault("site.save_every", 25)
	v.SetDefault("site.pagination.max_clicks", 50)
	v.SetDefault("site.pagination.max_no_progress", 3)
	v.SetDefault("site.pagination.settle_delay", 2*time.Second)
	v.SetDefault("site.pagination.click_timeout", 5*time.Second)
	v.SetDefault("site.pacing.match_delay", 2*time.Second)
	v.SetDefault("site.pacing.match_jitter", time.Second)
	v.SetDefault("site.pacing.league_delay", 5*time.Second)
	v.SetDefault("site.pacing.league_jitter", 2*time.Second)
	v.SetDefault("site.pacing.country_delay", 10*time.Second)
	v.SetDefault("site.pacing.country_jitter", 5*time.Second)
	setSelectorDefaults(v)

	v.SetDefault("fetch.static.user_agent", "matchday-bot/0.1")
	v.SetDefault("fetch.static.timeout", 15*time.Second)
	v.SetDefault("fetch.static.respect_robots", true)
	v.SetDefault("fetch.static.host_rps", 1.0)
	v.SetDefault("fetch.static.host_burst", 2)
	v.SetDefault("fetch.detector.min_html_bytes", 2048)
	v.SetDefault("fetch.detector.required_selectors", []string{"div.archive__season"})

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout", 25*time.Second)

	v.SetDefault("pool.min_pages", 1)
	v.SetDefault("pool.max_pages", 5)
	v.SetDefault("pool.idle_timeout", 5*time.Minute)
	v.SetDefault("pool.acquire_timeout", 30*time.Second)
	v.SetDefault("pool.reap_interval", time.Minute)

	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.cleanup_interval", time.Hour)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.match_prefix", matchstore.DefaultPrefix)
	v.SetDefault("storage.snapshot_key", "cache/snapshot.json")

	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)

	v.SetDefault("queue.capacity", 8)
}

func setSelectorDefaults(v *viper.Viper) {
	sel := crawl.DefaultSelectors()
	v.SetDefault("site.selectors.match_row", sel.MatchRow)
	v.SetDefault("site.selectors.match_id_attr", sel.MatchIDAttr)
	v.SetDefault("site.selectors.match_id_prefix", sel.MatchIDPrefix)
	v.SetDefault("site.selectors.load_more", sel.LoadMore)
	v.SetDefault("site.selectors.season_link", sel.SeasonLink)
	v.SetDefault("site.selectors.stage", sel.Stage)
	v.SetDefault("site.selectors.date", sel.Date)
	v.SetDefault("site.selectors.status", sel.Status)
	v.SetDefault("site.selectors.home_name", sel.HomeName)
	v.SetDefault("site.selectors.home_image", sel.HomeImage)
	v.SetDefault("site.selectors.away_name", sel.AwayName)
	v.SetDefault("site.selectors.away_image", sel.AwayImage)
	v.SetDefault("site.selectors.score", sel.Score)
	v.SetDefault("site.selectors.info_row", sel.InfoRow)
	v.SetDefault("site.selectors.info_label", sel.InfoLabel)
	v.SetDefault("site.selectors.info_value", sel.InfoValue)
	v.SetDefault("site.selectors.stat_row", sel.StatRow)
	v.SetDefault("site.selectors.stat_name", sel.StatName)
	v.SetDefault("site.selectors.stat_home", sel.StatHome)
	v.SetDefault("site.selectors.stat_away", sel.StatAway)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Site.Pagination.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Site.Pacing.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache.cleanup_interval must not be negative")
	}
	if c.Fetch.Static.Timeout <= 0 {
		return fmt.Errorf("fetch.static.timeout must be > 0")
	}
	if c.Fetch.Static.HostRPS < 0 {
		return fmt.Errorf("fetch.static.host_rps must not be negative")
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	switch c.Storage.Backend {
	case "local", "memory", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of local, memory, gcs")
	}
	if c.Storage.Backend == "local" && c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir must be set when backend is local")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when backend is gcs")
	}
	if (c.Publisher.ProjectID == "") != (c.Publisher.TopicID == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic_id must be set together")
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0")
	}
	return nil
}

// PublisherEnabled reports whether completion publishing is configured.
func (c Config) PublisherEnabled() bool {
	return c.Publisher.ProjectID != "" && c.Publisher.TopicID != ""
}

// DatabaseEnabled reports whether the Postgres run store is configured.
func (c Config) DatabaseEnabled() bool {
	return c.Database.DSN != ""
}
