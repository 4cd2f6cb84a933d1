package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Engine      EngineConfig      `yaml:"engine"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	CatalogSync CatalogSyncConfig `yaml:"catalog_sync"`
	Feed        FeedConfig        `yaml:"feed"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
	Log         LogConfig         `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are set.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// EngineConfig tunes the reservation engine.
type EngineConfig struct {
	HoldTimeoutSeconds           int    `yaml:"hold_timeout_seconds"`
	MinimumTurnaroundBuffer      string `yaml:"minimum_turnaround_buffer"`
	AlternativeSearchHorizonDays int    `yaml:"alternative_search_horizon_days"`
	AlternativeTopK              int    `yaml:"alternative_top_k"`
	AlternativeStepHours         int    `yaml:"alternative_step_hours"`
	SearchConcurrency            int    `yaml:"search_concurrency"`
	StrictResources              bool   `yaml:"strict_resources"`
	RejectPastIntervals          bool   `yaml:"reject_past_intervals"`
	ReaperIntervalSeconds        int    `yaml:"reaper_interval_seconds"`

	HoldTimeout    time.Duration `yaml:"-"`
	Turnaround     time.Duration `yaml:"-"`
	Horizon        time.Duration `yaml:"-"`
	Step           time.Duration `yaml:"-"`
	ReaperInterval time.Duration `yaml:"-"`
}

// CatalogConfig controls the catalog projection and its circuit breaker.
type CatalogConfig struct {
	CacheTTLSeconds       int    `yaml:"cache_ttl_seconds"`
	BreakerFailures       uint32 `yaml:"breaker_failures"`
	BreakerTimeoutSeconds int    `yaml:"breaker_timeout_seconds"`

	CacheTTL       time.Duration `yaml:"-"`
	BreakerTimeout time.Duration `yaml:"-"`
}

// CatalogSyncConfig holds the upstream catalog poller configuration.
type CatalogSyncConfig struct {
	Enabled         bool           `yaml:"enabled"`
	IntervalSeconds int            `yaml:"interval_seconds"`
	Interval        time.Duration  `yaml:"-"` // Ignored by YAML parser
	HTTPProxy       string         `yaml:"http_proxy"`
	Request         CatalogRequest `yaml:"request"`
}

// CatalogRequest defines the HTTP request for the catalog poller.
type CatalogRequest struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"pageSize"`
	Payload  map[string]any    `yaml:"payload"`
}

// FeedConfig selects where booking records are published.
type FeedConfig struct {
	Driver        string `yaml:"driver"` // amqp, redis or log
	AMQPURL       string `yaml:"amqp_url"`
	Exchange      string `yaml:"exchange"`
	RedisURL      string `yaml:"redis_url"`
	ChannelPrefix string `yaml:"channel_prefix"`
	Workers       int    `yaml:"workers"`
	Buffer        int    `yaml:"buffer"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableRangeIndex       bool   `yaml:"enable_range_index"`
	LogLevel               string `yaml:"log_level"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// SlogLevel maps the configured level to slog.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadEnv loads a .env file if one exists. A missing file is not an error.
func LoadEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	var cfg Config
	applyEnv(&cfg)
	_ = cfg.applyDefaults()
	return &cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Feed.AMQPURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Feed.RedisURL = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	e := &cfg.Engine
	if e.HoldTimeoutSeconds <= 0 {
		e.HoldTimeoutSeconds = 300
	}
	e.HoldTimeout = time.Duration(e.HoldTimeoutSeconds) * time.Second
	if e.MinimumTurnaroundBuffer != "" {
		d, err := time.ParseDuration(e.MinimumTurnaroundBuffer)
		if err != nil {
			return fmt.Errorf("engine.minimum_turnaround_buffer: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("engine.minimum_turnaround_buffer must not be negative, got %s", d)
		}
		e.Turnaround = d
	}
	if e.AlternativeSearchHorizonDays <= 0 {
		e.AlternativeSearchHorizonDays = 30
	}
	e.Horizon = time.Duration(e.AlternativeSearchHorizonDays) * 24 * time.Hour
	if e.AlternativeTopK <= 0 {
		e.AlternativeTopK = 5
	}
	if e.AlternativeStepHours <= 0 {
		e.AlternativeStepHours = 12
	}
	e.Step = time.Duration(e.AlternativeStepHours) * time.Hour
	if e.SearchConcurrency <= 0 {
		e.SearchConcurrency = 8
	}
	if e.ReaperIntervalSeconds <= 0 {
		e.ReaperIntervalSeconds = 30
	}
	e.ReaperInterval = time.Duration(e.ReaperIntervalSeconds) * time.Second

	c := &cfg.Catalog
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 60
	}
	c.CacheTTL = time.Duration(c.CacheTTLSeconds) * time.Second
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeoutSeconds <= 0 {
		c.BreakerTimeoutSeconds = 30
	}
	c.BreakerTimeout = time.Duration(c.BreakerTimeoutSeconds) * time.Second

	if cfg.CatalogSync.IntervalSeconds <= 0 {
		cfg.CatalogSync.IntervalSeconds = 300
	}
	cfg.CatalogSync.Interval = time.Duration(cfg.CatalogSync.IntervalSeconds) * time.Second
	if cfg.CatalogSync.Request.PageSize <= 0 {
		cfg.CatalogSync.Request.PageSize = 100
	}

	switch cfg.Feed.Driver {
	case "":
		cfg.Feed.Driver = "log"
	case "log", "amqp", "redis":
	default:
		return fmt.Errorf("feed.driver must be one of log, amqp, redis; got %q", cfg.Feed.Driver)
	}
	if cfg.Feed.Workers <= 0 {
		cfg.Feed.Workers = 4
	}
	if cfg.Feed.Buffer <= 0 {
		cfg.Feed.Buffer = 256
	}
	if cfg.Feed.ChannelPrefix == "" {
		cfg.Feed.ChannelPrefix = "rental:"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		slog.Info("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}
