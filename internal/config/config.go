// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Scheduler modes.
const (
	ModePush = "push"
	ModePull = "pull"
)

// DefaultSourceURL is the stock page scraped when source.url is unset.
const DefaultSourceURL = "https://vulcanvalues.com/grow-a-garden/stock"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Source    SourceConfig    `mapstructure:"source"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig points at the upstream stock page.
type SourceConfig struct {
	URL string `mapstructure:"url"`
	// CacheBustParam is the query parameter carrying the per-attempt timestamp.
	CacheBustParam string `mapstructure:"cache_bust_param"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	TimeoutSeconds   int  `mapstructure:"timeout_seconds"`
	CloudflareBypass bool `mapstructure:"cloudflare_bypass"`
	// RateLimitRPS caps requests per second to the source host; 0 disables.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// HeadlessConfig enables the browser fallback for bot challenge pages.
type HeadlessConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	MaxParallel       int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	UserAgent         string `mapstructure:"user_agent"`
	ReadySelector     string `mapstructure:"ready_selector"`
	ReadyWaitSeconds  int    `mapstructure:"ready_wait_seconds"`
}

// RefreshConfig governs the retry loop and refresh cadence.
type RefreshConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	IntervalSeconds  int `mapstructure:"interval_seconds"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// SchedulerConfig picks between background refresh and pull-through caching.
type SchedulerConfig struct {
	Mode string `mapstructure:"mode"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKD")
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

	// Container platforms inject PORT; it wins over everything else.
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("parse PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	cfg.Scheduler.Mode = strings.ToLower(strings.TrimSpace(cfg.Scheduler.Mode))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.url", DefaultSourceURL)
	v.SetDefault("source.cache_bust_param", "_")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.cloudflare_bypass", true)
	v.SetDefault("http.rate_limit_rps", 1.0)
	v.SetDefault("http.rate_limit_burst", 3)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.user_agent", "")
	v.SetDefault("headless.ready_selector", `div[class*="grid-cols"]`)
	v.SetDefault("headless.ready_wait_seconds", 15)
	v.SetDefault("refresh.max_attempts", 3)
	v.SetDefault("refresh.interval_seconds", 300)
	v.SetDefault("refresh.backoff_initial_ms", 250)
	v.SetDefault("refresh.backoff_max_ms", 2000)
	v.SetDefault("scheduler.mode", ModePush)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	u, err := url.Parse(c.Source.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.url must be an absolute http(s) URL")
	}
	if c.Source.CacheBustParam == "" {
		return fmt.Errorf("source.cache_bust_param must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("http.rate_limit_rps and http.rate_limit_burst must be >= 0")
	}
	if c.Headless.Enabled {
		if c.Headless.MaxParallel < 0 {
			return fmt.Errorf("headless.max_parallel must be >= 0")
		}
		if c.Headless.NavTimeoutSeconds <= 0 {
			return fmt.Errorf("headless.nav_timeout_seconds must be > 0")
		}
		if c.Headless.ReadyWaitSeconds < 0 {
			return fmt.Errorf("headless.ready_wait_seconds must be >= 0")
		}
	}
	if c.Refresh.MaxAttempts <= 0 {
		return fmt.Errorf("refresh.max_attempts must be > 0")
	}
	if c.Refresh.IntervalSeconds <= 0 {
		return fmt.Errorf("refresh.interval_seconds must be > 0")
	}
	if c.Refresh.BackoffInitialMs < 0 || c.Refresh.BackoffMaxMs < 0 {
		return fmt.Errorf("refresh.backoff_initial_ms and refresh.backoff_max_ms must be >= 0")
	}
	if c.Scheduler.Mode != ModePush && c.Scheduler.Mode != ModePull {
		return fmt.Errorf("scheduler.mode must be %q or %q", ModePush, ModePull)
	}
	return nil
}

// FetchTimeout is the per-attempt request budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// HeadlessNavTimeout bounds one browser render, challenge included.
func (c Config) HeadlessNavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSeconds) * time.Second
}

// HeadlessReadyWait is how long a render waits for the stock grid to appear.
func (c Config) HeadlessReadyWait() time.Duration {
	return time.Duration(c.Headless.ReadyWaitSeconds) * time.Second
}

// RefreshInterval is the push period and the pull-through bucket width.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Refresh.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Refresh.BackoffMaxMs) * time.Millisecond
}
