// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/notaspider/comick-source-api/internal/retrieval"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`
	Auth     AuthConfig              `mapstructure:"auth"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Fetch    FetchConfig             `mapstructure:"fetch"`
	Proxy    ProxyConfig             `mapstructure:"proxy"`
	Headless HeadlessConfig          `mapstructure:"headless"`
	Health   HealthConfig            `mapstructure:"health"`
	Search   SearchConfig            `mapstructure:"search"`
	Sources  map[string]SourceConfig `mapstructure:"sources"`
	Redis    RedisConfig             `mapstructure:"redis"`
	DB       DBConfig                `mapstructure:"db"`
	// ExternalAPIURL points at a hosted instance of this service. Only the
	// README sync tooling reads it.
	ExternalAPIURL string `mapstructure:"external_api_url"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig tunes the direct stage and the default strategy.
type FetchConfig struct {
	UserAgent            string `mapstructure:"user_agent"`
	DirectTimeoutSeconds int    `mapstructure:"direct_timeout_seconds"`
	ProxyTimeoutSeconds  int    `mapstructure:"proxy_timeout_seconds"`
	MaxBodyBytes         int    `mapstructure:"max_body_bytes"`
}

// Proxy modes.
const (
	ProxyModeNone     = "none"
	ProxyModeHTTP     = "http"
	ProxyModeHeadless = "headless"
)

// ProxyConfig selects the proxy stage implementation.
type ProxyConfig struct {
	Mode     string `mapstructure:"mode"`
	Endpoint string `mapstructure:"endpoint"`
}

// HeadlessConfig configures the headless proxy stage.
type HeadlessConfig struct {
	MaxParallel          int `mapstructure:"max_parallel"`
	NavTimeoutSeconds    int `mapstructure:"nav_timeout_seconds"`
	ChallengeWaitSeconds int `mapstructure:"challenge_wait_seconds"`
}

// Health cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// HealthConfig controls probing and snapshot caching.
type HealthConfig struct {
	TTLSeconds          int    `mapstructure:"ttl_seconds"`
	ProbeTimeoutSeconds int    `mapstructure:"probe_timeout_seconds"`
	SingleFlight        bool   `mapstructure:"single_flight"`
	Cache               string `mapstructure:"cache"`
	History             bool   `mapstructure:"history"`
}

// SearchConfig bounds search requests.
type SearchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SourceConfig overrides one bundled source, keyed by source id.
type SourceConfig struct {
	Disabled bool   `mapstructure:"disabled"`
	Strategy string `mapstructure:"strategy"`
	BaseURL  string `mapstructure:"base_url"`
}

// RedisConfig locates the shared snapshot cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// DBConfig controls access to the health history database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Load builds a Config from disk/environment. With an empty path the usual
// locations are searched for config.yaml and a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SOURCEAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sourceapi/")
		v.AddConfigPath("$HOME/.sourceapi")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.direct_timeout_seconds", int(retrieval.DefaultDirectTimeout/time.Second))
	v.SetDefault("fetch.proxy_timeout_seconds", int(retrieval.DefaultProxyTimeout/time.Second))
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("proxy.mode", ProxyModeNone)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 20)
	v.SetDefault("headless.challenge_wait_seconds", 8)
	v.SetDefault("health.ttl_seconds", 300)
	v.SetDefault("health.probe_timeout_seconds", 10)
	v.SetDefault("health.single_flight", true)
	v.SetDefault("health.cache", CacheMemory)
	v.SetDefault("health.history", false)
	v.SetDefault("search.timeout_seconds", 45)
	v.SetDefault("redis.key", "sourceapi:health:snapshot")
	v.SetDefault("db.table", "source_health_checks")
	v.SetDefault("db.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Fetch.DirectTimeoutSeconds <= 0 || c.Fetch.ProxyTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch timeouts must be > 0")
	}
	switch c.Proxy.Mode {
	case ProxyModeNone, "":
	case ProxyModeHTTP:
		if c.Proxy.Endpoint == "" {
			return fmt.Errorf("proxy.endpoint must be set when proxy.mode is http")
		}
	case ProxyModeHeadless:
		if c.Headless.MaxParallel <= 0 {
			return fmt.Errorf("headless.max_parallel must be > 0 when proxy.mode is headless")
		}
	default:
		return fmt.Errorf("proxy.mode must be one of none, http, headless; got %q", c.Proxy.Mode)
	}
	if c.Health.TTLSeconds <= 0 {
		return fmt.Errorf("health.ttl_seconds must be > 0")
	}
	if c.Health.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("health.probe_timeout_seconds must be > 0")
	}
	switch c.Health.Cache {
	case CacheMemory, "":
	case CacheRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set when health.cache is redis")
		}
	default:
		return fmt.Errorf("health.cache must be memory or redis; got %q", c.Health.Cache)
	}
	if c.Health.History && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when health.history is enabled")
	}
	for id, src := range c.Sources {
		if _, err := retrieval.ParseStrategy(src.Strategy); err != nil {
			return fmt.Errorf("sources.%s.strategy: %w", id, err)
		}
	}
	return nil
}

// Seconds converts a whole-second knob to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// HealthTTL returns the snapshot lifetime.
func (c Config) HealthTTL() time.Duration { return Seconds(c.Health.TTLSeconds) }

// RequestTimeout returns the per-request HTTP budget.
func (c Config) RequestTimeout() time.Duration { return Seconds(c.Server.RequestTimeoutSeconds) }
