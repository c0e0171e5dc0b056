package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	API        APIConfig        `yaml:"api"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Store      StoreConfig      `yaml:"store"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type APIConfig struct {
	BaseURL   string             `yaml:"base_url"`
	Token     string             `yaml:"token"`
	Timeout   time.Duration      `yaml:"timeout"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RealtimeConfig struct {
	URL       string          `yaml:"url"`
	Enabled   bool            `yaml:"enabled"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type StoreConfig struct {
	OnFetchError string         `yaml:"on_fetch_error"`
	Snapshot     SnapshotConfig `yaml:"snapshot"`
}

type SnapshotConfig struct {
	Enabled bool          `yaml:"enabled"`
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

const (
	FetchErrorClear    = "clear"
	FetchErrorPreserve = "preserve"

	SnapshotMemory = "memory"
	SnapshotRedis  = "redis"
	SnapshotSQLite = "sqlite"
)

func Load(configPath string) (*Config, error) {
	// .env is optional on developer machines
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api base_url is required")
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("api base_url is invalid: %w", err)
	}

	if c.Realtime.Enabled && c.Realtime.URL == "" {
		return errors.New("realtime url is required when realtime is enabled")
	}

	switch c.Store.OnFetchError {
	case FetchErrorClear, FetchErrorPreserve:
	default:
		return fmt.Errorf("store.on_fetch_error must be %q or %q, got %q", FetchErrorClear, FetchErrorPreserve, c.Store.OnFetchError)
	}

	if c.Store.Snapshot.Enabled {
		switch c.Store.Snapshot.Backend {
		case SnapshotMemory:
		case SnapshotRedis:
			if c.Redis.Address == "" {
				return errors.New("redis address is required for redis snapshots")
			}
		case SnapshotSQLite:
			if c.Database.Path == "" {
				return errors.New("database path is required for sqlite snapshots")
			}
		default:
			return fmt.Errorf("unknown snapshot backend %q", c.Store.Snapshot.Backend)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "artisanlink"
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 20 * time.Second
	}
	if c.API.RateLimit.Burst <= 0 {
		c.API.RateLimit.Burst = 5
	}
	if c.Realtime.Reconnect.MaxRetries == 0 {
		c.Realtime.Reconnect.MaxRetries = 10
	}
	if c.Realtime.Reconnect.InitialDelay == 0 {
		c.Realtime.Reconnect.InitialDelay = time.Second
	}
	if c.Realtime.Reconnect.MaxDelay == 0 {
		c.Realtime.Reconnect.MaxDelay = 30 * time.Second
	}
	if c.Realtime.Reconnect.BackoffFactor == 0 {
		c.Realtime.Reconnect.BackoffFactor = 2
	}
	if c.Store.OnFetchError == "" {
		c.Store.OnFetchError = FetchErrorClear
	}
	if c.Store.Snapshot.Backend == "" {
		c.Store.Snapshot.Backend = SnapshotMemory
	}
	if c.Store.Snapshot.TTL == 0 {
		c.Store.Snapshot.TTL = 24 * time.Hour
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
