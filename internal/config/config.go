// Package config provides configuration management for the ASO worker.
package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 38080

	// DefaultModel for LLM-backed keyword work (aliases resolve to the
	// latest version on the CLI side).
	DefaultModel = "haiku"

	// DefaultSearchDepth is how many search results to request per
	// keyword when scoring.
	DefaultSearchDepth = 100

	// DefaultSearchCacheTTL is how long store search results stay cached.
	DefaultSearchCacheTTL = 24 * time.Hour

	// DefaultKeywordCacheTTL is how long extracted competitor keywords
	// stay cached.
	DefaultKeywordCacheTTL = 7 * 24 * time.Hour
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerPort int `yaml:"worker_port"`

	// Database settings. DSN selects the backend: a postgres:// URL uses
	// the postgres driver, anything else is treated as a sqlite path.
	DatabaseDSN string `yaml:"database_dsn"`
	MaxConns    int    `yaml:"max_conns"`

	// Redis cache settings. Empty address disables Redis and falls back
	// to the in-process cache.
	RedisAddr string `yaml:"redis_addr"`

	// LLM settings
	Model   string `yaml:"model"`
	CLIPath string `yaml:"cli_path"`

	// Search client settings
	SearchBaseURL   string        `yaml:"search_base_url"`
	SearchDepth     int           `yaml:"search_depth"`
	SearchCacheTTL  time.Duration `yaml:"search_cache_ttl"`
	KeywordCacheTTL time.Duration `yaml:"keyword_cache_ttl"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:      DefaultWorkerPort,
		DatabaseDSN:     "appagent.db",
		MaxConns:        10,
		Model:           DefaultModel,
		SearchBaseURL:   "https://itunes.apple.com",
		SearchDepth:     DefaultSearchDepth,
		SearchCacheTTL:  DefaultSearchCacheTTL,
		KeywordCacheTTL: DefaultKeywordCacheTTL,
	}
}

// SettingsPath returns the settings file path, overridable via
// APPAGENT_SETTINGS.
func SettingsPath() string {
	if p := os.Getenv("APPAGENT_SETTINGS"); p != "" {
		return p
	}
	return "settings.yaml"
}

// Load loads configuration from the settings file, merging with
// defaults, then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays APPAGENT_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("APPAGENT_WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.WorkerPort = port
		}
	}
	if v := os.Getenv("APPAGENT_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("APPAGENT_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("APPAGENT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("APPAGENT_CLI_PATH"); v != "" {
		cfg.CLIPath = v
	}
	if v := os.Getenv("APPAGENT_SEARCH_BASE_URL"); v != "" {
		cfg.SearchBaseURL = v
	}
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})
	return globalConfig
}
