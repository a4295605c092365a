package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Browser     BrowserConfig
	Bridge      BridgeConfig
	Fetcher     FetcherConfig
	Logging     LogConfig
	Diagnostics DiagnosticsConfig
}

// BrowserConfig holds browser launch configuration.
type BrowserConfig struct {
	ExecutablePath      string        `envconfig:"BROWSER_PATH"`
	UserDataDir         string        `envconfig:"BROWSER_USER_DATA_DIR"`
	Headless            bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	RemoteDebuggingPort int           `envconfig:"BROWSER_DEBUG_PORT" default:"0"`
	StartupTimeout      time.Duration `envconfig:"BROWSER_STARTUP_TIMEOUT" default:"30s"`
	UsePTY              bool          `envconfig:"BROWSER_USE_PTY" default:"false"`
	Profile             string        `envconfig:"BROWSER_PROFILE"`
	Flags               []string      `envconfig:"BROWSER_FLAGS"`
	RemoveFlags         []string      `envconfig:"BROWSER_REMOVE_FLAGS"`
}

// BridgeConfig holds protocol bridge configuration.
type BridgeConfig struct {
	CallTimeout     time.Duration `envconfig:"BRIDGE_CALL_TIMEOUT" default:"30s"`
	ReclaimAfter    time.Duration `envconfig:"BRIDGE_RECLAIM_AFTER" default:"30s"`
	ReconnectWindow time.Duration `envconfig:"BRIDGE_RECONNECT_WINDOW" default:"2s"`
	ReconnectPoll   time.Duration `envconfig:"BRIDGE_RECONNECT_POLL" default:"10ms"`
	MinVersion      string        `envconfig:"BRIDGE_MIN_BROWSER_VERSION"`
}

// FetcherConfig holds browser download configuration.
type FetcherConfig struct {
	Enabled  bool   `envconfig:"FETCHER_ENABLED" default:"false"`
	Folder   string `envconfig:"FETCHER_FOLDER" default:".local-browser"`
	Revision string `envconfig:"FETCHER_REVISION" default:"1132420"`
	Host     string `envconfig:"FETCHER_HOST" default:"https://storage.googleapis.com"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// DiagnosticsConfig holds the diagnostics HTTP server configuration.
type DiagnosticsConfig struct {
	Enabled           bool   `envconfig:"DIAG_ENABLED" default:"false"`
	Addr              string `envconfig:"DIAG_ADDR" default:"127.0.0.1:9333"`
	RequestsPerSecond int    `envconfig:"DIAG_RATE_LIMIT_RPS" default:"50"`
	Burst             int    `envconfig:"DIAG_RATE_LIMIT_BURST" default:"100"`
}

// Load loads configuration from environment variables. When BROWSER_PROFILE
// names a file, its values are applied on top of the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Browser.Profile != "" {
		profile, err := LoadProfile(cfg.Browser.Profile)
		if err != nil {
			return nil, err
		}
		profile.Apply(&cfg.Browser)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:       true,
			StartupTimeout: 30 * time.Second,
		},
		Bridge: BridgeConfig{
			CallTimeout:     30 * time.Second,
			ReclaimAfter:    30 * time.Second,
			ReconnectWindow: 2 * time.Second,
			ReconnectPoll:   10 * time.Millisecond,
		},
		Fetcher: FetcherConfig{
			Folder:   ".local-browser",
			Revision: "1132420",
			Host:     "https://storage.googleapis.com",
		},
		Logging: LogConfig{
			Level: "info",
		},
		Diagnostics: DiagnosticsConfig{
			Addr:              "127.0.0.1:9333",
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}
