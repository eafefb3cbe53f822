package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Scraping ScrapingConfig `toml:"scraping"`
	Store    StoreConfig    `toml:"store"`
	Server   ServerConfig   `toml:"server"`
	Schedule ScheduleConfig `toml:"schedule"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ScrapingConfig struct {
	SessionPath              string  `toml:"session_path"`
	Headless                 bool    `toml:"headless"`
	BaseURL                  string  `toml:"base_url"`
	UserAgent                string  `toml:"user_agent"`
	MaxScrolls               int     `toml:"max_scrolls"`
	DefaultMaxItems          int     `toml:"default_max_items"`
	MaxItemsLimit            int     `toml:"max_items_limit"`
	NavigationTimeoutSeconds int     `toml:"navigation_timeout_seconds"`
	SettleDelayMs            int     `toml:"settle_delay_ms"`
	MinScrollDelayMs         int     `toml:"min_scroll_delay_ms"`
	MaxScrollDelayMs         int     `toml:"max_scroll_delay_ms"`
	ScrollFraction           float64 `toml:"scroll_fraction"`
}

type StoreConfig struct {
	DBPath string `toml:"db_path"`
}

type ServerConfig struct {
	ListenAddr     string `toml:"listen_addr"`
	DefaultKeyword string `toml:"default_keyword"`
}

type ScheduleConfig struct {
	Enabled       bool     `toml:"enabled"`
	Keywords      []string `toml:"keywords"`
	IntervalHours int      `toml:"interval_hours"`
	MaxItems      int      `toml:"max_items"`
	Timezone      string   `toml:"timezone"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultUserAgent is the desktop Chrome user agent presented to X.com
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Scraping: ScrapingConfig{
			SessionPath:              filepath.Join("storage", "x-auth.json"),
			Headless:                 true,
			BaseURL:                  "https://x.com",
			UserAgent:                DefaultUserAgent,
			MaxScrolls:               10,
			DefaultMaxItems:          30,
			MaxItemsLimit:            50,
			NavigationTimeoutSeconds: 60,
			SettleDelayMs:            3000,
			MinScrollDelayMs:         2000,
			MaxScrollDelayMs:         5000,
			ScrollFraction:           0.8,
		},
		Store: StoreConfig{
			DBPath: filepath.Join("data", "xpulse.db"),
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			DefaultKeyword: "AI artificial intelligence technology product",
		},
		Schedule: ScheduleConfig{
			Enabled:       false,
			Keywords:      []string{},
			IntervalHours: 2,
			MaxItems:      30,
			Timezone:      "Local",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// NavigationTimeout returns the bound on the initial page load
func (s ScrapingConfig) NavigationTimeout() time.Duration {
	return time.Duration(s.NavigationTimeoutSeconds) * time.Second
}

// SettleDelay returns the pause between navigation and the first extraction
func (s ScrapingConfig) SettleDelay() time.Duration {
	return time.Duration(s.SettleDelayMs) * time.Millisecond
}

// ScrollDelay returns the bounds of the randomized wait after each scroll
func (s ScrapingConfig) ScrollDelay() (time.Duration, time.Duration) {
	return time.Duration(s.MinScrollDelayMs) * time.Millisecond,
		time.Duration(s.MaxScrollDelayMs) * time.Millisecond
}

// Validate reports the first nonsensical value in the config
func (c *Config) Validate() error {
	s := c.Scraping
	switch {
	case s.BaseURL == "":
		return errors.New("scraping.base_url must be set")
	case s.MaxScrolls <= 0:
		return fmt.Errorf("scraping.max_scrolls must be positive, got %d", s.MaxScrolls)
	case s.DefaultMaxItems <= 0:
		return fmt.Errorf("scraping.default_max_items must be positive, got %d", s.DefaultMaxItems)
	case s.MaxItemsLimit < s.DefaultMaxItems:
		return fmt.Errorf("scraping.max_items_limit (%d) is below default_max_items (%d)", s.MaxItemsLimit, s.DefaultMaxItems)
	case s.NavigationTimeoutSeconds <= 0:
		return fmt.Errorf("scraping.navigation_timeout_seconds must be positive, got %d", s.NavigationTimeoutSeconds)
	case s.SettleDelayMs < 0 || s.MinScrollDelayMs < 0:
		return errors.New("scraping delays must not be negative")
	case s.MinScrollDelayMs > s.MaxScrollDelayMs:
		return fmt.Errorf("scraping.min_scroll_delay_ms (%d) exceeds max_scroll_delay_ms (%d)", s.MinScrollDelayMs, s.MaxScrollDelayMs)
	case s.ScrollFraction <= 0 || s.ScrollFraction > 1:
		return fmt.Errorf("scraping.scroll_fraction must be in (0, 1], got %v", s.ScrollFraction)
	}

	if c.Store.DBPath == "" {
		return errors.New("store.db_path must be set")
	}

	if c.Schedule.Enabled {
		if c.Schedule.IntervalHours <= 0 {
			return fmt.Errorf("schedule.interval_hours must be positive, got %d", c.Schedule.IntervalHours)
		}
		if len(c.Schedule.Keywords) == 0 {
			return errors.New("schedule.keywords must not be empty when the schedule is enabled")
		}
	}

	return nil
}

// ApplyEnv overrides config values from XPULSE_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("XPULSE_SESSION_PATH"); v != "" {
		c.Scraping.SessionPath = v
	}
	if v := os.Getenv("XPULSE_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("XPULSE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("XPULSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("XPULSE_HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid XPULSE_HEADLESS %q: %w", v, err)
		}
		c.Scraping.Headless = headless
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "xpulse"), nil
}

// ConfigPath returns the full path to the default config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from path. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes config to path, creating its directory
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// LoadOrCreate loads the config at path, writing defaults there on first run
func LoadOrCreate(path string) (cfg *Config, created bool, err error) {
	cfg, err = Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	cfg = Default()
	if err := cfg.Save(path); err != nil {
		return nil, false, fmt.Errorf("failed to save default config: %w", err)
	}
	return cfg, true, nil
}
