package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. SCALPEL_LOCATOR_HEALING_LEARNING.
const EnvPrefix = "SCALPEL_LOCATOR"

// Store backends.
const (
	StoreTypeFile     = "file"
	StoreTypePostgres = "postgres"
	StoreTypeSQLite   = "sqlite"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Healing HealingConfig `mapstructure:"healing" yaml:"healing"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Finder  FinderConfig  `mapstructure:"finder" yaml:"finder"`
}

// LoggerConfig defines all the settings for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// HealingConfig controls what the resolver does once a configured locator fails.
type HealingConfig struct {
	AutoUpdate        bool   `mapstructure:"auto_update" yaml:"auto_update"`
	Learning          bool   `mapstructure:"learning" yaml:"learning"`
	TestHookAttribute string `mapstructure:"test_hook_attribute" yaml:"test_hook_attribute"`
}

// StoreConfig selects where locators are read from and written back to.
type StoreConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"`
	Dir      string         `mapstructure:"dir" yaml:"dir"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
}

type PostgresConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	EnsureSchema bool   `mapstructure:"ensure_schema" yaml:"ensure_schema"`
}

// SQLiteConfig points at a single database file shared by every namespace.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// BrowserConfig holds settings for the Chrome instance used for live pages.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// FinderConfig tunes the polling wait layered above the resolver.
type FinderConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// NewDefaultConfig returns a config populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-locator")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Healing --
	v.SetDefault("healing.auto_update", true)
	v.SetDefault("healing.learning", true)
	v.SetDefault("healing.test_hook_attribute", "data-test")

	// -- Store --
	v.SetDefault("store.type", StoreTypeFile)
	v.SetDefault("store.dir", "locators")
	v.SetDefault("store.postgres.url", "")
	v.SetDefault("store.postgres.ensure_schema", true)
	v.SetDefault("store.sqlite.path", "locators.db")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.query_timeout", "5s")

	// -- Finder --
	v.SetDefault("finder.timeout", "10s")
	v.SetDefault("finder.initial_interval", "100ms")
	v.SetDefault("finder.max_interval", "1s")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Keep credentials out of config files.
	v.BindEnv("store.postgres.url", EnvPrefix+"_STORE_POSTGRES_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logger.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json'")
	}
	if strings.TrimSpace(c.Healing.TestHookAttribute) == "" {
		return fmt.Errorf("healing.test_hook_attribute must not be empty")
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be positive")
	}
	if err := c.Finder.Validate(); err != nil {
		return fmt.Errorf("finder configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the store selection.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case StoreTypeFile:
		if s.Dir == "" {
			return fmt.Errorf("dir is required for the file store")
		}
	case StoreTypePostgres:
		if s.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required for the postgres store")
		}
	case StoreTypeSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("type must be %q, %q or %q, got %q", StoreTypeFile, StoreTypePostgres, StoreTypeSQLite, s.Type)
	}
	return nil
}

// Validate checks the polling intervals.
func (f *FinderConfig) Validate() error {
	if f.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if f.InitialInterval <= 0 {
		return fmt.Errorf("initial_interval must be positive")
	}
	if f.MaxInterval < f.InitialInterval {
		return fmt.Errorf("max_interval must be at least initial_interval")
	}
	return nil
}
