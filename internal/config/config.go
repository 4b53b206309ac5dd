// Package config defines the application configuration, its defaults and
// validation. Values come from a YAML config file, FLOWLINE_* environment
// variables and CLI flags, merged through viper.
package config

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides
// (FLOWLINE_STORE_URL overrides store.url).
const EnvPrefix = "FLOWLINE"

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	Editor  EditorConfig  `mapstructure:"editor" yaml:"editor"`
}

// LoggerConfig holds all the configuration for the logger.
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

// StoreConfig selects and configures the document persistence backend.
type StoreConfig struct {
	// Type is "file" or "postgres".
	Type string `mapstructure:"type" yaml:"type"`
	// URL is the PostgreSQL connection string; required for type "postgres".
	URL string `mapstructure:"url" yaml:"-"`
	// Dir is the document directory for type "file". Supports ~ expansion.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// CatalogConfig points at an optional plugin descriptor overlay file.
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// EditorConfig holds editing-session defaults.
type EditorConfig struct {
	// DefaultDocument is opened when no document name is given.
	DefaultDocument string `mapstructure:"default_document" yaml:"default_document"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "flowline")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Store --
	v.SetDefault("store.type", "file")
	v.SetDefault("store.dir", "~/.flowline/documents")

	// -- Catalog --
	v.SetDefault("catalog.path", "")

	// -- Editor --
	v.SetDefault("editor.default_document", "")
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("store.url", EnvPrefix+"_STORE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Store.Dir != "" {
		dir, err := homedir.Expand(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("invalid store.dir: %w", err)
		}
		cfg.Store.Dir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required when store.type is %q", c.Store.Type)
		}
	case "postgres":
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required when store.type is %q (set %s_STORE_URL)", c.Store.Type, EnvPrefix)
		}
	default:
		return fmt.Errorf("store.type must be \"file\" or \"postgres\", got %q", c.Store.Type)
	}
	if c.Logger.MaxSize < 0 || c.Logger.MaxBackups < 0 || c.Logger.MaxAge < 0 {
		return fmt.Errorf("logger rotation settings must not be negative")
	}
	return nil
}
