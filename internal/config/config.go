// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Storage reset scopes for iframe sessions.
const (
	// ResetScopeFrame re-navigates only the embedded document.
	ResetScopeFrame = "frame"
	// ResetScopeWrapper re-injects the wrapper page, producing a fresh embedded document.
	ResetScopeWrapper = "wrapper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
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

// ServerConfig configures the HTTP entry point.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	// RequestTimeout budgets the browser work of one request; the caller's
	// wait is held on top of it.
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// MaxConcurrentSessions bounds how many browsers run at once across requests.
	MaxConcurrentSessions int     `mapstructure:"max_concurrent_sessions" yaml:"max_concurrent_sessions"`
	RateLimit             float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst             int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	CacheControl          string  `mapstructure:"cache_control" yaml:"cache_control"`
	EnableMetrics         bool    `mapstructure:"enable_metrics" yaml:"enable_metrics"`
}

// BrowserConfig holds settings for the per-session browser instances.
type BrowserConfig struct {
	ExecPath      string         `mapstructure:"exec_path" yaml:"exec_path"`
	ScratchDir    string         `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	Viewport      map[string]int `mapstructure:"viewport" yaml:"viewport"`
	Locale        string         `mapstructure:"locale" yaml:"locale"`
	TimezoneID    string         `mapstructure:"timezone_id" yaml:"timezone_id"`
	LaunchTimeout time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	// StorageResetScope is either "frame" or "wrapper".
	StorageResetScope string `mapstructure:"storage_reset_scope" yaml:"storage_reset_scope"`
}

// ViewportSize returns the configured width and height, falling back to 1280x720.
func (b BrowserConfig) ViewportSize() (int, int) {
	w, h := b.Viewport["width"], b.Viewport["height"]
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 720
	}
	return w, h
}

// SessionConfig tunes the timings of the navigation steps.
type SessionConfig struct {
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	InteractionTimeout time.Duration `mapstructure:"interaction_timeout" yaml:"interaction_timeout"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
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

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "netprobe")
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
	v.SetDefault("logger.colors.fatal", "red")

	// -- Server --
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.request_timeout", "3m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_concurrent_sessions", 2)
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 4)
	v.SetDefault("server.cache_control", "s-maxage=3600, stale-while-revalidate")
	v.SetDefault("server.enable_metrics", true)

	// -- Browser --
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.scratch_dir", "~/.cache/netprobe")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 720})
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone_id", "America/New_York")
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.storage_reset_scope", ResetScopeFrame)

	// -- Session --
	v.SetDefault("session.settle_delay", "5s")
	v.SetDefault("session.interaction_timeout", "5s")
	v.SetDefault("session.navigation_timeout", "60s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
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
	if c.Server.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("server.max_concurrent_sessions must be a positive integer")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rate_burst must be positive when server.rate_limit is set")
	}
	switch c.Browser.StorageResetScope {
	case ResetScopeFrame, ResetScopeWrapper:
	default:
		return fmt.Errorf("browser.storage_reset_scope must be %q or %q, got %q",
			ResetScopeFrame, ResetScopeWrapper, c.Browser.StorageResetScope)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the session timing settings.
func (s *SessionConfig) Validate() error {
	if s.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if s.InteractionTimeout <= 0 {
		return fmt.Errorf("interaction_timeout must be a positive duration")
	}
	if s.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	return nil
}
