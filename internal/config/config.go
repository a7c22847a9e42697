package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PHISHDASH_"

// Config is the main configuration structure
type Config struct {
	Platform   PlatformConfig  `yaml:"platform"`
	Workspaces []string        `yaml:"workspaces"`
	Poll       PollConfig      `yaml:"poll"`
	API        APIConfig       `yaml:"api"`
	Storage    StorageConfig   `yaml:"storage"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"` // Manual refresh limits
	Metrics    MetricsConfig   `yaml:"metrics"`
	Report     ReportConfig    `yaml:"report"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// PlatformConfig points at the phishing platform's results API
type PlatformConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"` // per-request timeout (default: 30s)
}

// PollConfig contains polling settings
type PollConfig struct {
	Interval time.Duration `yaml:"interval"` // Default: 20s
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	APIKeyHash     string        `yaml:"api_key_hash"`     // bcrypt hash, used instead of api_key
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // 0 keeps event streams open (default: 0)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to call /api/v1 (empty: all)
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RateLimitConfig limits manual refreshes, each of which costs an upstream fetch
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"` // counter persistence interval (default: 10s)

	// Limits across all workspaces
	Global *LimitValues `yaml:"global,omitempty"`

	// Limits for each workspace
	PerWorkspace *LimitValues `yaml:"per_workspace,omitempty"`

	// Limits for each client IP
	PerClient *LimitValues `yaml:"per_client,omitempty"`
}

// LimitValues contains refresh limit values. Zero means unlimited.
type LimitValues struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to access metrics
}

// ReportConfig contains digest mail settings
type ReportConfig struct {
	SMTPAddr string   `yaml:"smtp_addr"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Enabled reports whether digest mail is configured
func (r ReportConfig) Enabled() bool {
	return r.SMTPAddr != "" && len(r.To) > 0
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// envOverrides are secrets and endpoints that may come from the environment
type envOverrides struct {
	PlatformURL    string `env:"PLATFORM_URL"`
	PlatformAPIKey string `env:"PLATFORM_API_KEY"`
	APIKey         string `env:"API_KEY"`
	APIKeyHash     string `env:"API_KEY_HASH"`
	SMTPPassword   string `env:"SMTP_PASSWORD"`
	LogLevel       string `env:"LOG_LEVEL"`
}

// Load loads configuration from a YAML file and applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return err
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Platform.BaseURL, o.PlatformURL)
	set(&c.Platform.APIKey, o.PlatformAPIKey)
	set(&c.API.APIKey, o.APIKey)
	set(&c.API.APIKeyHash, o.APIKeyHash)
	set(&c.Report.Password, o.SMTPPassword)
	set(&c.Logging.Level, o.LogLevel)
	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = 30 * time.Second
	}

	if c.Poll.Interval == 0 {
		c.Poll.Interval = 20 * time.Second
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/phishdash/phishdash.db"
	}

	if c.RateLimit.Enabled && c.RateLimit.FlushInterval == 0 {
		c.RateLimit.FlushInterval = 10 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return errors.New("platform.base_url is required")
	}
	u, err := url.Parse(c.Platform.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid platform.base_url: %s", c.Platform.BaseURL)
	}

	if len(c.Workspaces) == 0 {
		return errors.New("workspaces must not be empty")
	}
	seen := make(map[string]bool, len(c.Workspaces))
	for _, ws := range c.Workspaces {
		if ws == "" {
			return errors.New("workspaces must not contain empty ids")
		}
		if seen[ws] {
			return fmt.Errorf("duplicate workspace: %s", ws)
		}
		seen[ws] = true
	}

	if c.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s, got %s", c.Poll.Interval)
	}

	if c.API.APIKey != "" && c.API.APIKeyHash != "" {
		return errors.New("api.api_key and api.api_key_hash are mutually exclusive")
	}

	if err := c.validateRateLimit(); err != nil {
		return err
	}

	if err := c.validateReport(); err != nil {
		return err
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateRateLimit() error {
	levels := map[string]*LimitValues{
		"global":        c.RateLimit.Global,
		"per_workspace": c.RateLimit.PerWorkspace,
		"per_client":    c.RateLimit.PerClient,
	}
	for name, v := range levels {
		if v == nil {
			continue
		}
		if v.PerMinute < 0 || v.PerHour < 0 {
			return fmt.Errorf("rate_limit.%s values must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateReport() error {
	r := c.Report
	if r.SMTPAddr == "" && len(r.To) == 0 {
		return nil
	}
	if r.SMTPAddr == "" {
		return errors.New("report.smtp_addr is required when report.to is set")
	}
	if len(r.To) == 0 {
		return errors.New("report.to must not be empty when report.smtp_addr is set")
	}
	if _, err := mail.ParseAddress(r.From); err != nil {
		return fmt.Errorf("invalid report.from: %w", err)
	}
	for _, to := range r.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return fmt.Errorf("invalid report.to address %q: %w", to, err)
		}
	}
	return nil
}
