// Package config provides configuration management for the FOI portal
// server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/storage"
	"github.com/openfoi/foiportal/internal/throttle"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ThrottleWindow is one request-creation bound in the config file. The
// period is a duration string ("60s", "1h", "24h").
type ThrottleWindow struct {
	Count  int    `yaml:"count"`
	Period string `yaml:"period"`
}

// RateLimitConfig bounds the HTTP surface, independently of the
// domain-level request-creation throttle.
type RateLimitConfig struct {
	Requests int64  `yaml:"requests"`
	Period   string `yaml:"period"`
}

// OIDCConfig holds the login provider settings.
type OIDCConfig struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Enabled reports whether an OIDC provider is configured.
func (c OIDCConfig) Enabled() bool {
	return c.Issuer != ""
}

// OperatorToken maps a bcrypt token hash to a staff account, for
// non-interactive operator access.
type OperatorToken struct {
	Email     string `yaml:"email"`
	TokenHash string `yaml:"token_hash"`
}

// StorageConfig selects the attachment blob backend. When S3 is
// configured it wins; otherwise the local directory is used.
type StorageConfig struct {
	LocalDir string            `yaml:"local_dir,omitempty"`
	S3       *storage.S3Config `yaml:"s3,omitempty"`
}

// ServerConfig holds the portal server configuration, loaded from a
// YAML file with environment variable overrides.
type ServerConfig struct {
	Environment Environment `yaml:"environment"`
	ListenAddr  string      `yaml:"listen_addr"`
	DatabaseURL string      `yaml:"database_url"`
	// SiteURL is the public base URL of the portal, used in outbound
	// letters and OIDC redirects.
	SiteURL string `yaml:"site_url"`
	// SecretDomain is the mail domain private request addresses are
	// minted under.
	SecretDomain string `yaml:"secret_domain"`

	SessionSecret string `yaml:"session_secret"`
	SessionMaxAge int    `yaml:"session_max_age"`

	CORSOrigins []string        `yaml:"cors_origins,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	// RedisURL enables a shared limiter store across instances. Empty
	// means in-memory limiting.
	RedisURL string `yaml:"redis_url,omitempty"`

	SMTP    mail.SMTPConfig `yaml:"smtp"`
	Storage StorageConfig   `yaml:"storage"`
	OIDC    OIDCConfig      `yaml:"oidc"`

	Throttle []ThrottleWindow `yaml:"throttle,omitempty"`
	// Holidays are dates (YYYY-MM-DD) excluded from business-day
	// deadline computation.
	Holidays []string `yaml:"holidays,omitempty"`

	OperatorTokens []OperatorToken `yaml:"operator_tokens,omitempty"`

	// OverdueCheckSchedule is a cron expression for the overdue-request
	// sweep.
	OverdueCheckSchedule string `yaml:"overdue_check_schedule"`
}

// DefaultServerConfig returns a ServerConfig with development
// defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Environment:   EnvDevelopment,
		ListenAddr:    ":8080",
		SecretDomain:  "foi.localhost",
		SessionMaxAge: 86400,
		RateLimit: RateLimitConfig{
			Requests: 100,
			Period:   "1m",
		},
		Throttle: []ThrottleWindow{
			{Count: 5, Period: "1h"},
			{Count: 20, Period: "24h"},
		},
		Storage:              StorageConfig{LocalDir: "data/attachments"},
		OverdueCheckSchedule: "0 * * * *",
	}
}

// LoadServerConfig reads the configuration file at path, applies
// environment overrides and validates the result. A missing file is
// not an error; defaults plus environment apply then.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *ServerConfig) applyEnv() {
	if v := os.Getenv("ENV"); v != "" {
		c.Environment = Environment(v)
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.SessionSecret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("SECRET_DOMAIN"); v != "" {
		c.SecretDomain = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}
}

// Validate checks that the configuration is usable.
func (c *ServerConfig) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.SecretDomain == "" {
		return fmt.Errorf("secret_domain is required")
	}
	if c.Environment == EnvProduction && len(c.SessionSecret) < 32 {
		return fmt.Errorf("session_secret must be at least 32 bytes in production")
	}
	if _, err := c.ThrottleWindows(); err != nil {
		return err
	}
	if _, err := c.HolidayDates(); err != nil {
		return err
	}
	if c.Storage.S3 != nil {
		if err := c.Storage.S3.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ThrottleWindows converts the configured bounds into throttle
// windows.
func (c *ServerConfig) ThrottleWindows() ([]throttle.Window, error) {
	windows := make([]throttle.Window, 0, len(c.Throttle))
	for _, w := range c.Throttle {
		if w.Count <= 0 {
			return nil, fmt.Errorf("throttle count must be positive, got %d", w.Count)
		}
		period, err := time.ParseDuration(w.Period)
		if err != nil {
			return nil, fmt.Errorf("invalid throttle period %q: %w", w.Period, err)
		}
		windows = append(windows, throttle.Window{Count: w.Count, Period: period})
	}
	return windows, nil
}

// HolidayDates parses the configured holiday list.
func (c *ServerConfig) HolidayDates() ([]time.Time, error) {
	dates := make([]time.Time, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		d, err := time.Parse("2006-01-02", h)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", h, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}
