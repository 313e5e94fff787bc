package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/foi")
	os.Unsetenv("ENV")

	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvDevelopment {
		t.Errorf("expected %q, got %q", EnvDevelopment, cfg.Environment)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.ListenAddr)
	}
	if len(cfg.Throttle) != 2 {
		t.Errorf("expected 2 default throttle windows, got %d", len(cfg.Throttle))
	}
}

func TestLoadServerConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
environment: staging
database_url: postgres://db/foi
secret_domain: foi.example.org
throttle:
  - count: 2
    period: 60s
holidays:
  - 2026-12-25
`)
	os.Unsetenv("ENV")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("SECRET_DOMAIN")

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvStaging {
		t.Errorf("expected staging, got %q", cfg.Environment)
	}
	if cfg.SecretDomain != "foi.example.org" {
		t.Errorf("unexpected secret domain %q", cfg.SecretDomain)
	}

	windows, err := cfg.ThrottleWindows()
	if err != nil {
		t.Fatalf("throttle windows: %v", err)
	}
	if len(windows) != 1 || windows[0].Count != 2 || windows[0].Period != time.Minute {
		t.Errorf("unexpected windows %+v", windows)
	}

	holidays, err := cfg.HolidayDates()
	if err != nil {
		t.Fatalf("holidays: %v", err)
	}
	if len(holidays) != 1 || holidays[0].Month() != time.December {
		t.Errorf("unexpected holidays %v", holidays)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database_url: postgres://file/foi
secret_domain: foi.example.org
`)
	t.Setenv("DATABASE_URL", "postgres://env/foi")

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/foi" {
		t.Errorf("environment should override file, got %q", cfg.DatabaseURL)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*ServerConfig)
	}{
		{"missing database url", func(c *ServerConfig) { c.DatabaseURL = "" }},
		{"missing secret domain", func(c *ServerConfig) { c.SecretDomain = "" }},
		{"unknown environment", func(c *ServerConfig) { c.Environment = "qa" }},
		{"bad throttle period", func(c *ServerConfig) {
			c.Throttle = []ThrottleWindow{{Count: 1, Period: "sometimes"}}
		}},
		{"nonpositive throttle count", func(c *ServerConfig) {
			c.Throttle = []ThrottleWindow{{Count: 0, Period: "1m"}}
		}},
		{"bad holiday", func(c *ServerConfig) { c.Holidays = []string{"christmas"} }},
		{"short session secret in production", func(c *ServerConfig) {
			c.Environment = EnvProduction
			c.SessionSecret = "short"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			cfg.DatabaseURL = "postgres://localhost/foi"
			tt.mod(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
