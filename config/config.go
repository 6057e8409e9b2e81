package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Token storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds runtime settings for the tenantctl CLI.
//
// Timeout bounds a single attempt, RetryDelay is the linear backoff unit and
// MaxRetryWait caps any single wait, including server-provided Retry-After values.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	MaxRetryWait      time.Duration
	TenantID          string
	DeviceID          string
	DataDir           string
	TokenBackend      string
	RedisURL          string
	DownloadRateLimit int64
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://localhost:3000/api"
	c.Timeout = 30 * time.Second
	c.MaxAttempts = 3
	c.RetryDelay = time.Second
	c.MaxRetryWait = 30 * time.Second
	c.TenantID = ""
	c.DeviceID = ""
	c.DataDir = defaultDataDir()
	c.TokenBackend = BackendSQLite
	c.RedisURL = "redis://localhost:6379/0"
	c.DownloadRateLimit = 0
}

// Load applies defaults, then the JSON file at jsonPath (if any), then the
// environment. Flags are overlaid by the caller, so later sources win.
func Load(jsonPath string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if jsonPath != "" {
		if err := cfg.LoadJSON(jsonPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that would make the client unusable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base URL must be absolute, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative, got %s", c.RetryDelay)
	}
	if c.DownloadRateLimit < 0 {
		return fmt.Errorf("download rate limit cannot be negative, got %d", c.DownloadRateLimit)
	}
	switch c.TokenBackend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis token backend needs a redis URL")
		}
	default:
		return fmt.Errorf("unknown token backend %q (must be one of: sqlite, redis, memory)", c.TokenBackend)
	}
	return nil
}

// DBPath is the sqlite file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "tenantctl.db")
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".tenantctl")
	}
	return ".tenantctl"
}
