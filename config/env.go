package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// Environment variables read by LoadEnv.
const (
	EnvBaseURL      = "TENANTCTL_BASE_URL"
	EnvTimeout      = "TENANTCTL_TIMEOUT"
	EnvRetries      = "TENANTCTL_RETRIES"
	EnvRetryDelay   = "TENANTCTL_RETRY_DELAY"
	EnvTenant       = "TENANTCTL_TENANT"
	EnvDeviceID     = "TENANTCTL_DEVICE_ID"
	EnvHome         = "TENANTCTL_HOME"
	EnvXDGDataHome  = "XDG_DATA_HOME"
	EnvTokenBackend = "TENANTCTL_TOKEN_BACKEND"
	EnvRedisURL     = "TENANTCTL_REDIS_URL"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadEnv overlays c with the environment. TENANTCTL_HOME wins over XDG_DATA_HOME.
func (c *Config) LoadEnv(lookup LookupFunc) error {
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvTenant); ok && v != "" {
		c.TenantID = v
	}
	if v, ok := lookup(EnvDeviceID); ok && v != "" {
		c.DeviceID = v
	}
	if v, ok := lookup(EnvTokenBackend); ok && v != "" {
		c.TokenBackend = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.RedisURL = v
	}
	if v, ok := lookup(EnvXDGDataHome); ok && v != "" {
		c.DataDir = filepath.Join(v, "tenantctl")
	}
	if v, ok := lookup(EnvHome); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v, ok := lookup(EnvRetryDelay); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetryDelay, err)
		}
		c.RetryDelay = d
	}
	if v, ok := lookup(EnvRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid number %q", EnvRetries, v)
		}
		c.MaxAttempts = n
	}
	return nil
}

// parseDuration accepts "1500ms"-style values or a bare number of milliseconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}
