package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration accepts either a duration string like "3s" or integer nanoseconds in JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	case nil:
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// JSONConfig is the on-disk shape. Pointer fields distinguish "absent" from
// zero so a file only overrides what it names.
type JSONConfig struct {
	BaseURL           *string   `json:"base_url"`
	Timeout           *Duration `json:"timeout"`
	MaxAttempts       *int      `json:"max_attempts"`
	RetryDelay        *Duration `json:"retry_delay"`
	MaxRetryWait      *Duration `json:"max_retry_wait"`
	TenantID          *string   `json:"tenant_id"`
	DeviceID          *string   `json:"device_id"`
	DataDir           *string   `json:"data_dir"`
	TokenBackend      *string   `json:"token_backend"`
	RedisURL          *string   `json:"redis_url"`
	DownloadRateLimit *int64    `json:"download_rate_limit"`
}

// LoadJSON overlays c with the values present in the file at path.
func (c *Config) LoadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.BaseURL, jc.BaseURL)
	setString(&c.TenantID, jc.TenantID)
	setString(&c.DeviceID, jc.DeviceID)
	setString(&c.DataDir, jc.DataDir)
	setString(&c.TokenBackend, jc.TokenBackend)
	setString(&c.RedisURL, jc.RedisURL)
	setDuration(&c.Timeout, jc.Timeout)
	setDuration(&c.RetryDelay, jc.RetryDelay)
	setDuration(&c.MaxRetryWait, jc.MaxRetryWait)
	if jc.MaxAttempts != nil {
		c.MaxAttempts = *jc.MaxAttempts
	}
	if jc.DownloadRateLimit != nil {
		c.DownloadRateLimit = *jc.DownloadRateLimit
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
