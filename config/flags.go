package config

import (
	"github.com/spf13/pflag"
)

// Flag names shared by the root command.
const (
	FlagBaseURL      = "base-url"
	FlagTimeout      = "timeout"
	FlagRetries      = "retries"
	FlagRetryDelay   = "retry-delay"
	FlagTenant       = "tenant"
	FlagDeviceID     = "device-id"
	FlagConfig       = "config"
	FlagTokenBackend = "token-backend"
)

// RegisterFlags adds the persistent connection flags to fs. Their defaults
// are only shown in help; ApplyFlags copies a value only when it was set.
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()
	fs.String(FlagBaseURL, d.BaseURL, "Base URL of the API")
	fs.Duration(FlagTimeout, d.Timeout, "Timeout for a single request attempt")
	fs.Int(FlagRetries, d.MaxAttempts, "Maximum attempts for retryable failures")
	fs.Duration(FlagRetryDelay, d.RetryDelay, "Base delay between attempts (grows linearly)")
	fs.String(FlagTenant, "", "Tenant ID sent as X-Tenant-ID")
	fs.String(FlagDeviceID, "", "Device ID sent with refresh requests (defaults to the stored one)")
	fs.String(FlagConfig, "", "Path to a JSON config file")
	fs.String(FlagTokenBackend, d.TokenBackend, "Where tokens are kept [sqlite, redis, memory]")
}

// ApplyFlags overlays c with the flags the user set explicitly.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	if fs.Changed(FlagBaseURL) {
		v, err := fs.GetString(FlagBaseURL)
		if err != nil {
			return err
		}
		c.BaseURL = v
	}
	if fs.Changed(FlagTimeout) {
		v, err := fs.GetDuration(FlagTimeout)
		if err != nil {
			return err
		}
		c.Timeout = v
	}
	if fs.Changed(FlagRetries) {
		v, err := fs.GetInt(FlagRetries)
		if err != nil {
			return err
		}
		c.MaxAttempts = v
	}
	if fs.Changed(FlagRetryDelay) {
		v, err := fs.GetDuration(FlagRetryDelay)
		if err != nil {
			return err
		}
		c.RetryDelay = v
	}
	if fs.Changed(FlagTenant) {
		v, err := fs.GetString(FlagTenant)
		if err != nil {
			return err
		}
		c.TenantID = v
	}
	if fs.Changed(FlagDeviceID) {
		v, err := fs.GetString(FlagDeviceID)
		if err != nil {
			return err
		}
		c.DeviceID = v
	}
	if fs.Changed(FlagTokenBackend) {
		v, err := fs.GetString(FlagTokenBackend)
		if err != nil {
			return err
		}
		c.TokenBackend = v
	}
	return nil
}
