package config

import (
	"fmt"
	"strings"
	"time"
)

// PlatformConfig configures one automation platform connection.
type PlatformConfig struct {
	// Name identifies the platform in workflow records.
	Name string `yaml:"name" json:"name"`

	// Type is the execution model: "polling" or "webhook".
	Type string `yaml:"type" json:"type"`

	// BaseURL is the engine API base for polling platforms.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// APIKey authenticates requests to the platform, if required.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// PollInterval is the status poll interval for polling platforms.
	PollInterval string `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`

	// AllowedURLPrefixes restricts webhook targets to these prefixes.
	AllowedURLPrefixes []string `yaml:"allowed_url_prefixes,omitempty" json:"allowed_url_prefixes,omitempty"`

	// CallbackSecret is the shared HMAC secret for completion callbacks.
	CallbackSecret string `yaml:"callback_secret,omitempty" json:"callback_secret,omitempty"`

	// RequestTimeout bounds a single HTTP request to the platform.
	RequestTimeout string `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty"`
}

// SetDefaults sets default values for PlatformConfig.
func (c *PlatformConfig) SetDefaults() {
	if c.PollInterval == "" {
		c.PollInterval = "2s"
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "30s"
	}
}

// Validate validates the PlatformConfig.
func (c *PlatformConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("platform name is required")
	}
	switch c.Type {
	case "polling":
		if c.BaseURL == "" {
			return fmt.Errorf("platform '%s': base_url is required for polling platforms", c.Name)
		}
		if _, err := time.ParseDuration(c.PollInterval); err != nil {
			return fmt.Errorf("platform '%s': invalid poll_interval: %w", c.Name, err)
		}
	case "webhook":
		for _, prefix := range c.AllowedURLPrefixes {
			if !strings.HasPrefix(prefix, "http://") && !strings.HasPrefix(prefix, "https://") {
				return fmt.Errorf("platform '%s': allowed_url_prefixes entries must be http(s) URLs", c.Name)
			}
		}
	default:
		return fmt.Errorf("platform '%s': unknown type '%s', must be 'polling' or 'webhook'", c.Name, c.Type)
	}
	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf("platform '%s': invalid request_timeout: %w", c.Name, err)
	}
	return nil
}

// PollIntervalDuration returns the parsed poll interval.
func (c *PlatformConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// RequestTimeoutDuration returns the parsed request timeout.
func (c *PlatformConfig) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
