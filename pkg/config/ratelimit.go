package config

import "fmt"

// RateLimitConfig defines per-agent execution rate limiting.
// Two sliding windows apply at once; an execution is admitted only when
// both have headroom.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// PerMinute is the maximum executions per agent in a sliding minute.
	PerMinute int `yaml:"per_minute,omitempty" json:"per_minute,omitempty"`

	// PerHour is the maximum executions per agent in a sliding hour.
	PerHour int `yaml:"per_hour,omitempty" json:"per_hour,omitempty"`
}

// IsEnabled returns true if rate limiting is enabled.
func (c *RateLimitConfig) IsEnabled() bool {
	return c != nil && (c.Enabled == nil || *c.Enabled)
}

// SetDefaults sets default values for RateLimitConfig.
func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.PerMinute == 0 {
		c.PerMinute = 10
	}
	if c.PerHour == 0 {
		c.PerHour = 100
	}
}

// Validate validates the RateLimitConfig.
func (c *RateLimitConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.PerMinute <= 0 {
		return fmt.Errorf("rate_limit.per_minute must be positive")
	}
	if c.PerHour <= 0 {
		return fmt.Errorf("rate_limit.per_hour must be positive")
	}
	if c.PerHour < c.PerMinute {
		return fmt.Errorf("rate_limit.per_hour must be >= rate_limit.per_minute")
	}
	return nil
}
