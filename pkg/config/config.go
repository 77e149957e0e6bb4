package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// Config is the root configuration.
type Config struct {
	Log        LogConfig        `yaml:"log,omitempty" json:"log,omitempty"`
	Server     ServerConfig     `yaml:"server,omitempty" json:"server,omitempty"`
	Thresholds ThresholdsConfig `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Platforms  []PlatformConfig `yaml:"platforms,omitempty" json:"platforms,omitempty"`
	Catalog    CatalogConfig    `yaml:"catalog,omitempty" json:"catalog,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// Workflows feeds the file-backed catalog.
	Workflows []WorkflowSpec `yaml:"workflows,omitempty" json:"workflows,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// CatalogConfig selects the workflow catalog backend.
type CatalogConfig struct {
	// Source is "file" (workflows section / file, hot-reloaded) or "http"
	// (remote catalog service).
	Source string `yaml:"source,omitempty" json:"source,omitempty"`

	// File is an external workflow definition file for the file source.
	// Empty means the inline workflows section of this config.
	File string `yaml:"file,omitempty" json:"file,omitempty"`

	// BaseURL is the remote catalog base for the http source.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// APIKey authenticates against the remote catalog.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
}

// WorkflowSpec is the yaml shape of a workflow record. Durations are
// human-readable strings ("90s"); ToWorkflow converts to the domain type.
type WorkflowSpec struct {
	ID                string               `yaml:"id" json:"id"`
	Name              string               `yaml:"name" json:"name"`
	Platform          string               `yaml:"platform" json:"platform"`
	Target            string               `yaml:"target" json:"target"`
	Triggers          []string             `yaml:"triggers" json:"triggers"`
	Description       string               `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters        []workflow.Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Active            *bool                `yaml:"active,omitempty" json:"active,omitempty"`
	Tags              []string             `yaml:"tags,omitempty" json:"tags,omitempty"`
	EstimatedDuration string               `yaml:"estimated_duration,omitempty" json:"estimated_duration,omitempty"`
}

// ToWorkflow converts the spec into a validated domain record.
func (s *WorkflowSpec) ToWorkflow() (*workflow.Workflow, error) {
	estimated := 60 * time.Second
	if s.EstimatedDuration != "" {
		d, err := time.ParseDuration(s.EstimatedDuration)
		if err != nil {
			return nil, fmt.Errorf("workflow '%s': invalid estimated_duration: %w", s.ID, err)
		}
		estimated = d
	}

	active := true
	if s.Active != nil {
		active = *s.Active
	}

	w := &workflow.Workflow{
		ID:                s.ID,
		Name:              s.Name,
		Platform:          workflow.Platform(s.Platform),
		Target:            s.Target,
		Triggers:          s.Triggers,
		Description:       s.Description,
		Parameters:        s.Parameters,
		Active:            active,
		Tags:              s.Tags,
		EstimatedDuration: estimated,
		CreatedAt:         time.Now(),
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}

// SetDefaults sets defaults on the whole tree.
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "simple"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Catalog.Source == "" {
		c.Catalog.Source = "file"
	}
	c.Thresholds.SetDefaults()
	c.RateLimit.SetDefaults()
	for i := range c.Platforms {
		c.Platforms[i].SetDefaults()
	}
}

// Validate validates the whole tree.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for i := range c.Platforms {
		p := &c.Platforms[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate platform name '%s'", p.Name)
		}
		seen[p.Name] = true
	}

	switch c.Catalog.Source {
	case "file":
		// inline workflows or external file, both fine
	case "http":
		if c.Catalog.BaseURL == "" {
			return fmt.Errorf("catalog.base_url is required for http catalog source")
		}
	default:
		return fmt.Errorf("unknown catalog.source '%s', must be 'file' or 'http'", c.Catalog.Source)
	}

	for i := range c.Workflows {
		if _, err := c.Workflows[i].ToWorkflow(); err != nil {
			return err
		}
		// Workflows must reference a configured platform by name.
		if len(c.Platforms) > 0 && !seen[c.Workflows[i].Platform] {
			return fmt.Errorf("workflow '%s' references unconfigured platform '%s'",
				c.Workflows[i].ID, c.Workflows[i].Platform)
		}
	}
	return nil
}

// Load reads, env-expands, parses, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config bytes (after env-var expansion).
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
