package config

import (
	"os"
	"testing"
	"time"
)

const sampleConfig = `
log:
  level: debug
server:
  port: 9090
thresholds:
  auto_execute: 0.9
rate_limit:
  per_minute: 5
platforms:
  - name: polling
    type: polling
    base_url: http://engine.internal:8000/api
    api_key: ${ENGINE_KEY:-fallback-key}
workflows:
  - id: wf-deploy
    name: Deploy
    platform: polling
    target: deploy
    triggers: ["deploy to staging"]
    estimated_duration: 90s
`

func TestParseAppliesDefaultsAndExpansion(t *testing.T) {
	os.Unsetenv("ENGINE_KEY")

	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}

	// Explicit values pass through, the rest falls back to defaults.
	if cfg.Thresholds.AutoExecute != 0.9 {
		t.Errorf("expected auto_execute 0.9, got %v", cfg.Thresholds.AutoExecute)
	}
	if cfg.Thresholds.Confirmation != 0.65 || cfg.Thresholds.Suggestion != 0.40 {
		t.Errorf("expected default lower thresholds, got %+v", cfg.Thresholds)
	}
	if cfg.RateLimit.PerMinute != 5 || cfg.RateLimit.PerHour != 100 {
		t.Errorf("unexpected rate limit config: %+v", cfg.RateLimit)
	}

	if cfg.Platforms[0].APIKey != "fallback-key" {
		t.Errorf("expected env default expansion, got %q", cfg.Platforms[0].APIKey)
	}
	if cfg.Platforms[0].PollInterval != "2s" {
		t.Errorf("expected default poll interval, got %s", cfg.Platforms[0].PollInterval)
	}
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("ENGINE_KEY", "real-key")
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Platforms[0].APIKey != "real-key" {
		t.Errorf("expected env value, got %q", cfg.Platforms[0].APIKey)
	}
}

func TestThresholdsMustBeMonotonic(t *testing.T) {
	cfg := ThresholdsConfig{AutoExecute: 0.5, Confirmation: 0.7, Suggestion: 0.4}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-monotonic thresholds to be rejected")
	}
}

func TestThresholdsOutOfRange(t *testing.T) {
	cfg := ThresholdsConfig{AutoExecute: 1.5, Confirmation: 0.65, Suggestion: 0.40}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an out-of-range threshold to be rejected")
	}
}

func TestPlatformValidation(t *testing.T) {
	p := PlatformConfig{Name: "engine", Type: "polling"}
	p.SetDefaults()
	if err := p.Validate(); err == nil {
		t.Error("polling platform without base_url must be rejected")
	}

	p = PlatformConfig{Name: "hooks", Type: "webhook", AllowedURLPrefixes: []string{"ftp://bad"}}
	p.SetDefaults()
	if err := p.Validate(); err == nil {
		t.Error("non-http prefixes must be rejected")
	}

	p = PlatformConfig{Name: "other", Type: "carrier-pigeon"}
	p.SetDefaults()
	if err := p.Validate(); err == nil {
		t.Error("unknown platform type must be rejected")
	}
}

func TestWorkflowMustReferenceConfiguredPlatform(t *testing.T) {
	bad := `
platforms:
  - name: polling
    type: polling
    base_url: http://engine.internal:8000/api
workflows:
  - id: wf-x
    name: X
    platform: webhook
    target: https://hooks.example.com/x
    triggers: ["run x"]
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected a workflow referencing an unconfigured platform to be rejected")
	}
}

func TestWorkflowSpecToWorkflow(t *testing.T) {
	spec := WorkflowSpec{
		ID:                "wf-1",
		Name:              "Report",
		Platform:          "webhook",
		Target:            "https://hooks.example.com/report",
		Triggers:          []string{"weekly report"},
		EstimatedDuration: "90s",
	}

	w, err := spec.ToWorkflow()
	if err != nil {
		t.Fatalf("ToWorkflow failed: %v", err)
	}
	if w.EstimatedDuration != 90*time.Second {
		t.Errorf("expected 90s, got %v", w.EstimatedDuration)
	}
	if !w.Active {
		t.Error("workflows default to active")
	}
}

func TestWorkflowSpecDefaultDuration(t *testing.T) {
	spec := WorkflowSpec{
		ID:       "wf-1",
		Name:     "Report",
		Platform: "polling",
		Target:   "report",
		Triggers: []string{"weekly report"},
	}
	w, err := spec.ToWorkflow()
	if err != nil {
		t.Fatalf("ToWorkflow failed: %v", err)
	}
	if w.EstimatedDuration != 60*time.Second {
		t.Errorf("expected the 60s default, got %v", w.EstimatedDuration)
	}
}

func TestWorkflowSpecBadDuration(t *testing.T) {
	spec := WorkflowSpec{
		ID:                "wf-1",
		Name:              "Report",
		Platform:          "polling",
		Target:            "report",
		Triggers:          []string{"weekly report"},
		EstimatedDuration: "ninety seconds",
	}
	if _, err := spec.ToWorkflow(); err == nil {
		t.Fatal("expected an unparseable duration to be rejected")
	}
}

func TestRateLimitDefaults(t *testing.T) {
	var cfg RateLimitConfig
	cfg.SetDefaults()
	if cfg.PerMinute != 10 || cfg.PerHour != 100 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.IsEnabled() {
		t.Error("rate limiting defaults to enabled")
	}
}
