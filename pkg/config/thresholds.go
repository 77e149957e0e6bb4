package config

import "fmt"

// ThresholdsConfig defines the confidence-threshold policy for trigger
// matches. These gates decide whether a match executes, asks for
// confirmation, or is surfaced as a clarification prompt. They are
// independent of the fixed match-type cut-points used for classification.
type ThresholdsConfig struct {
	// AutoExecute is the minimum confidence for immediate execution.
	AutoExecute float64 `yaml:"auto_execute,omitempty" json:"auto_execute,omitempty"`

	// Confirmation is the minimum confidence for human confirmation.
	Confirmation float64 `yaml:"confirmation,omitempty" json:"confirmation,omitempty"`

	// Suggestion is the minimum confidence to surface a clarification.
	Suggestion float64 `yaml:"suggestion,omitempty" json:"suggestion,omitempty"`
}

// SetDefaults sets default threshold values.
func (c *ThresholdsConfig) SetDefaults() {
	if c.AutoExecute == 0 {
		c.AutoExecute = 0.85
	}
	if c.Confirmation == 0 {
		c.Confirmation = 0.65
	}
	if c.Suggestion == 0 {
		c.Suggestion = 0.40
	}
}

// Validate validates the ThresholdsConfig.
func (c *ThresholdsConfig) Validate() error {
	for name, v := range map[string]float64{
		"thresholds.auto_execute": c.AutoExecute,
		"thresholds.confirmation": c.Confirmation,
		"thresholds.suggestion":   c.Suggestion,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if c.Suggestion > c.Confirmation || c.Confirmation > c.AutoExecute {
		return fmt.Errorf("thresholds must satisfy suggestion <= confirmation <= auto_execute")
	}
	return nil
}
