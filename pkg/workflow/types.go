package workflow

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// PLATFORM AND PARAMETER TYPES
// ============================================================================

// Platform identifies the automation backend a workflow executes on.
type Platform string

const (
	// PlatformPolling is a submit-then-poll engine reached over HTTP.
	PlatformPolling Platform = "polling"

	// PlatformWebhook is a hook-catching platform driven by a single POST.
	PlatformWebhook Platform = "webhook"
)

// ParameterType is the declared type of a workflow parameter.
type ParameterType string

const (
	ParameterTypeString  ParameterType = "string"
	ParameterTypeNumber  ParameterType = "number"
	ParameterTypeBoolean ParameterType = "boolean"
	ParameterTypeDate    ParameterType = "date"
	ParameterTypeEmail   ParameterType = "email"
	ParameterTypeURL     ParameterType = "url"
)

// Parameter declares a single workflow input.
type Parameter struct {
	Name       string        `json:"name" yaml:"name"`
	Type       ParameterType `json:"type" yaml:"type"`
	Required   bool          `json:"required" yaml:"required"`
	Default    interface{}   `json:"default,omitempty" yaml:"default,omitempty"`
	Validation string        `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// ============================================================================
// WORKFLOW CONFIGURATION (owned by the catalog, read-only here)
// ============================================================================

// Workflow is a catalog record describing one registered automation.
type Workflow struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Platform    Platform    `json:"platform" yaml:"platform"`
	Target      string      `json:"target" yaml:"target"` // engine workflow id or webhook URL
	Triggers    []string    `json:"triggers" yaml:"triggers"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	CreatedAt         time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	LastExecuted      time.Time     `json:"last_executed,omitempty" yaml:"last_executed,omitempty"`
	ExecutionCount    int64         `json:"execution_count,omitempty" yaml:"execution_count,omitempty"`
	Active            bool          `json:"active" yaml:"active"`
	Tags              []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration" yaml:"estimated_duration"`
}

// Validate checks the structural invariants of a catalog record.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	if w.Platform != PlatformPolling && w.Platform != PlatformWebhook {
		return fmt.Errorf("workflow '%s': unknown platform '%s'", w.ID, w.Platform)
	}
	if w.Target == "" {
		return fmt.Errorf("workflow '%s': target is required", w.ID)
	}
	if w.EstimatedDuration <= 0 {
		return fmt.Errorf("workflow '%s': estimated_duration must be positive", w.ID)
	}
	if w.Platform == PlatformWebhook && !strings.HasPrefix(w.Target, "http") {
		return fmt.Errorf("workflow '%s': webhook target must be a URL", w.ID)
	}
	return nil
}

// ============================================================================
// TRIGGER MATCHING
// ============================================================================

// MatchType classifies how a trigger match was found. It explains the match
// to the human-in-the-loop layer; execution gating uses confidence only.
type MatchType string

const (
	MatchTypeExact    MatchType = "exact"
	MatchTypeFuzzy    MatchType = "fuzzy"
	MatchTypeSemantic MatchType = "semantic"
)

// EntityType tags the parsed type of an extracted entity.
type EntityType string

const (
	EntityTypeString  EntityType = "string"
	EntityTypeNumber  EntityType = "number"
	EntityTypeBoolean EntityType = "boolean"
	EntityTypeDate    EntityType = "date"
	EntityTypeEmail   EntityType = "email"
	EntityTypeURL     EntityType = "url"
)

// Entity is a typed value pulled out of user text, with its character span.
type Entity struct {
	Name       string      `json:"name"`
	Value      interface{} `json:"value"`
	Type       EntityType  `json:"type"`
	Confidence float64     `json:"confidence"`
	Start      int         `json:"start"`
	End        int         `json:"end"` // exclusive
}

// TriggerMatch is the outcome of matching one user message against the
// catalog. Ephemeral; never persisted.
type TriggerMatch struct {
	Workflow        *Workflow              `json:"workflow"`
	Confidence      float64                `json:"confidence"`
	MatchedTriggers []string               `json:"matched_triggers"`
	SuggestedParams map[string]interface{} `json:"suggested_params,omitempty"`
	Entities        []Entity               `json:"entities,omitempty"`
	MatchType       MatchType              `json:"match_type"`
}

// ============================================================================
// EXECUTION REQUEST / RESULT
// ============================================================================

// ExecutionRequest carries everything needed to dispatch one execution.
// Created by the trigger service or a confirmation UI, consumed once.
type ExecutionRequest struct {
	RequestID            string                 `json:"request_id"`
	AgentID              string                 `json:"agent_id"`
	UserID               string                 `json:"user_id,omitempty"`
	SessionID            string                 `json:"session_id,omitempty"`
	Message              string                 `json:"message"`
	Workflow             *Workflow              `json:"workflow"`
	Parameters           map[string]interface{} `json:"parameters"`
	Confidence           float64                `json:"confidence"`
	RequiresConfirmation bool                   `json:"requires_confirmation"`
	Timestamp            time.Time              `json:"timestamp"`
}

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ExecutionError is the structured error attached to a failed result.
type ExecutionError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes used in ExecutionError.Code.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeExecution     = "EXECUTION_FAILED"
	ErrCodeTimeout       = "EXECUTION_TIMEOUT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConnection    = "CONNECTION_ERROR"
	ErrCodeNoPlatform    = "PLATFORM_NOT_CONFIGURED"
	ErrCodeCancelled     = "EXECUTION_CANCELLED"
	ErrCodeInvalidConfig = "INVALID_CONFIGURATION"
)

// ExecutionResult is the immutable outcome of one execution attempt.
// Cached by execution id for later status queries.
type ExecutionResult struct {
	RequestID    string                 `json:"request_id"`
	ExecutionID  string                 `json:"execution_id"`
	Success      bool                   `json:"success"`
	Status       Status                 `json:"status"`
	Output       interface{}            `json:"output,omitempty"`
	Error        *ExecutionError        `json:"error,omitempty"`
	Duration     time.Duration          `json:"duration"`
	CostEstimate float64                `json:"cost_estimate,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// ============================================================================
// ADAPTER RESULT - tagged union over terminal/running states
// ============================================================================

// AdapterResult is the platform-neutral outcome an adapter reports back.
// Platform-specific raw responses never cross the adapter boundary; they
// are translated into this shape immediately.
type AdapterResult struct {
	ExecutionID string      `json:"execution_id"`
	Status      Status      `json:"status"`
	Output      interface{} `json:"output,omitempty"`        // set when Status == completed
	ErrorDetail string      `json:"error_detail,omitempty"`  // set when Status == failed
	StartedAt   time.Time   `json:"started_at,omitempty"`
	FinishedAt  time.Time   `json:"finished_at,omitempty"`
}

// ============================================================================
// SUGGESTIONS
// ============================================================================

// RecommendedAction is the threshold-policy outcome for a match.
type RecommendedAction string

const (
	ActionExecute RecommendedAction = "execute"
	ActionConfirm RecommendedAction = "confirm"
	ActionClarify RecommendedAction = "clarify"
	ActionIgnore  RecommendedAction = "ignore"
)

// Suggestion is surfaced to the chat layer when a match is not executed
// outright.
type Suggestion struct {
	AgentID           string            `json:"agent_id"`
	Match             *TriggerMatch     `json:"match,omitempty"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Reasoning         string            `json:"reasoning"`
}
