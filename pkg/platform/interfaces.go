package platform

import (
	"context"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// ConnectionStatus describes the adapter's view of its platform.
type ConnectionStatus struct {
	Platform  string    `json:"platform"`
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ValidationResult collects parameter validation findings.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ExecutionSummary is one entry of an execution history listing.
type ExecutionSummary struct {
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      workflow.Status `json:"status"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	FinishedAt  time.Time       `json:"finished_at,omitempty"`
}

// Adapter is the uniform contract over one automation platform. Execution
// semantics diverge per platform (synchronous webhook vs. asynchronous
// polling) behind this boundary; raw platform responses never leak past it.
type Adapter interface {
	// Name returns the platform name this adapter is registered under.
	Name() string

	// TestConnection verifies the platform is reachable.
	TestConnection(ctx context.Context) error

	// Status reports the adapter's current connection state.
	Status(ctx context.Context) ConnectionStatus

	// Execute dispatches one workflow execution and blocks until a terminal
	// state or the context deadline. The deadline must be respected inside
	// any internal polling, not just measured once.
	Execute(ctx context.Context, req *workflow.ExecutionRequest) (*workflow.AdapterResult, error)

	// ExecutionStatus returns the platform's view of one execution.
	ExecutionStatus(ctx context.Context, executionID string) (*workflow.AdapterResult, error)

	// CancelExecution cancels best-effort and reports whether anything was
	// cancelled locally or remotely.
	CancelExecution(ctx context.Context, executionID string) (bool, error)

	// ExecutionHistory lists recent executions of one workflow.
	ExecutionHistory(ctx context.Context, workflowID string, limit int) ([]ExecutionSummary, error)

	// ValidateParameters checks params against the workflow declaration and
	// platform rules without touching the network.
	ValidateParameters(wf *workflow.Workflow, params map[string]interface{}) *ValidationResult
}
