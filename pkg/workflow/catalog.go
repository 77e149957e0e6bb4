package workflow

import (
	"context"
	"time"
)

// MatchResult is the raw triple returned by the catalog's scoring function.
type MatchResult struct {
	Workflow        *Workflow `json:"workflow"`
	Confidence      float64   `json:"confidence"`
	MatchedTriggers []string  `json:"matched_triggers"`
}

// Catalog is the external workflow configuration store. The engine consumes
// it read-mostly: trigger scoring lives behind FindWorkflowByTrigger, and the
// only write path is the per-execution bookkeeping of RecordExecution.
type Catalog interface {
	// FindWorkflowByTrigger scores the agent's workflows against the text
	// and returns the best match at or above minConfidence, or nil when
	// nothing qualifies.
	FindWorkflowByTrigger(ctx context.Context, agentID, text string, minConfidence float64) (*MatchResult, error)

	// GetWorkflow returns a workflow by id, or a not-found error.
	GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error)

	// RecordExecution bumps the workflow's execution count and last-executed
	// timestamp after a dispatch, regardless of outcome.
	RecordExecution(ctx context.Context, workflowID string, at time.Time) error
}
