package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/httpclient"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// ============================================================================
// POLLING ADAPTER - submit, then poll status until finished or deadline
// ============================================================================

// engineExecution is the engine's wire shape for one execution. It never
// leaves this file; translate() converts it to the adapter result union.
type engineExecution struct {
	ID         string                 `json:"id"`
	Finished   bool                   `json:"finished"`
	Status     string                 `json:"status,omitempty"`
	StartedAt  time.Time              `json:"startedAt,omitempty"`
	StoppedAt  *time.Time             `json:"stoppedAt,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	WorkflowID string                 `json:"workflowId,omitempty"`
}

// engineSubmitResponse is the engine's response to an execute call.
type engineSubmitResponse struct {
	ExecutionID string `json:"executionId"`
	ID          string `json:"id,omitempty"`
}

func (r *engineSubmitResponse) executionID() string {
	if r.ExecutionID != "" {
		return r.ExecutionID
	}
	return r.ID
}

// PollingAdapter executes workflows on an engine that accepts a submission
// and reports progress through a status endpoint. The poll loop re-checks
// the caller's deadline on every iteration so a slow individual poll cannot
// overrun the budget.
type PollingAdapter struct {
	name         string
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	client       *httpclient.Client
}

// NewPollingAdapter creates an adapter from platform config.
func NewPollingAdapter(cfg *config.PlatformConfig) (*PollingAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("polling adapter '%s': base_url is required", cfg.Name)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("polling adapter '%s': invalid base_url: %w", cfg.Name, err)
	}

	return &PollingAdapter{
		name:         cfg.Name,
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollIntervalDuration(),
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeoutDuration()}),
		),
	}, nil
}

func (a *PollingAdapter) Name() string {
	return a.name
}

// TestConnection checks the engine's health endpoint.
func (a *PollingAdapter) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return &ConnectionError{Platform: a.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (a *PollingAdapter) Status(ctx context.Context) ConnectionStatus {
	status := ConnectionStatus{Platform: a.name, CheckedAt: time.Now()}
	if err := a.TestConnection(ctx); err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

// Execute submits the workflow, then polls the execution until the engine
// reports a terminal state or ctx's deadline expires. Deadline expiry yields
// a TimeoutError, never a generic failure: the remote may still finish.
func (a *PollingAdapter) Execute(ctx context.Context, req *workflow.ExecutionRequest) (*workflow.AdapterResult, error) {
	execID, err := a.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	// Immediate probe; short workflows often finish within one interval.
	if result, terminal, err := a.probe(ctx, execID); err != nil {
		return nil, err
	} else if terminal {
		return result, nil
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, a.timeoutError(ctx)
		case <-ticker.C:
			if deadline, ok := ctx.Deadline(); ok && time.Now().After(deadline) {
				return nil, a.timeoutError(ctx)
			}
			result, terminal, err := a.probe(ctx, execID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, a.timeoutError(ctx)
				}
				return nil, err
			}
			if terminal {
				return result, nil
			}
		}
	}
}

func (a *PollingAdapter) timeoutError(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		return &TimeoutError{After: time.Until(deadline) * -1}
	}
	return &TimeoutError{}
}

// submit POSTs the workflow execution and returns the engine execution id.
func (a *PollingAdapter) submit(ctx context.Context, req *workflow.ExecutionRequest) (string, error) {
	body, err := json.Marshal(req.Parameters)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parameters: %w", err)
	}

	endpoint := fmt.Sprintf("%s/workflows/%s/execute", a.baseURL, url.PathEscape(req.Workflow.Target))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.setHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if resp == nil {
			return "", &ConnectionError{Platform: a.name, Err: err}
		}
		defer resp.Body.Close()
		return "", a.mapHTTPError(resp, "workflow", req.Workflow.Target)
	}
	defer resp.Body.Close()

	var submitted engineSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", fmt.Errorf("failed to decode execute response: %w", err)
	}
	if submitted.executionID() == "" {
		return "", fmt.Errorf("engine did not return an execution id")
	}
	return submitted.executionID(), nil
}

// probe fetches execution state once. terminal is false while running.
func (a *PollingAdapter) probe(ctx context.Context, execID string) (*workflow.AdapterResult, bool, error) {
	exec, err := a.fetchExecution(ctx, execID)
	if err != nil {
		return nil, false, err
	}

	result := translateEngineExecution(exec)
	return result, result.Status.Terminal(), nil
}

func (a *PollingAdapter) fetchExecution(ctx context.Context, execID string) (*engineExecution, error) {
	endpoint := fmt.Sprintf("%s/executions/%s", a.baseURL, url.PathEscape(execID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		if resp == nil {
			return nil, &ConnectionError{Platform: a.name, Err: err}
		}
		defer resp.Body.Close()
		return nil, a.mapHTTPError(resp, "execution", execID)
	}
	defer resp.Body.Close()

	var exec engineExecution
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		return nil, fmt.Errorf("failed to decode execution status: %w", err)
	}
	if exec.ID == "" {
		exec.ID = execID
	}
	return &exec, nil
}

// ExecutionStatus fetches the engine's current view of one execution.
func (a *PollingAdapter) ExecutionStatus(ctx context.Context, executionID string) (*workflow.AdapterResult, error) {
	exec, err := a.fetchExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return translateEngineExecution(exec), nil
}

// CancelExecution issues a remote stop. The caller marks its cached result
// cancelled regardless of the engine's acknowledgement.
func (a *PollingAdapter) CancelExecution(ctx context.Context, executionID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/executions/%s/stop", a.baseURL, url.PathEscape(executionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return false, err
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		if resp == nil {
			return false, &ConnectionError{Platform: a.name, Err: err}
		}
		defer resp.Body.Close()
		return false, a.mapHTTPError(resp, "execution", executionID)
	}
	resp.Body.Close()
	return true, nil
}

// ExecutionHistory lists the engine's recent executions for a workflow.
func (a *PollingAdapter) ExecutionHistory(ctx context.Context, workflowID string, limit int) ([]ExecutionSummary, error) {
	endpoint := fmt.Sprintf("%s/executions?workflowId=%s&limit=%d", a.baseURL, url.QueryEscape(workflowID), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		if resp == nil {
			return nil, &ConnectionError{Platform: a.name, Err: err}
		}
		defer resp.Body.Close()
		return nil, a.mapHTTPError(resp, "workflow", workflowID)
	}
	defer resp.Body.Close()

	var executions []engineExecution
	if err := json.NewDecoder(resp.Body).Decode(&executions); err != nil {
		return nil, fmt.Errorf("failed to decode execution history: %w", err)
	}

	summaries := make([]ExecutionSummary, 0, len(executions))
	for i := range executions {
		exec := &executions[i]
		summary := ExecutionSummary{
			ExecutionID: exec.ID,
			WorkflowID:  workflowID,
			Status:      translateEngineExecution(exec).Status,
			StartedAt:   exec.StartedAt,
		}
		if exec.StoppedAt != nil {
			summary.FinishedAt = *exec.StoppedAt
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ValidateParameters applies the declared parameter rules.
func (a *PollingAdapter) ValidateParameters(wf *workflow.Workflow, params map[string]interface{}) *ValidationResult {
	return validateDeclaredParameters(wf, params)
}

func (a *PollingAdapter) setHeaders(req *http.Request) {
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}
}

// mapHTTPError converts a non-2xx engine response into a typed error.
func (a *PollingAdapter) mapHTTPError(resp *http.Response, resource, id string) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &NotFoundError{Resource: resource, ID: id}
	case http.StatusTooManyRequests:
		info := httpclient.ParseStandardRateLimitHeaders(resp.Header)
		return &RateLimitError{Platform: a.name, ResetAt: info.ResetAt(time.Now())}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("engine returned HTTP %d: %s", resp.StatusCode, string(body))
	}
}

// translateEngineExecution maps the engine wire shape onto the result union.
func translateEngineExecution(exec *engineExecution) *workflow.AdapterResult {
	result := &workflow.AdapterResult{
		ExecutionID: exec.ID,
		StartedAt:   exec.StartedAt,
	}
	if exec.StoppedAt != nil {
		result.FinishedAt = *exec.StoppedAt
	}

	terminal := exec.Finished || exec.StoppedAt != nil

	switch exec.Status {
	case "success", "completed":
		result.Status = workflow.StatusCompleted
	case "error", "failed", "crashed":
		result.Status = workflow.StatusFailed
		result.ErrorDetail = exec.Error
		if result.ErrorDetail == "" {
			result.ErrorDetail = "execution failed on the engine"
		}
	case "canceled", "cancelled":
		result.Status = workflow.StatusCancelled
	default:
		if !terminal {
			result.Status = workflow.StatusRunning
		} else if exec.Error != "" {
			result.Status = workflow.StatusFailed
			result.ErrorDetail = exec.Error
		} else {
			result.Status = workflow.StatusCompleted
		}
	}

	if result.Status == workflow.StatusCompleted {
		// Raw result data passes through opaquely.
		result.Output = exec.Data
	}
	return result
}
