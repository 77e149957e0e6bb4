package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/httpclient"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// ============================================================================
// WEBHOOK ADAPTER - single POST to a workflow's webhook URL
// ============================================================================

// Metadata fields injected into every webhook payload. User parameters may
// not use these names; the collision is rejected before any network call.
const (
	FieldExecutionID = "_execution_id"
	FieldInitiatedBy = "_initiated_by"
	FieldSessionID   = "_session_id"
	FieldPriority    = "_priority"
	FieldTimestamp   = "_timestamp"
)

// ReservedFields lists the injected metadata field names, sorted.
func ReservedFields() []string {
	fields := []string{FieldExecutionID, FieldInitiatedBy, FieldSessionID, FieldPriority, FieldTimestamp}
	sort.Strings(fields)
	return fields
}

func isReservedField(name string) bool {
	switch name {
	case FieldExecutionID, FieldInitiatedBy, FieldSessionID, FieldPriority, FieldTimestamp:
		return true
	}
	return false
}

// maxTrackedExecutions bounds the in-memory execution log. Webhook targets
// have no status endpoint, so the adapter is the only record keeper.
const maxTrackedExecutions = 1000

// WebhookAdapter fires a workflow by POSTing its parameters to the
// workflow's target URL. Execution is synchronous from the adapter's point
// of view: a 2xx response is a completed execution.
type WebhookAdapter struct {
	name            string
	allowedPrefixes []string
	client          *httpclient.Client

	mu         sync.Mutex
	executions map[string]*trackedExecution
	order      []string
}

type trackedExecution struct {
	workflowID string
	result     workflow.AdapterResult
}

// NewWebhookAdapter creates an adapter from platform config.
func NewWebhookAdapter(cfg *config.PlatformConfig) (*WebhookAdapter, error) {
	for _, prefix := range cfg.AllowedURLPrefixes {
		u, err := url.Parse(prefix)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("webhook adapter '%s': invalid allowed URL prefix '%s'", cfg.Name, prefix)
		}
	}

	return &WebhookAdapter{
		name:            cfg.Name,
		allowedPrefixes: cfg.AllowedURLPrefixes,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeoutDuration()}),
		),
		executions: make(map[string]*trackedExecution),
	}, nil
}

func (a *WebhookAdapter) Name() string {
	return a.name
}

// TestConnection has nothing persistent to test; webhook targets are
// per-workflow. The adapter is healthy when it is configured.
func (a *WebhookAdapter) TestConnection(ctx context.Context) error {
	return nil
}

func (a *WebhookAdapter) Status(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{Platform: a.name, Healthy: true, CheckedAt: time.Now()}
}

// Execute validates the target URL and parameter names, then POSTs the
// payload once. Reserved-name collisions fail before any network traffic.
func (a *WebhookAdapter) Execute(ctx context.Context, req *workflow.ExecutionRequest) (*workflow.AdapterResult, error) {
	if err := a.checkTargetURL(req.Workflow.Target); err != nil {
		return nil, err
	}
	for name := range req.Parameters {
		if isReservedField(name) {
			return nil, &ValidationError{
				Field:   name,
				Message: fmt.Sprintf("parameter name '%s' collides with a reserved webhook field", name),
			}
		}
	}

	executionID := uuid.New().String()
	startedAt := time.Now()

	payload := make(map[string]interface{}, len(req.Parameters)+5)
	for k, v := range req.Parameters {
		payload[k] = v
	}
	payload[FieldExecutionID] = executionID
	payload[FieldInitiatedBy] = req.UserID
	payload[FieldSessionID] = req.SessionID
	payload[FieldPriority] = "normal"
	payload[FieldTimestamp] = startedAt.UTC().Format(time.RFC3339)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Workflow.Target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if resp == nil {
			if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
				return nil, &TimeoutError{}
			}
			return nil, &ConnectionError{Platform: a.name, Err: err}
		}
		defer resp.Body.Close()
		return nil, a.mapHTTPError(resp, req.Workflow.Target)
	}
	defer resp.Body.Close()

	result := &workflow.AdapterResult{
		ExecutionID: executionID,
		Status:      workflow.StatusCompleted,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		Output:      decodeWebhookResponse(resp),
	}
	a.track(req.Workflow.ID, result)
	return result, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// decodeWebhookResponse parses a JSON response body when one is present.
// Many webhook targets return an empty 200; that is still a completion.
func decodeWebhookResponse(resp *http.Response) map[string]interface{} {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var output map[string]interface{}
	if err := json.Unmarshal(data, &output); err != nil {
		return map[string]interface{}{"raw": string(data)}
	}
	return output
}

func (a *WebhookAdapter) mapHTTPError(resp *http.Response, target string) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &NotFoundError{Resource: "webhook", ID: target}
	case http.StatusTooManyRequests:
		info := httpclient.ParseStandardRateLimitHeaders(resp.Header)
		return &RateLimitError{Platform: a.name, ResetAt: info.ResetAt(time.Now())}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode, string(body))
	}
}

// checkTargetURL enforces the allow-list when one is configured.
func (a *WebhookAdapter) checkTargetURL(target string) error {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: "target", Message: fmt.Sprintf("invalid webhook URL '%s'", target)}
	}
	if len(a.allowedPrefixes) == 0 {
		return nil
	}
	for _, prefix := range a.allowedPrefixes {
		if strings.HasPrefix(target, prefix) {
			return nil
		}
	}
	return &ValidationError{
		Field:   "target",
		Message: fmt.Sprintf("webhook URL '%s' is not under any allowed prefix", target),
	}
}

// ExecutionStatus answers from the local execution log; webhook targets
// expose no remote status endpoint.
func (a *WebhookAdapter) ExecutionStatus(ctx context.Context, executionID string) (*workflow.AdapterResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tracked, ok := a.executions[executionID]
	if !ok {
		return nil, &NotFoundError{Resource: "execution", ID: executionID}
	}
	result := tracked.result
	return &result, nil
}

// CancelExecution can only mark the local record; the single POST has
// already happened by the time anyone can ask for a cancel.
func (a *WebhookAdapter) CancelExecution(ctx context.Context, executionID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tracked, ok := a.executions[executionID]
	if !ok {
		return false, &NotFoundError{Resource: "execution", ID: executionID}
	}
	tracked.result.Status = workflow.StatusCancelled
	return true, nil
}

// ExecutionHistory lists locally tracked executions, newest first.
func (a *WebhookAdapter) ExecutionHistory(ctx context.Context, workflowID string, limit int) ([]ExecutionSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var summaries []ExecutionSummary
	for i := len(a.order) - 1; i >= 0 && (limit <= 0 || len(summaries) < limit); i-- {
		tracked := a.executions[a.order[i]]
		if tracked == nil || tracked.workflowID != workflowID {
			continue
		}
		summaries = append(summaries, ExecutionSummary{
			ExecutionID: tracked.result.ExecutionID,
			WorkflowID:  tracked.workflowID,
			Status:      tracked.result.Status,
			StartedAt:   tracked.result.StartedAt,
			FinishedAt:  tracked.result.FinishedAt,
		})
	}
	return summaries, nil
}

// ValidateParameters applies declared rules plus the reserved-name check.
func (a *WebhookAdapter) ValidateParameters(wf *workflow.Workflow, params map[string]interface{}) *ValidationResult {
	result := validateDeclaredParameters(wf, params)
	for name := range params {
		if isReservedField(name) {
			result.Valid = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("parameter name '%s' collides with a reserved webhook field", name))
		}
	}
	return result
}

// track records a finished execution, evicting the oldest entries once the
// log is full.
func (a *WebhookAdapter) track(workflowID string, result *workflow.AdapterResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.executions[result.ExecutionID] = &trackedExecution{workflowID: workflowID, result: *result}
	a.order = append(a.order, result.ExecutionID)

	for len(a.order) > maxTrackedExecutions {
		delete(a.executions, a.order[0])
		a.order = a.order[1:]
	}
}
