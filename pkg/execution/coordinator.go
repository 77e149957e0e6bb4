package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-io/flowpilot/pkg/platform"
	"github.com/flowpilot-io/flowpilot/pkg/ratelimit"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// ============================================================================
// EXECUTION COORDINATOR - validate, select adapter, dispatch with deadline
// ============================================================================

// MetricsRecorder receives execution outcomes for the observability layer.
type MetricsRecorder interface {
	RecordExecution(platformName string, status workflow.Status, duration time.Duration)
	RecordRateLimitRejection(agentID string)
}

type nopMetrics struct{}

func (nopMetrics) RecordExecution(string, workflow.Status, time.Duration) {}
func (nopMetrics) RecordRateLimitRejection(string)                        {}

// Coordinator drives one execution end to end: admission, parameter
// validation, adapter selection, dispatch under a deadline, result shaping,
// and bookkeeping. Every failure comes back as a shaped ExecutionResult so
// callers never branch on raw adapter errors.
type Coordinator struct {
	adapters *platform.Registry
	limiter  *ratelimit.Limiter
	catalog  workflow.Catalog
	cache    *Cache
	metrics  MetricsRecorder
	logger   *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) CoordinatorOption {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(adapters *platform.Registry, limiter *ratelimit.Limiter, catalog workflow.Catalog, cache *Cache, opts ...CoordinatorOption) (*Coordinator, error) {
	if adapters == nil {
		return nil, fmt.Errorf("adapter registry is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cache == nil {
		cache = NewCache()
	}

	c := &Coordinator{
		adapters: adapters,
		limiter:  limiter,
		catalog:  catalog,
		cache:    cache,
		metrics:  nopMetrics{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ExecuteOption tweaks a single Execute call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	skipRateLimit bool
}

// SkipRateLimit bypasses the admission check for this call. Used when the
// caller already checked and recorded on the original request, such as a
// user confirming a previously gated execution.
func SkipRateLimit() ExecuteOption {
	return func(o *executeOptions) {
		o.skipRateLimit = true
	}
}

// Execute runs one workflow execution and always returns a shaped result.
// The dispatch deadline is twice the workflow's estimated duration.
func (c *Coordinator) Execute(ctx context.Context, req *workflow.ExecutionRequest, opts ...ExecuteOption) *workflow.ExecutionResult {
	var options executeOptions
	for _, opt := range opts {
		opt(&options)
	}

	if req == nil || req.Workflow == nil {
		return failedResult(req, workflow.ErrCodeValidation, "execution request has no workflow", nil)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	// Step 1: admission. Check is separate from Record so a denial here
	// consumes nothing.
	if !options.skipRateLimit {
		check := c.limiter.Check(req.AgentID)
		if !check.Allowed {
			rlErr := ratelimit.NewRateLimitError(req.AgentID, check)
			c.metrics.RecordRateLimitRejection(req.AgentID)
			c.logger.Warn("execution denied by rate limit",
				"agent_id", req.AgentID,
				"workflow_id", req.Workflow.ID,
				"reset_at", check.ResetAt)
			return failedResult(req, workflow.ErrCodeRateLimited, rlErr.Error(), map[string]interface{}{
				"reset_at":  rlErr.ResetAt,
				"remaining": check.Remaining,
			})
		}
	}

	// Step 2: required-parameter presence, first failure wins. This gate
	// fires before adapter selection so a misconfigured platform cannot
	// mask a bad request.
	for _, decl := range req.Workflow.Parameters {
		if !decl.Required {
			continue
		}
		if _, present := req.Parameters[decl.Name]; !present {
			return failedResult(req, workflow.ErrCodeValidation,
				fmt.Sprintf("required parameter '%s' is missing", decl.Name), nil)
		}
	}

	// Step 3: adapter selection. A missing platform is a configuration
	// problem and must never look like a remote failure.
	adapter, err := c.adapters.ForPlatform(string(req.Workflow.Platform))
	if err != nil {
		return failedResult(req, workflow.ErrCodeNoPlatform, err.Error(), nil)
	}

	// Step 4: adapter-side validation (rules, reserved names), before
	// anything touches the network. The headline message names the first
	// problem; the rest ride along.
	if validation := adapter.ValidateParameters(req.Workflow, req.Parameters); !validation.Valid {
		return failedResult(req, workflow.ErrCodeValidation, validation.Errors[0], map[string]interface{}{
			"errors": validation.Errors,
		})
	}

	// Step 5: dispatch under a deadline of twice the estimate.
	timeout := 2 * req.Workflow.EstimatedDuration
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	c.logger.Info("dispatching execution",
		"request_id", req.RequestID,
		"workflow_id", req.Workflow.ID,
		"platform", req.Workflow.Platform,
		"timeout", timeout)

	adapterResult, execErr := adapter.Execute(dispatchCtx, req)
	elapsed := time.Since(started)

	// Step 6: bookkeeping runs on every dispatch attempt, success or not.
	c.limiter.Record(req.AgentID)
	if recErr := c.catalog.RecordExecution(ctx, req.Workflow.ID, started); recErr != nil {
		c.logger.Warn("failed to record execution on catalog",
			"workflow_id", req.Workflow.ID, "error", recErr)
	}

	result := c.shapeResult(req, adapterResult, execErr, elapsed)
	c.cache.Store(req.Workflow.ID, result)
	c.metrics.RecordExecution(string(req.Workflow.Platform), result.Status, elapsed)

	if result.Success {
		c.logger.Info("execution completed",
			"request_id", req.RequestID,
			"execution_id", result.ExecutionID,
			"duration", elapsed)
	} else {
		c.logger.Warn("execution did not complete",
			"request_id", req.RequestID,
			"execution_id", result.ExecutionID,
			"code", result.Error.Code,
			"duration", elapsed)
	}
	return result
}

// shapeResult folds the adapter outcome and error into the public result.
func (c *Coordinator) shapeResult(req *workflow.ExecutionRequest, adapterResult *workflow.AdapterResult, execErr error, elapsed time.Duration) *workflow.ExecutionResult {
	result := &workflow.ExecutionResult{
		RequestID: req.RequestID,
		Duration:  elapsed,
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"workflow_id":   req.Workflow.ID,
			"workflow_name": req.Workflow.Name,
			"platform":      string(req.Workflow.Platform),
			"agent_id":      req.AgentID,
		},
	}

	if execErr != nil {
		result.Status = workflow.StatusFailed
		result.Error = classifyAdapterError(execErr)
		if result.Error.Code == workflow.ErrCodeTimeout {
			// The remote side may still finish; this is not a failure verdict.
			result.Error.Details = map[string]interface{}{"deadline": elapsed.String()}
		}
		if adapterResult != nil {
			result.ExecutionID = adapterResult.ExecutionID
		}
		return result
	}

	result.ExecutionID = adapterResult.ExecutionID
	result.Status = adapterResult.Status
	switch adapterResult.Status {
	case workflow.StatusCompleted:
		result.Success = true
		result.Output = adapterResult.Output
	case workflow.StatusFailed:
		result.Error = &workflow.ExecutionError{
			Code:    workflow.ErrCodeExecution,
			Message: adapterResult.ErrorDetail,
		}
	case workflow.StatusCancelled:
		result.Error = &workflow.ExecutionError{
			Code:    workflow.ErrCodeCancelled,
			Message: "execution was cancelled",
		}
	}
	return result
}

// classifyAdapterError maps typed adapter errors onto stable error codes.
func classifyAdapterError(err error) *workflow.ExecutionError {
	var (
		validationErr *platform.ValidationError
		timeoutErr    *platform.TimeoutError
		rateErr       *platform.RateLimitError
		notFoundErr   *platform.NotFoundError
		connErr       *platform.ConnectionError
	)
	switch {
	case errors.As(err, &validationErr):
		return &workflow.ExecutionError{Code: workflow.ErrCodeValidation, Message: validationErr.Error()}
	case errors.As(err, &timeoutErr):
		return &workflow.ExecutionError{Code: workflow.ErrCodeTimeout, Message: timeoutErr.Error()}
	case errors.As(err, &rateErr):
		return &workflow.ExecutionError{
			Code:    workflow.ErrCodeRateLimited,
			Message: rateErr.Error(),
			Details: map[string]interface{}{"reset_at": rateErr.ResetAt},
		}
	case errors.As(err, &notFoundErr):
		return &workflow.ExecutionError{Code: workflow.ErrCodeNotFound, Message: notFoundErr.Error()}
	case errors.As(err, &connErr):
		return &workflow.ExecutionError{Code: workflow.ErrCodeConnection, Message: connErr.Error()}
	default:
		return &workflow.ExecutionError{Code: workflow.ErrCodeExecution, Message: err.Error()}
	}
}

// failedResult shapes a pre-dispatch failure. No execution id exists yet.
func failedResult(req *workflow.ExecutionRequest, code, message string, details map[string]interface{}) *workflow.ExecutionResult {
	result := &workflow.ExecutionResult{
		Success:   false,
		Status:    workflow.StatusFailed,
		Error:     &workflow.ExecutionError{Code: code, Message: message, Details: details},
		Timestamp: time.Now(),
	}
	if req != nil {
		result.RequestID = req.RequestID
		if req.Workflow != nil {
			result.Metadata = map[string]interface{}{
				"workflow_id": req.Workflow.ID,
				"platform":    string(req.Workflow.Platform),
				"agent_id":    req.AgentID,
			}
		}
	}
	return result
}

// ExecutionStatus reports an execution's state, preferring the local cache
// so a sticky cancellation wins over any late platform answer.
func (c *Coordinator) ExecutionStatus(ctx context.Context, platformName, executionID string) (*workflow.ExecutionResult, error) {
	if cached, ok := c.cache.Get(executionID); ok {
		return cached, nil
	}

	adapter, err := c.adapters.ForPlatform(platformName)
	if err != nil {
		return nil, err
	}
	adapterResult, err := adapter.ExecutionStatus(ctx, executionID)
	if err != nil {
		return nil, err
	}

	result := &workflow.ExecutionResult{
		ExecutionID: adapterResult.ExecutionID,
		Status:      adapterResult.Status,
		Success:     adapterResult.Status == workflow.StatusCompleted,
		Output:      adapterResult.Output,
		Timestamp:   time.Now(),
	}
	if adapterResult.Status == workflow.StatusFailed {
		result.Error = &workflow.ExecutionError{
			Code:    workflow.ErrCodeExecution,
			Message: adapterResult.ErrorDetail,
		}
	}
	return result, nil
}

// Cancel cancels an execution best-effort and marks the cached result
// cancelled regardless of what the platform later reports.
func (c *Coordinator) Cancel(ctx context.Context, platformName, executionID string) (bool, error) {
	adapter, err := c.adapters.ForPlatform(platformName)
	if err != nil {
		return false, err
	}

	acknowledged, cancelErr := adapter.CancelExecution(ctx, executionID)

	// The local marker sticks even when the remote cancel fails.
	marked := c.cache.MarkCancelled(executionID, time.Now())
	if cancelErr != nil {
		if marked {
			c.logger.Warn("remote cancel failed, local record marked cancelled",
				"execution_id", executionID, "error", cancelErr)
			return true, nil
		}
		return false, cancelErr
	}
	return acknowledged || marked, nil
}

// History lists cached results for one workflow, newest first.
func (c *Coordinator) History(workflowID string, limit int) []workflow.ExecutionResult {
	return c.cache.History(workflowID, limit)
}

// ApplyCallback folds an asynchronous platform callback into the cached
// result. A sticky cancellation in the cache wins over the callback.
func (c *Coordinator) ApplyCallback(executionID string, status workflow.Status, output map[string]interface{}, errorDetail string) {
	result := &workflow.ExecutionResult{
		ExecutionID: executionID,
		Status:      status,
		Success:     status == workflow.StatusCompleted,
		Output:      output,
		Timestamp:   time.Now(),
	}
	if status == workflow.StatusFailed {
		result.Error = &workflow.ExecutionError{
			Code:    workflow.ErrCodeExecution,
			Message: errorDetail,
		}
	}

	workflowID := ""
	if cached, ok := c.cache.Get(executionID); ok {
		result.RequestID = cached.RequestID
		if cached.Metadata != nil {
			if id, ok := cached.Metadata["workflow_id"].(string); ok {
				workflowID = id
			}
			result.Metadata = cached.Metadata
		}
	}
	c.cache.Store(workflowID, result)

	c.logger.Info("applied execution callback",
		"execution_id", executionID, "status", status)
}
