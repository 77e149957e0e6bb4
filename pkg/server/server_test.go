package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/catalog"
	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/execution"
	"github.com/flowpilot-io/flowpilot/pkg/platform"
	"github.com/flowpilot-io/flowpilot/pkg/ratelimit"
	"github.com/flowpilot-io/flowpilot/pkg/trigger"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// okAdapter completes every execution immediately.
type okAdapter struct{}

func (okAdapter) Name() string                             { return "polling" }
func (okAdapter) TestConnection(ctx context.Context) error { return nil }
func (okAdapter) Status(ctx context.Context) platform.ConnectionStatus {
	return platform.ConnectionStatus{Platform: "polling", Healthy: true}
}

func (okAdapter) Execute(ctx context.Context, req *workflow.ExecutionRequest) (*workflow.AdapterResult, error) {
	return &workflow.AdapterResult{ExecutionID: "exec-1", Status: workflow.StatusCompleted}, nil
}

func (okAdapter) ExecutionStatus(ctx context.Context, executionID string) (*workflow.AdapterResult, error) {
	return &workflow.AdapterResult{ExecutionID: executionID, Status: workflow.StatusCompleted}, nil
}

func (okAdapter) CancelExecution(ctx context.Context, executionID string) (bool, error) {
	return true, nil
}

func (okAdapter) ExecutionHistory(ctx context.Context, workflowID string, limit int) ([]platform.ExecutionSummary, error) {
	return nil, nil
}

func (okAdapter) ValidateParameters(wf *workflow.Workflow, params map[string]interface{}) *platform.ValidationResult {
	return &platform.ValidationResult{Valid: true}
}

const callbackSecret = "test-secret"

func testServer(t *testing.T) *Server {
	t.Helper()

	cat, err := catalog.LoadFromSpecs([]config.WorkflowSpec{
		{
			ID:       "wf-deploy",
			Name:     "Deploy to Staging",
			Platform: "polling",
			Target:   "deploy",
			Triggers: []string{"deploy to staging"},
		},
	})
	if err != nil {
		t.Fatalf("LoadFromSpecs failed: %v", err)
	}

	registry := platform.NewRegistry()
	if err := registry.RegisterAdapter(okAdapter{}); err != nil {
		t.Fatalf("RegisterAdapter failed: %v", err)
	}

	limiter := ratelimit.New(&config.RateLimitConfig{
		Enabled: config.BoolPtr(true), PerMinute: 10, PerHour: 100,
	})
	coordinator, err := execution.NewCoordinator(registry, limiter, cat, execution.NewCache())
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	var thresholds config.ThresholdsConfig
	thresholds.SetDefaults()
	service, err := trigger.NewService(cat, coordinator, thresholds)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	srv, err := New(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, service, coordinator, cat,
		WithWorkflowLister(cat),
		WithCallbackSecret(callbackSecret),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, handler http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router := testServer(t).Router()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMessageEndpointExecutes(t *testing.T) {
	router := testServer(t).Router()
	rec := postJSON(t, router, "/v1/messages", map[string]string{
		"agent_id": "agent-1",
		"message":  "deploy to staging",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var outcome trigger.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if outcome.Action != workflow.ActionExecute {
		t.Errorf("expected execute, got %s", outcome.Action)
	}
	if outcome.Result == nil || !outcome.Result.Success {
		t.Errorf("expected a successful result, got %+v", outcome.Result)
	}
}

func TestMessageEndpointNoMatch(t *testing.T) {
	router := testServer(t).Router()
	rec := postJSON(t, router, "/v1/messages", map[string]string{
		"agent_id": "agent-1",
		"message":  "what's the weather",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for no match, got %d", rec.Code)
	}
}

func TestMessageEndpointRejectsMissingFields(t *testing.T) {
	router := testServer(t).Router()
	rec := postJSON(t, router, "/v1/messages", map[string]string{"message": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSuggestionEndpointDoesNotExecute(t *testing.T) {
	router := testServer(t).Router()
	rec := postJSON(t, router, "/v1/suggestions", map[string]string{
		"agent_id": "agent-1",
		"message":  "deploy to staging",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var suggestion workflow.Suggestion
	if err := json.Unmarshal(rec.Body.Bytes(), &suggestion); err != nil {
		t.Fatalf("failed to decode suggestion: %v", err)
	}
	if suggestion.RecommendedAction != workflow.ActionExecute {
		t.Errorf("expected an execute recommendation, got %s", suggestion.RecommendedAction)
	}
	if suggestion.Reasoning == "" {
		t.Error("expected reasoning text")
	}
}

func TestExecuteEndpoint(t *testing.T) {
	router := testServer(t).Router()
	rec := postJSON(t, router, "/v1/executions", map[string]interface{}{
		"workflow_id": "wf-deploy",
		"agent_id":    "agent-1",
		"parameters":  map[string]interface{}{"env": "staging"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result workflow.ExecutionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got %+v", result.Error)
	}
}

func TestExecuteEndpointUnknownWorkflow(t *testing.T) {
	router := testServer(t).Router()
	rec := postJSON(t, router, "/v1/executions", map[string]string{
		"workflow_id": "wf-ghost",
		"agent_id":    "agent-1",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestExecutionStatusAndCancel(t *testing.T) {
	router := testServer(t).Router()

	rec := postJSON(t, router, "/v1/executions", map[string]string{
		"workflow_id": "wf-deploy",
		"agent_id":    "agent-1",
	})
	var result workflow.ExecutionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/executions/"+result.ExecutionID+"?platform=polling", nil)
	cancelRec := httptest.NewRecorder()
	router.ServeHTTP(cancelRec, req)
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d", cancelRec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/executions/"+result.ExecutionID+"?platform=polling", nil)
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, req)

	var status workflow.ExecutionResult
	if err := json.Unmarshal(statusRec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Status != workflow.StatusCancelled {
		t.Errorf("expected the cancellation to stick, got %s", status.Status)
	}
}

func TestCallbackEndpointVerifiesSignature(t *testing.T) {
	router := testServer(t).Router()

	body, _ := json.Marshal(platform.CallbackPayload{
		ExecutionID: "exec-cb",
		Status:      "completed",
		Output:      map[string]interface{}{"rows": float64(2)},
	})

	// Unsigned request is rejected.
	req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/exec-cb", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a missing signature, got %d", rec.Code)
	}

	// Properly signed request is accepted.
	req = httptest.NewRequest(http.MethodPost, "/v1/callbacks/exec-cb", bytes.NewReader(body))
	req.Header.Set(platform.SignatureHeader, platform.Sign(callbackSecret, body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a signed callback, got %d: %s", rec.Code, rec.Body.String())
	}

	// Mismatched execution id in the path is rejected.
	req = httptest.NewRequest(http.MethodPost, "/v1/callbacks/exec-other", bytes.NewReader(body))
	req.Header.Set(platform.SignatureHeader, platform.Sign(callbackSecret, body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an id mismatch, got %d", rec.Code)
	}
}

func TestWorkflowListAndHistory(t *testing.T) {
	router := testServer(t).Router()

	postJSON(t, router, "/v1/executions", map[string]string{
		"workflow_id": "wf-deploy",
		"agent_id":    "agent-1",
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/workflows", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on list, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/workflows/wf-deploy/history?limit=5", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on history, got %d", rec.Code)
	}

	var payload struct {
		Executions []workflow.ExecutionResult `json:"executions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(payload.Executions) != 1 {
		t.Errorf("expected one cached execution, got %d", len(payload.Executions))
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	srv := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
