package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/execution"
	"github.com/flowpilot-io/flowpilot/pkg/observability"
	"github.com/flowpilot-io/flowpilot/pkg/platform"
	"github.com/flowpilot-io/flowpilot/pkg/trigger"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// ============================================================================
// HTTP SERVER - REST surface over the trigger and execution layers
// ============================================================================

// WorkflowLister is implemented by catalogs that can enumerate their
// workflows. The remote catalog cannot, so the listing endpoint is optional.
type WorkflowLister interface {
	List() []*workflow.Workflow
}

// Server is the HTTP front of the engine.
type Server struct {
	service        *trigger.Service
	coordinator    *execution.Coordinator
	catalog        workflow.Catalog
	lister         WorkflowLister
	metrics        *observability.PrometheusMetrics
	callbackSecret string
	addr           string
	logger         *slog.Logger
	httpServer     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithWorkflowLister enables the workflow listing endpoint.
func WithWorkflowLister(l WorkflowLister) Option {
	return func(s *Server) {
		s.lister = l
	}
}

// WithMetrics enables the prometheus scrape endpoint and trigger counters.
func WithMetrics(m *observability.PrometheusMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCallbackSecret sets the HMAC secret for the callback endpoint.
func WithCallbackSecret(secret string) Option {
	return func(s *Server) {
		s.callbackSecret = secret
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server.
func New(cfg *config.ServerConfig, service *trigger.Service, coordinator *execution.Coordinator, catalog workflow.Catalog, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("trigger service is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("execution coordinator is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	s := &Server{
		service:     service,
		coordinator: coordinator,
		catalog:     catalog,
		addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.metrics != nil {
		r.Get("/metrics", observability.MetricsHandler().ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
		r.Post("/suggestions", s.handleSuggestion)
		r.Post("/executions", s.handleExecute)
		r.Get("/executions/{executionID}", s.handleExecutionStatus)
		r.Delete("/executions/{executionID}", s.handleCancelExecution)
		r.Post("/callbacks/{executionID}", s.handleCallback)

		if s.lister != nil {
			r.Get("/workflows", s.handleListWorkflows)
		}
		r.Get("/workflows/{workflowID}/history", s.handleHistory)
	})

	return r
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// ----------------------------------------------------------------------------
// Handlers
// ----------------------------------------------------------------------------

type messageRequest struct {
	AgentID       string `json:"agent_id"`
	UserID        string `json:"user_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	Message       string `json:"message"`
	SkipRateLimit bool   `json:"skip_rate_limit,omitempty"`
}

// handleMessage runs the full trigger pipeline on one chat message.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "agent_id and message are required")
		return
	}

	var opts []trigger.ProcessOption
	if req.SkipRateLimit {
		opts = append(opts, trigger.SkipRateLimit())
	}

	outcome := s.service.ProcessUserMessage(r.Context(), req.AgentID, req.UserID, req.SessionID, req.Message, opts...)
	if outcome == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.metrics.RecordTriggerMatch(outcome.Action)
	s.writeJSON(w, http.StatusOK, outcome)
}

type suggestionRequest struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

// handleSuggestion matches without executing.
func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "agent_id and message are required")
		return
	}

	suggestion := s.service.Suggest(r.Context(), req.AgentID, req.Message)
	if suggestion == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, suggestion)
}

type executeRequest struct {
	WorkflowID string                 `json:"workflow_id"`
	AgentID    string                 `json:"agent_id"`
	UserID     string                 `json:"user_id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// handleExecute dispatches a workflow directly, bypassing trigger matching.
// Used by confirmation UIs and operator tooling.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkflowID == "" || req.AgentID == "" {
		s.writeError(w, http.StatusBadRequest, "workflow_id and agent_id are required")
		return
	}

	wf, err := s.catalog.GetWorkflow(r.Context(), req.WorkflowID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	result := s.service.ExecuteWorkflow(r.Context(), &workflow.ExecutionRequest{
		AgentID:    req.AgentID,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Workflow:   wf,
		Parameters: req.Parameters,
		Timestamp:  time.Now(),
	})

	status := http.StatusOK
	if !result.Success {
		status = statusForError(result.Error)
	}
	s.writeJSON(w, status, result)
}

// handleExecutionStatus reports one execution's state. The platform query
// parameter selects the adapter for cache misses.
func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	platformName := r.URL.Query().Get("platform")

	result, err := s.coordinator.ExecutionStatus(r.Context(), platformName, executionID)
	if err != nil {
		if platform.IsNotFoundError(err) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleCancelExecution cancels best-effort.
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	platformName := r.URL.Query().Get("platform")

	cancelled, err := s.coordinator.Cancel(r.Context(), platformName, executionID)
	if err != nil {
		if platform.IsNotFoundError(err) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// handleCallback receives an asynchronous completion from a webhook target.
// The signature is verified against the raw body before anything is parsed.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	payload, err := platform.ParseCallback(s.callbackSecret, r.Header.Get(platform.SignatureHeader), body)
	if err != nil {
		s.logger.Warn("rejected callback", "execution_id", executionID, "error", err)
		s.writeError(w, http.StatusUnauthorized, "callback verification failed")
		return
	}
	if payload.ExecutionID != executionID {
		s.writeError(w, http.StatusBadRequest, "execution id mismatch")
		return
	}

	s.coordinator.ApplyCallback(payload.ExecutionID, callbackStatus(payload.Status), payload.Output, payload.Error)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func callbackStatus(status string) workflow.Status {
	switch status {
	case "failed", "error":
		return workflow.StatusFailed
	case "cancelled", "canceled":
		return workflow.StatusCancelled
	default:
		return workflow.StatusCompleted
	}
}

// handleListWorkflows enumerates the catalog.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": s.lister.List(),
	})
}

// handleHistory lists cached execution results for one workflow.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	history := s.coordinator.History(workflowID, limit)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"executions":  history,
	})
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

// statusForError maps shaped execution errors onto HTTP statuses.
func statusForError(execErr *workflow.ExecutionError) int {
	if execErr == nil {
		return http.StatusInternalServerError
	}
	switch execErr.Code {
	case workflow.ErrCodeValidation:
		return http.StatusBadRequest
	case workflow.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case workflow.ErrCodeNotFound:
		return http.StatusNotFound
	case workflow.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case workflow.ErrCodeNoPlatform, workflow.ErrCodeInvalidConfig:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
