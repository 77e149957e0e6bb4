package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/execution"
	"github.com/flowpilot-io/flowpilot/pkg/extract"
	"github.com/flowpilot-io/flowpilot/pkg/match"
	"github.com/flowpilot-io/flowpilot/pkg/resolve"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// ============================================================================
// WORKFLOW TRIGGER SERVICE - the conversational entry point
// ============================================================================

// Outcome is what handling one user message produced. Exactly one of the
// branches is populated: an executed result, a suggestion awaiting the user,
// or nothing (the message was not a workflow request).
type Outcome struct {
	Action     workflow.RecommendedAction `json:"action"`
	Match      *workflow.TriggerMatch     `json:"match,omitempty"`
	Result     *workflow.ExecutionResult  `json:"result,omitempty"`
	Suggestion *workflow.Suggestion       `json:"suggestion,omitempty"`

	// Request is set alongside a confirm suggestion so the confirmation
	// round-trip can re-submit it unchanged.
	Request *workflow.ExecutionRequest `json:"request,omitempty"`
}

// Service turns chat messages into workflow executions. It sits in the
// message path of a conversational agent, so it must never break the
// conversation: every internal failure is logged and swallowed, and the
// message continues to the agent as if no workflow machinery existed.
type Service struct {
	matcher     *match.Matcher
	extractor   *extract.Extractor
	resolver    *resolve.Resolver
	coordinator *execution.Coordinator
	thresholds  config.ThresholdsConfig
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates the trigger service.
func NewService(catalog workflow.Catalog, coordinator *execution.Coordinator, thresholds config.ThresholdsConfig, opts ...ServiceOption) (*Service, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("execution coordinator is required")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	matcher, err := match.NewMatcher(catalog)
	if err != nil {
		return nil, err
	}

	s := &Service{
		matcher:     matcher,
		extractor:   extract.NewExtractor(),
		resolver:    resolve.NewResolver(),
		coordinator: coordinator,
		thresholds:  thresholds,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProcessOption tweaks one ProcessUserMessage call.
type ProcessOption func(*processOptions)

type processOptions struct {
	skipRateLimit bool
}

// SkipRateLimit forwards the admission bypass to the coordinator when the
// match auto-executes.
func SkipRateLimit() ProcessOption {
	return func(o *processOptions) {
		o.skipRateLimit = true
	}
}

// ProcessUserMessage inspects one chat message for workflow intent and acts
// on the threshold policy. It never returns an error: a nil outcome means
// the message is not a workflow request (or the machinery hiccupped) and
// the conversation proceeds untouched.
func (s *Service) ProcessUserMessage(ctx context.Context, agentID, userID, sessionID, message string, opts ...ProcessOption) *Outcome {
	var options processOptions
	for _, opt := range opts {
		opt(&options)
	}
	if message == "" {
		return nil
	}

	triggerMatch, err := s.matcher.FindMatch(ctx, agentID, message, s.thresholds.Suggestion)
	if err != nil {
		s.logger.Warn("trigger matching failed, message continues to the agent",
			"agent_id", agentID, "error", err)
		return nil
	}
	if triggerMatch == nil {
		return nil
	}

	entities := s.extractor.Extract(message)
	triggerMatch.Entities = entities
	triggerMatch.SuggestedParams = s.resolver.Resolve(triggerMatch.Workflow.Parameters, entities, message)

	action := s.decide(triggerMatch.Confidence)
	s.logger.Debug("trigger match",
		"agent_id", agentID,
		"workflow_id", triggerMatch.Workflow.ID,
		"confidence", triggerMatch.Confidence,
		"match_type", triggerMatch.MatchType,
		"action", action)

	switch action {
	case workflow.ActionExecute:
		req := s.buildRequest(agentID, userID, sessionID, message, triggerMatch, false)
		var execOpts []execution.ExecuteOption
		if options.skipRateLimit {
			execOpts = append(execOpts, execution.SkipRateLimit())
		}
		result := s.coordinator.Execute(ctx, req, execOpts...)
		return &Outcome{Action: workflow.ActionExecute, Match: triggerMatch, Result: result}

	case workflow.ActionConfirm:
		req := s.buildRequest(agentID, userID, sessionID, message, triggerMatch, true)
		return &Outcome{
			Action:     workflow.ActionConfirm,
			Match:      triggerMatch,
			Suggestion: s.GenerateWorkflowSuggestion(agentID, triggerMatch),
			Request:    req,
		}

	case workflow.ActionClarify:
		return &Outcome{
			Action:     workflow.ActionClarify,
			Match:      triggerMatch,
			Suggestion: s.GenerateWorkflowSuggestion(agentID, triggerMatch),
		}

	default:
		return nil
	}
}

// decide applies the threshold policy to a match confidence.
func (s *Service) decide(confidence float64) workflow.RecommendedAction {
	switch {
	case confidence >= s.thresholds.AutoExecute:
		return workflow.ActionExecute
	case confidence >= s.thresholds.Confirmation:
		return workflow.ActionConfirm
	case confidence >= s.thresholds.Suggestion:
		return workflow.ActionClarify
	default:
		return workflow.ActionIgnore
	}
}

// GenerateWorkflowSuggestion shapes a match into a user-facing suggestion
// with human-readable reasoning.
func (s *Service) GenerateWorkflowSuggestion(agentID string, triggerMatch *workflow.TriggerMatch) *workflow.Suggestion {
	if triggerMatch == nil || triggerMatch.Workflow == nil {
		return nil
	}

	action := s.decide(triggerMatch.Confidence)
	var reasoning string
	switch action {
	case workflow.ActionExecute:
		reasoning = fmt.Sprintf("Message matches '%s' with %.0f%% confidence; safe to run immediately.",
			triggerMatch.Workflow.Name, triggerMatch.Confidence*100)
	case workflow.ActionConfirm:
		reasoning = fmt.Sprintf("Message likely refers to '%s' (%.0f%% confidence); ask the user before running.",
			triggerMatch.Workflow.Name, triggerMatch.Confidence*100)
	case workflow.ActionClarify:
		reasoning = fmt.Sprintf("Message loosely resembles '%s' (%.0f%% confidence); worth offering as an option.",
			triggerMatch.Workflow.Name, triggerMatch.Confidence*100)
	default:
		reasoning = fmt.Sprintf("Confidence %.0f%% is below the suggestion threshold.",
			triggerMatch.Confidence*100)
	}

	return &workflow.Suggestion{
		AgentID:           agentID,
		Match:             triggerMatch,
		RecommendedAction: action,
		Reasoning:         reasoning,
	}
}

// Suggest matches the text and shapes a suggestion without executing
// anything, regardless of confidence. Nil when nothing clears the floor.
func (s *Service) Suggest(ctx context.Context, agentID, text string) *workflow.Suggestion {
	triggerMatch, err := s.matcher.FindMatch(ctx, agentID, text, s.thresholds.Suggestion)
	if err != nil {
		s.logger.Warn("suggestion matching failed", "agent_id", agentID, "error", err)
		return nil
	}
	if triggerMatch == nil {
		return nil
	}
	entities := s.extractor.Extract(text)
	triggerMatch.Entities = entities
	triggerMatch.SuggestedParams = s.resolver.Resolve(triggerMatch.Workflow.Parameters, entities, text)
	return s.GenerateWorkflowSuggestion(agentID, triggerMatch)
}

// ExecuteWorkflow runs a previously built request, typically after the user
// confirmed a suggestion. The request is consumed as-is; confirmation does
// not re-run matching.
func (s *Service) ExecuteWorkflow(ctx context.Context, req *workflow.ExecutionRequest, opts ...execution.ExecuteOption) *workflow.ExecutionResult {
	if req != nil {
		req.RequiresConfirmation = false
	}
	return s.coordinator.Execute(ctx, req, opts...)
}

func (s *Service) buildRequest(agentID, userID, sessionID, message string, triggerMatch *workflow.TriggerMatch, requiresConfirmation bool) *workflow.ExecutionRequest {
	return &workflow.ExecutionRequest{
		RequestID:            uuid.New().String(),
		AgentID:              agentID,
		UserID:               userID,
		SessionID:            sessionID,
		Message:              message,
		Workflow:             triggerMatch.Workflow,
		Parameters:           triggerMatch.SuggestedParams,
		Confidence:           triggerMatch.Confidence,
		RequiresConfirmation: requiresConfirmation,
		Timestamp:            time.Now(),
	}
}
