package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// stubCatalog returns a canned match result.
type stubCatalog struct {
	result *workflow.MatchResult
	err    error
}

func (s *stubCatalog) FindWorkflowByTrigger(ctx context.Context, agentID, text string, minConfidence float64) (*workflow.MatchResult, error) {
	return s.result, s.err
}

func (s *stubCatalog) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	return nil, errors.New("not implemented")
}

func (s *stubCatalog) RecordExecution(ctx context.Context, workflowID string, at time.Time) error {
	return nil
}

func testWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:                "wf-1",
		Name:              "Launch campaign",
		Platform:          workflow.PlatformWebhook,
		Target:            "https://hooks.example.com/abc",
		Triggers:          []string{"launch campaign"},
		Active:            true,
		EstimatedDuration: 30 * time.Second,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		triggers   []string
		text       string
		want       workflow.MatchType
	}{
		{"exact requires verbatim trigger", 0.9, []string{"launch campaign"}, "please Launch Campaign now", workflow.MatchTypeExact},
		{"high confidence without verbatim is semantic", 0.9, []string{"launch campaign"}, "start the marketing push", workflow.MatchTypeSemantic},
		{"semantic above 0.7", 0.75, []string{"launch campaign"}, "kick off the campaign", workflow.MatchTypeSemantic},
		{"fuzzy at 0.5", 0.5, []string{"launch campaign"}, "launch campaign", workflow.MatchTypeFuzzy},
		{"fuzzy at exactly 0.7", 0.7, nil, "anything", workflow.MatchTypeFuzzy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.confidence, tt.triggers, tt.text)
			if got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.confidence, got, tt.want)
			}
		})
	}
}

func TestFindMatch_BelowMinConfidence(t *testing.T) {
	catalog := &stubCatalog{result: &workflow.MatchResult{
		Workflow:   testWorkflow(),
		Confidence: 0.3,
	}}
	matcher, err := NewMatcher(catalog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, err := matcher.FindMatch(context.Background(), "agent-1", "launch", 0.4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil match below minimum confidence, got %+v", m)
	}
}

func TestFindMatch_NoResult(t *testing.T) {
	matcher, _ := NewMatcher(&stubCatalog{})

	m, err := matcher.FindMatch(context.Background(), "agent-1", "hello", 0.4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil match, got %+v", m)
	}
}

func TestFindMatch_ClassifiesExact(t *testing.T) {
	catalog := &stubCatalog{result: &workflow.MatchResult{
		Workflow:        testWorkflow(),
		Confidence:      0.95,
		MatchedTriggers: []string{"launch campaign"},
	}}
	matcher, _ := NewMatcher(catalog)

	m, err := matcher.FindMatch(context.Background(), "agent-1", "launch campaign for Q4", 0.4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.MatchType != workflow.MatchTypeExact {
		t.Errorf("expected exact match type, got %s", m.MatchType)
	}
	if m.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %v", m.Confidence)
	}
}

func TestFindMatch_CatalogError(t *testing.T) {
	matcher, _ := NewMatcher(&stubCatalog{err: errors.New("catalog down")})

	if _, err := matcher.FindMatch(context.Background(), "agent-1", "hello", 0.4); err == nil {
		t.Error("expected error to propagate")
	}
}
