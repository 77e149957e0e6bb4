package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/config"
)

func testSpecs() []config.WorkflowSpec {
	return []config.WorkflowSpec{
		{
			ID:       "wf-deploy",
			Name:     "Deploy to Staging",
			Platform: "polling",
			Target:   "deploy",
			Triggers: []string{"deploy to staging", "ship it"},
		},
		{
			ID:       "wf-report",
			Name:     "Weekly Report",
			Platform: "webhook",
			Target:   "https://hooks.example.com/report",
			Triggers: []string{"generate the weekly report"},
		},
	}
}

func TestFindWorkflowByTriggerVerbatim(t *testing.T) {
	catalog, err := LoadFromSpecs(testSpecs())
	if err != nil {
		t.Fatalf("LoadFromSpecs failed: %v", err)
	}

	match, err := catalog.FindWorkflowByTrigger(context.Background(), "agent-1", "please deploy to staging now", 0.4)
	if err != nil {
		t.Fatalf("FindWorkflowByTrigger failed: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Workflow.ID != "wf-deploy" {
		t.Errorf("expected wf-deploy, got %s", match.Workflow.ID)
	}
	if match.Confidence != 1.0 {
		t.Errorf("verbatim containment should score 1.0, got %v", match.Confidence)
	}
}

func TestFindWorkflowByTriggerPartialOverlap(t *testing.T) {
	catalog, _ := LoadFromSpecs(testSpecs())

	match, err := catalog.FindWorkflowByTrigger(context.Background(), "agent-1", "can you generate the report", 0.4)
	if err != nil {
		t.Fatalf("FindWorkflowByTrigger failed: %v", err)
	}
	if match == nil {
		t.Fatal("expected a partial match")
	}
	if match.Workflow.ID != "wf-report" {
		t.Errorf("expected wf-report, got %s", match.Workflow.ID)
	}
	if match.Confidence >= 1.0 {
		t.Errorf("partial overlap must score below a verbatim match, got %v", match.Confidence)
	}
}

func TestFindWorkflowByTriggerHonorsFloor(t *testing.T) {
	catalog, _ := LoadFromSpecs(testSpecs())

	match, err := catalog.FindWorkflowByTrigger(context.Background(), "agent-1", "what's the weather like", 0.4)
	if err != nil {
		t.Fatalf("FindWorkflowByTrigger failed: %v", err)
	}
	if match != nil {
		t.Fatalf("expected no match for unrelated text, got %+v", match)
	}
}

func TestFindWorkflowByTriggerSkipsInactive(t *testing.T) {
	specs := testSpecs()
	specs[0].Active = config.BoolPtr(false)
	catalog, _ := LoadFromSpecs(specs)

	match, _ := catalog.FindWorkflowByTrigger(context.Background(), "agent-1", "deploy to staging", 0.4)
	if match != nil {
		t.Fatalf("inactive workflows must not match, got %+v", match)
	}
}

func TestRecordExecutionBumpsCounters(t *testing.T) {
	catalog, _ := LoadFromSpecs(testSpecs())

	at := time.Now()
	if err := catalog.RecordExecution(context.Background(), "wf-deploy", at); err != nil {
		t.Fatalf("RecordExecution failed: %v", err)
	}

	w, err := catalog.GetWorkflow(context.Background(), "wf-deploy")
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if w.ExecutionCount != 1 {
		t.Errorf("expected execution count 1, got %d", w.ExecutionCount)
	}
	if !w.LastExecuted.Equal(at) {
		t.Errorf("expected last executed %v, got %v", at, w.LastExecuted)
	}
}

func TestReplaceFromSpecsRejectsDuplicates(t *testing.T) {
	catalog, _ := LoadFromSpecs(testSpecs())

	specs := testSpecs()
	specs[1].ID = specs[0].ID
	if err := catalog.ReplaceFromSpecs(specs); err == nil {
		t.Fatal("expected duplicate ids to be rejected")
	}

	// The previous set must survive a rejected replace.
	if _, err := catalog.GetWorkflow(context.Background(), "wf-report"); err != nil {
		t.Errorf("previous set should be intact: %v", err)
	}
}

func TestListIsSorted(t *testing.T) {
	catalog, _ := LoadFromSpecs(testSpecs())
	list := catalog.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 workflows, got %d", len(list))
	}
	if list[0].ID != "wf-deploy" || list[1].ID != "wf-report" {
		t.Errorf("expected sorted ids, got %s, %s", list[0].ID, list[1].ID)
	}
}
