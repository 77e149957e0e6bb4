package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// ============================================================================
// MEMORY CATALOG - file/config backed workflow store with trigger scoring
// ============================================================================

// MemoryCatalog serves workflow records from memory. Records come from the
// config's workflows section (or an external file) and can be swapped
// atomically by the hot-reload watcher. Scoring is token overlap between
// the message and each trigger phrase, with verbatim containment scoring a
// full match.
type MemoryCatalog struct {
	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
	order     []string
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{workflows: make(map[string]*workflow.Workflow)}
}

// LoadFromSpecs builds a catalog from config workflow specs.
func LoadFromSpecs(specs []config.WorkflowSpec) (*MemoryCatalog, error) {
	c := NewMemoryCatalog()
	if err := c.ReplaceFromSpecs(specs); err != nil {
		return nil, err
	}
	return c, nil
}

// ReplaceFromSpecs atomically swaps the full workflow set. Used by the
// hot-reload watcher; a parse failure leaves the current set untouched.
func (c *MemoryCatalog) ReplaceFromSpecs(specs []config.WorkflowSpec) error {
	workflows := make(map[string]*workflow.Workflow, len(specs))
	order := make([]string, 0, len(specs))
	for i := range specs {
		w, err := specs[i].ToWorkflow()
		if err != nil {
			return err
		}
		if _, dup := workflows[w.ID]; dup {
			return fmt.Errorf("duplicate workflow id '%s'", w.ID)
		}
		workflows[w.ID] = w
		order = append(order, w.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.workflows = workflows
	c.order = order
	return nil
}

// FindWorkflowByTrigger scores every active workflow's triggers against the
// text and returns the best match at or above minConfidence, or nil.
func (c *MemoryCatalog) FindWorkflowByTrigger(ctx context.Context, agentID, text string, minConfidence float64) (*workflow.MatchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lowerText := strings.ToLower(text)
	textTokens := tokenSet(lowerText)

	var best *workflow.MatchResult
	for _, id := range c.order {
		w := c.workflows[id]
		if !w.Active {
			continue
		}

		var confidence float64
		var matched []string
		for _, trigger := range w.Triggers {
			score := scoreTrigger(trigger, lowerText, textTokens)
			if score <= 0 {
				continue
			}
			if score > confidence {
				confidence = score
			}
			matched = append(matched, trigger)
		}

		if confidence < minConfidence {
			continue
		}
		if best == nil || confidence > best.Confidence {
			best = &workflow.MatchResult{
				Workflow:        w,
				Confidence:      confidence,
				MatchedTriggers: matched,
			}
		}
	}
	return best, nil
}

// scoreTrigger rates one trigger phrase against the message. Verbatim
// containment is a full match; otherwise the score is the fraction of
// trigger tokens present in the message, damped so partial overlaps stay
// below the exact-match band.
func scoreTrigger(trigger, lowerText string, textTokens map[string]bool) float64 {
	lowerTrigger := strings.ToLower(strings.TrimSpace(trigger))
	if lowerTrigger == "" {
		return 0
	}
	if strings.Contains(lowerText, lowerTrigger) {
		return 1.0
	}

	triggerTokens := tokens(lowerTrigger)
	if len(triggerTokens) == 0 {
		return 0
	}
	overlap := 0
	for _, tok := range triggerTokens {
		if textTokens[tok] {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	return 0.85 * float64(overlap) / float64(len(triggerTokens))
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokens(s) {
		set[tok] = true
	}
	return set
}

// GetWorkflow returns a workflow by id.
func (c *MemoryCatalog) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow '%s' not found", workflowID)
	}
	return w, nil
}

// RecordExecution bumps the execution counters on the stored record.
func (c *MemoryCatalog) RecordExecution(ctx context.Context, workflowID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.workflows[workflowID]
	if !ok {
		return fmt.Errorf("workflow '%s' not found", workflowID)
	}
	w.ExecutionCount++
	w.LastExecuted = at
	return nil
}

// List returns all workflows sorted by id.
func (c *MemoryCatalog) List() []*workflow.Workflow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*workflow.Workflow, 0, len(c.workflows))
	for _, w := range c.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
