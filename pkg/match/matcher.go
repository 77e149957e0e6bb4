package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// Match-type classification cut-points. Deliberately fixed and independent
// of the configurable execution thresholds: match type describes how a match
// was found, it never gates execution.
const (
	exactCutoff    = 0.9
	semanticCutoff = 0.7
)

// Matcher is a thin façade over the catalog's trigger scoring. The catalog
// owns phrase similarity; this layer enforces the confidence floor and
// classifies the match type for the human-in-the-loop layer.
type Matcher struct {
	catalog workflow.Catalog
}

// NewMatcher creates a Matcher backed by the given catalog.
func NewMatcher(catalog workflow.Catalog) (*Matcher, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	return &Matcher{catalog: catalog}, nil
}

// FindMatch queries the catalog and returns a classified trigger match, or
// nil when nothing scores at or above minConfidence.
func (m *Matcher) FindMatch(ctx context.Context, agentID, text string, minConfidence float64) (*workflow.TriggerMatch, error) {
	raw, err := m.catalog.FindWorkflowByTrigger(ctx, agentID, text, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("trigger lookup failed: %w", err)
	}
	if raw == nil || raw.Workflow == nil {
		return nil, nil
	}
	if raw.Confidence < minConfidence {
		return nil, nil
	}

	return &workflow.TriggerMatch{
		Workflow:        raw.Workflow,
		Confidence:      raw.Confidence,
		MatchedTriggers: raw.MatchedTriggers,
		MatchType:       Classify(raw.Confidence, raw.MatchedTriggers, text),
	}, nil
}

// Classify derives the match type from confidence and verbatim containment.
func Classify(confidence float64, matchedTriggers []string, text string) workflow.MatchType {
	if confidence >= exactCutoff && containsVerbatim(matchedTriggers, text) {
		return workflow.MatchTypeExact
	}
	if confidence > semanticCutoff {
		return workflow.MatchTypeSemantic
	}
	return workflow.MatchTypeFuzzy
}

// containsVerbatim reports whether any trigger phrase appears in the text as
// a case-insensitive substring.
func containsVerbatim(triggers []string, text string) bool {
	lower := strings.ToLower(text)
	for _, trigger := range triggers {
		if trigger == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}
