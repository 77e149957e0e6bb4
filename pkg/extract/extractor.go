package extract

import (
	"regexp"
	"strconv"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// patternConfidence is the confidence assigned to regex-based extraction.
const patternConfidence = 0.9

// Pattern is a named extraction rule.
type Pattern struct {
	Name   string
	Type   workflow.EntityType
	Regexp *regexp.Regexp

	// Layout parses the matched literal for date patterns.
	Layout string
}

// DefaultPatterns returns the built-in extraction rules. Patterns are applied
// in this order; matches of one pattern are independent of the others.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:   "email",
			Type:   workflow.EntityTypeEmail,
			Regexp: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		},
		{
			Name:   "url",
			Type:   workflow.EntityTypeURL,
			Regexp: regexp.MustCompile(`https?://[^\s<>"]+`),
		},
		{
			Name:   "number",
			Type:   workflow.EntityTypeNumber,
			Regexp: regexp.MustCompile(`\b\d+(?:\.\d+)?\b`),
		},
		{
			Name:   "date",
			Type:   workflow.EntityTypeDate,
			Regexp: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
			Layout: "2006-01-02",
		},
		{
			Name:   "date",
			Type:   workflow.EntityTypeDate,
			Regexp: regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
			Layout: "1/2/2006",
		},
	}
}

// Extractor pulls typed entities out of raw text. Pure and deterministic for
// a fixed pattern set; safe for concurrent use.
type Extractor struct {
	patterns []Pattern
}

// NewExtractor creates an extractor with the default pattern set.
func NewExtractor() *Extractor {
	return NewExtractorWithPatterns(DefaultPatterns())
}

// NewExtractorWithPatterns creates an extractor with a custom pattern set.
func NewExtractorWithPatterns(patterns []Pattern) *Extractor {
	return &Extractor{patterns: patterns}
}

// Extract applies every pattern against the text. Each match becomes one
// entity carrying its [start,end) span; matches of the same pattern appear
// in left-to-right order.
func (e *Extractor) Extract(text string) []workflow.Entity {
	var entities []workflow.Entity

	for _, pattern := range e.patterns {
		locs := pattern.Regexp.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			literal := text[loc[0]:loc[1]]

			value, ok := parseValue(pattern, literal)
			if !ok {
				continue
			}

			entities = append(entities, workflow.Entity{
				Name:       pattern.Name,
				Value:      value,
				Type:       pattern.Type,
				Confidence: patternConfidence,
				Start:      loc[0],
				End:        loc[1],
			})
		}
	}

	return entities
}

// parseValue converts the matched literal into a typed value. Matches that
// fail typed parsing (e.g. an impossible calendar date) are dropped.
func parseValue(pattern Pattern, literal string) (interface{}, bool) {
	switch pattern.Type {
	case workflow.EntityTypeNumber:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case workflow.EntityTypeDate:
		t, err := time.Parse(pattern.Layout, literal)
		if err != nil {
			return nil, false
		}
		return t, true
	default:
		return literal, true
	}
}
