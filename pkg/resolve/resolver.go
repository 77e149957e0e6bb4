package resolve

import (
	"strings"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// Resolver autofills workflow parameters from extracted entities and
// declared defaults. Best effort only: required parameters it cannot fill
// stay unset and fail validation at execution time, not here.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve walks the declared parameters in order. A parameter takes the
// first entity whose category matches its name (case-insensitive), or the
// first entity at all when the parameter name appears literally in the text;
// otherwise the declared default, otherwise nothing.
func (r *Resolver) Resolve(params []workflow.Parameter, entities []workflow.Entity, text string) map[string]interface{} {
	resolved := make(map[string]interface{})
	lowerText := strings.ToLower(text)

	for _, param := range params {
		if entity, ok := findEntity(param, entities, lowerText); ok {
			resolved[param.Name] = entity.Value
			continue
		}
		if param.Default != nil {
			resolved[param.Name] = param.Default
		}
	}

	return resolved
}

func findEntity(param workflow.Parameter, entities []workflow.Entity, lowerText string) (workflow.Entity, bool) {
	lowerName := strings.ToLower(param.Name)
	nameInText := strings.Contains(lowerText, lowerName)

	for _, entity := range entities {
		if strings.EqualFold(entity.Name, param.Name) || nameInText {
			return entity, true
		}
	}
	return workflow.Entity{}, false
}
