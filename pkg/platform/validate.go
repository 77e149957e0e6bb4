package platform

import (
	"fmt"
	"regexp"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// validateDeclaredParameters checks params against the workflow's parameter
// declarations: required presence and, where declared, the validation rule.
func validateDeclaredParameters(wf *workflow.Workflow, params map[string]interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}

	for _, decl := range wf.Parameters {
		value, present := params[decl.Name]

		if !present {
			if decl.Required {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("required parameter '%s' is missing", decl.Name))
			}
			continue
		}

		if decl.Validation == "" {
			continue
		}
		str, ok := value.(string)
		if !ok {
			continue
		}
		re, err := regexp.Compile(decl.Validation)
		if err != nil {
			// Broken rule in the catalog record; surface rather than skip.
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("parameter '%s' has an invalid validation rule", decl.Name))
			continue
		}
		if !re.MatchString(str) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("parameter '%s' does not match its validation rule", decl.Name))
		}
	}

	return result
}
