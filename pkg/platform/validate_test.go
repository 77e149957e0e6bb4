package platform

import (
	"strings"
	"testing"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

func declaredWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:   "wf-notify",
		Name: "Notify",
		Parameters: []workflow.Parameter{
			{Name: "channel", Type: "string", Required: true},
			{Name: "email", Type: "string", Validation: `^[^@\s]+@[^@\s]+$`},
			{Name: "retries", Type: "number"},
		},
	}
}

func TestValidateDeclaredParameters(t *testing.T) {
	tests := []struct {
		name      string
		params    map[string]interface{}
		valid     bool
		errSubstr string
	}{
		{
			name:   "all declared parameters present and matching",
			params: map[string]interface{}{"channel": "#ops", "email": "ops@example.com", "retries": 3},
			valid:  true,
		},
		{
			name:      "missing required parameter",
			params:    map[string]interface{}{"email": "ops@example.com"},
			valid:     false,
			errSubstr: "required parameter 'channel' is missing",
		},
		{
			name:      "validation rule mismatch",
			params:    map[string]interface{}{"channel": "#ops", "email": "not-an-address"},
			valid:     false,
			errSubstr: "does not match its validation rule",
		},
		{
			name:   "optional parameter absent",
			params: map[string]interface{}{"channel": "#ops"},
			valid:  true,
		},
		{
			name:   "non-string value skips rule check",
			params: map[string]interface{}{"channel": "#ops", "email": 42},
			valid:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validateDeclaredParameters(declaredWorkflow(), tt.params)
			if result.Valid != tt.valid {
				t.Fatalf("expected valid=%v, got %v (errors: %v)", tt.valid, result.Valid, result.Errors)
			}
			if tt.errSubstr != "" {
				found := false
				for _, msg := range result.Errors {
					if strings.Contains(msg, tt.errSubstr) {
						found = true
					}
				}
				if !found {
					t.Errorf("expected an error containing %q, got %v", tt.errSubstr, result.Errors)
				}
			}
		})
	}
}

func TestValidateDeclaredParametersBrokenRule(t *testing.T) {
	wf := &workflow.Workflow{
		ID: "wf-broken",
		Parameters: []workflow.Parameter{
			{Name: "code", Type: "string", Validation: `([unclosed`},
		},
	}

	result := validateDeclaredParameters(wf, map[string]interface{}{"code": "abc"})
	if result.Valid {
		t.Fatal("expected a broken validation rule to fail validation")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "invalid validation rule") {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}
