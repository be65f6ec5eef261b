package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are reported but never block apply.
	SeverityWarning Severity = "warning"

	// SeverityError blocks apply.
	SeverityError Severity = "error"

	// SeverityCritical blocks apply.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity denies the plan.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The module's deny set is queried.
	Rego string `json:"rego"`

	// Severity applies to violations that do not carry their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was read from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one element of a policy's deny set.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Component is the offending component, when the rule names one.
	Component string `json:"component,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any violation blocks.
	Allowed bool `json:"allowed"`

	// Violations lists the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists violations that don't block.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document bound to `input` in every policy.
type Input struct {
	// FeatureDescriptor is the compset the plan was resolved for.
	FeatureDescriptor string `json:"feature_descriptor"`

	// Components lists the active components in apply order.
	Components []ComponentInput `json:"components"`

	// Skipped lists optional components dropped for missing inputs.
	Skipped []string `json:"skipped"`

	// Operation is the CLI operation being gated, for example "apply".
	Operation string `json:"operation"`

	// Remote is true when registry commands run on a remote host.
	Remote bool `json:"remote"`
}

// ComponentInput describes one active component.
type ComponentInput struct {
	Name    string         `json:"name"`
	Inputs  map[string]any `json:"inputs"`
	Outputs []string       `json:"outputs"`
}
