package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies configuration errors so callers can react to a failure
// category without parsing messages.
type ErrorKind string

const (
	// ErrorKindMissingRequiredInput is raised by Resolve when a mandatory
	// component lacks declared inputs. It enumerates every missing name across
	// all mandatory components.
	ErrorKindMissingRequiredInput ErrorKind = "missing_required_input"

	// ErrorKindUnexpectedInput is raised when an input bag carries keys the
	// component does not declare.
	ErrorKindUnexpectedInput ErrorKind = "unexpected_input"

	// ErrorKindValidationFailed covers invalid values and cross-field
	// constraint violations.
	ErrorKindValidationFailed ErrorKind = "validation_failed"

	// ErrorKindFileNotFound is raised eagerly when a file-valued input does
	// not exist.
	ErrorKindFileNotFound ErrorKind = "file_not_found"

	// ErrorKindSinkReadNotFound is raised by Inspect when a text sink has no
	// matching entry.
	ErrorKindSinkReadNotFound ErrorKind = "sink_read_not_found"

	// ErrorKindUnsupportedOperation is raised for operations a sink cannot
	// perform, such as removing a registry value.
	ErrorKindUnsupportedOperation ErrorKind = "unsupported_operation"

	// ErrorKindManifestKeyMissing is raised by Deserialize when a recorded entry
	// lacks a declared parameter.
	ErrorKindManifestKeyMissing ErrorKind = "manifest_key_missing"

	// ErrorKindDuplicateComponent is raised when a name is registered twice.
	ErrorKindDuplicateComponent ErrorKind = "duplicate_component"

	// ErrorKindUnknownComponent is raised when a lookup finds no descriptor.
	ErrorKindUnknownComponent ErrorKind = "unknown_component"

	// ErrorKindInvalidState is raised when an instance is driven through an
	// illegal lifecycle transition.
	ErrorKindInvalidState ErrorKind = "invalid_state"

	// ErrorKindPolicyDenied is raised when the plan gate rejects a resolution.
	ErrorKindPolicyDenied ErrorKind = "policy_denied"

	// ErrorKindSinkFailure wraps I/O or subprocess failures while writing to or
	// reading from a sink.
	ErrorKindSinkFailure ErrorKind = "sink_failure"
)

// ConfigError represents a classified error with context.
// nolint:revive // ConfigError is intentionally named to distinguish from standard errors
type ConfigError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Component is the component name that caused the error, if applicable.
	Component string `json:"component,omitempty"`

	// Parameter is the parameter name involved, if applicable.
	Parameter string `json:"parameter,omitempty"`

	// Missing maps component names to the parameter names that were missing
	// or rejected. Used by resolution and validation errors.
	Missing map[string][]string `json:"missing,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if e.Component != "" {
		fmt.Fprintf(&b, " (component=%s", e.Component)
		if e.Parameter != "" {
			fmt.Fprintf(&b, ", parameter=%s", e.Parameter)
		}
		b.WriteString(")")
	}
	if len(e.Missing) > 0 {
		b.WriteString(": ")
		b.WriteString(formatMissing(e.Missing))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is. Two ConfigErrors
// match when their kinds match.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a new classified error.
func NewError(kind ErrorKind, message string, err error) *ConfigError {
	return &ConfigError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// WithComponent adds component context to an error.
func (e *ConfigError) WithComponent(name string) *ConfigError {
	e.Component = name
	return e
}

// WithParameter adds parameter context to an error.
func (e *ConfigError) WithParameter(name string) *ConfigError {
	e.Parameter = name
	return e
}

// WithMissing records the names rejected for a component. Names are sorted
// so the message is stable.
func (e *ConfigError) WithMissing(component string, names []string) *ConfigError {
	if e.Missing == nil {
		e.Missing = make(map[string][]string)
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	e.Missing[component] = sorted
	return e
}

// Sentinel values for errors.Is comparisons.
var (
	ErrMissingRequiredInput = &ConfigError{Kind: ErrorKindMissingRequiredInput}
	ErrUnexpectedInput      = &ConfigError{Kind: ErrorKindUnexpectedInput}
	ErrValidationFailed     = &ConfigError{Kind: ErrorKindValidationFailed}
	ErrFileNotFound         = &ConfigError{Kind: ErrorKindFileNotFound}
	ErrSinkReadNotFound     = &ConfigError{Kind: ErrorKindSinkReadNotFound}
	ErrUnsupportedOperation = &ConfigError{Kind: ErrorKindUnsupportedOperation}
	ErrManifestKeyMissing   = &ConfigError{Kind: ErrorKindManifestKeyMissing}
	ErrDuplicateComponent   = &ConfigError{Kind: ErrorKindDuplicateComponent}
	ErrUnknownComponent     = &ConfigError{Kind: ErrorKindUnknownComponent}
	ErrInvalidState         = &ConfigError{Kind: ErrorKindInvalidState}
	ErrPolicyDenied         = &ConfigError{Kind: ErrorKindPolicyDenied}
	ErrSinkFailure          = &ConfigError{Kind: ErrorKindSinkFailure}
)

// IsKind returns true if err, or any error it wraps, is a ConfigError of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *ConfigError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first ConfigError in the chain, or the empty
// string.
func KindOf(err error) ErrorKind {
	var e *ConfigError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MissingOf returns the component to names map carried by err, if any.
func MissingOf(err error) map[string][]string {
	var e *ConfigError
	if errors.As(err, &e) {
		return e.Missing
	}
	return nil
}

func formatMissing(missing map[string][]string) string {
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: [%s]", name, strings.Join(missing[name], ", ")))
	}
	return strings.Join(parts, "; ")
}
