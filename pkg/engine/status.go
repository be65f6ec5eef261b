package engine

import (
	"fmt"
)

// RunStatus represents the overall status of an apply run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently applying components.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every component was configured and the
	// manifest was flushed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates a component failed. Sink effects of earlier
	// components remain in place.
	RunStatusFailed RunStatus = "failed"

	// RunStatusDenied indicates the policy gate rejected the plan before any
	// component ran.
	RunStatusDenied RunStatus = "denied"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusDenied
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusDenied:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// Outcome is the result of one component within a run.
type Outcome string

const (
	// OutcomeConfigured means Configure wrote every output.
	OutcomeConfigured Outcome = "configured"

	// OutcomeFailed means Configure returned an error.
	OutcomeFailed Outcome = "failed"

	// OutcomeNotAttempted means an earlier component failed first.
	OutcomeNotAttempted Outcome = "not_attempted"

	// OutcomeSkipped means an optional component was dropped during
	// resolution because inputs were missing.
	OutcomeSkipped Outcome = "skipped"
)

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeConfigured, OutcomeFailed, OutcomeNotAttempted, OutcomeSkipped:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}
