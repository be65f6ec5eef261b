package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigError_Is(t *testing.T) {
	err := NewError(ErrorKindValidationFailed, "bad value", nil).WithComponent("tides")

	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("Expected errors.Is to match validation sentinel")
	}
	if errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected errors.Is not to match a different kind")
	}

	wrapped := fmt.Errorf("resolve: %w", err)
	if !IsKind(wrapped, ErrorKindValidationFailed) {
		t.Errorf("Expected IsKind to see through wrapping")
	}
	if KindOf(wrapped) != ErrorKindValidationFailed {
		t.Errorf("Expected kind %s, got %s", ErrorKindValidationFailed, KindOf(wrapped))
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewError(ErrorKindSinkFailure, "failed to write user_nl_mom", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("Expected wrapped cause to be reachable")
	}
	if !strings.HasSuffix(err.Error(), "permission denied") {
		t.Errorf("Expected message to end with cause, got %q", err.Error())
	}
}

func TestConfigError_MissingIsSortedAndStable(t *testing.T) {
	err := NewError(ErrorKindMissingRequiredInput, "required components lack inputs", nil).
		WithMissing("runoff", []string{"runoff_file", "case_grid"}).
		WithMissing("bgc", []string{"bgc_ic_file"})

	want := "[missing_required_input] required components lack inputs: bgc: [bgc_ic_file]; runoff: [case_grid, runoff_file]"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	missing := MissingOf(fmt.Errorf("wrapped: %w", err))
	if len(missing) != 2 {
		t.Fatalf("Expected 2 components in missing map, got %d", len(missing))
	}
	if missing["runoff"][0] != "case_grid" {
		t.Errorf("Expected sorted names, got %v", missing["runoff"])
	}
}

func TestConfigError_WithMissingCopiesNames(t *testing.T) {
	names := []string{"b", "a"}
	NewError(ErrorKindValidationFailed, "x", nil).WithMissing("c", names)

	if names[0] != "b" {
		t.Errorf("Expected caller slice to be left untouched, got %v", names)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != "" {
		t.Errorf("Expected empty kind for a plain error")
	}
	if IsKind(nil, ErrorKindInvalidState) {
		t.Errorf("Expected nil error not to match any kind")
	}
}
