package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/caseforge/caseforge/pkg/engine"
)

const (
	// SetCommand is the registry write helper script, relative to the case dir.
	SetCommand = "./xmlchange"

	// QueryCommand is the registry read helper script, relative to the case dir.
	QueryCommand = "./xmlquery"
)

// RegistrySink reads and writes case registry variables through Runner. When
// Remote is true the runner is expected to dispatch to the remote host.
type RegistrySink struct {
	Dir    string
	Remote bool
	Runner CommandRunner
}

// Set assigns value to name via xmlchange NAME=VALUE.
func (s *RegistrySink) Set(ctx context.Context, name, value string) error {
	if s.Runner == nil {
		return s.noRunner(name)
	}
	if _, err := s.Runner.Run(ctx, s.Dir, SetCommand, name+"="+value); err != nil {
		return engine.NewError(engine.ErrorKindSinkFailure,
			fmt.Sprintf("xmlchange %s failed", name), err).WithParameter(name)
	}
	return nil
}

// Query returns the current value of name via xmlquery NAME --value.
func (s *RegistrySink) Query(ctx context.Context, name string) (string, error) {
	if s.Runner == nil {
		return "", s.noRunner(name)
	}
	out, err := s.Runner.Run(ctx, s.Dir, QueryCommand, name, "--value")
	if err != nil {
		return "", engine.NewError(engine.ErrorKindSinkFailure,
			fmt.Sprintf("xmlquery %s failed", name), err).WithParameter(name)
	}
	return strings.TrimSpace(out), nil
}

// Remove always fails; registry variables cannot be unset.
func (s *RegistrySink) Remove(_ context.Context, name string) error {
	return engine.NewError(engine.ErrorKindUnsupportedOperation,
		"registry variables cannot be removed", nil).WithParameter(name)
}

func (s *RegistrySink) noRunner(name string) error {
	where := "local"
	if s.Remote {
		where = "remote"
	}
	return engine.NewError(engine.ErrorKindSinkFailure,
		fmt.Sprintf("no %s command runner configured", where), nil).WithParameter(name)
}
