package sinks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CommandRunner runs a helper command in a directory and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// Runners pairs the local and remote command runners available to a sink.
type Runners struct {
	Local  CommandRunner
	Remote CommandRunner
}

// For returns the runner for the requested routing, or nil if none is set.
func (r Runners) For(remote bool) CommandRunner {
	if remote {
		return r.Remote
	}
	return r.Local
}

// ExecRunner runs commands as local subprocesses.
type ExecRunner struct {
	// Env holds extra environment variables appended to the process
	// environment.
	Env map[string]string
}

// Run executes name with args in dir.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	if len(r.Env) > 0 {
		env := cmd.Environ()
		for k, v := range r.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	log.Debug().
		Str("command", name).
		Strs("args", args).
		Str("dir", dir).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("command completed")

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), fmt.Errorf("%s exited with code %d: %s",
				name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return stdout.String(), nil
}

// RemoteExecutor runs a shell command line on a remote host. It is satisfied
// by *ssh.SSHClient.
type RemoteExecutor interface {
	ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error)
}

// SSHRunner routes commands through a RemoteExecutor.
type SSHRunner struct {
	Executor RemoteExecutor

	// Dir overrides the working directory passed to Run, for hosts where the
	// case lives under a different path.
	Dir string
}

// Run executes name with args in dir on the remote host.
func (r *SSHRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	if r.Executor == nil {
		return "", fmt.Errorf("ssh runner has no executor")
	}
	if r.Dir != "" {
		dir = r.Dir
	}

	line := "cd " + shellQuote(dir) + " && " + shellJoin(append([]string{name}, args...))
	stdout, stderr, err := r.Executor.ExecuteCommand(ctx, line)
	if err != nil {
		if stderr != "" {
			return stdout, fmt.Errorf("remote %s failed: %w (stderr: %s)", name, err, stderr)
		}
		return stdout, fmt.Errorf("remote %s failed: %w", name, err)
	}
	return stdout, nil
}

func shellJoin(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		if w != "" && !strings.ContainsAny(w, " \t\n'\"\\$`|&;<>()*?[]{}~#!") {
			quoted[i] = w
		} else {
			quoted[i] = shellQuote(w)
		}
	}
	return strings.Join(quoted, " ")
}

// shellQuote wraps a string in single quotes for safe use in shell commands.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
