package sinks

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Call records one FakeRunner invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// FakeRunner is an in-process CommandRunner that emulates xmlchange and
// xmlquery against an in-memory variable table.
type FakeRunner struct {
	mu     sync.Mutex
	values map[string]string
	calls  []Call

	// Fail maps a variable name to an error returned by any call touching it.
	Fail map[string]error
}

// NewFakeRunner creates a FakeRunner seeded with initial values.
func NewFakeRunner(initial map[string]string) *FakeRunner {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &FakeRunner{values: values, Fail: make(map[string]error)}
}

// Run implements CommandRunner.
func (f *FakeRunner) Run(_ context.Context, dir, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Dir: dir, Name: name, Args: append([]string(nil), args...)})

	switch path.Base(name) {
	case "xmlchange":
		if len(args) != 1 {
			return "", fmt.Errorf("xmlchange: expected NAME=VALUE, got %v", args)
		}
		key, value, ok := strings.Cut(args[0], "=")
		if !ok || key == "" {
			return "", fmt.Errorf("xmlchange: malformed assignment %q", args[0])
		}
		if err := f.Fail[key]; err != nil {
			return "", err
		}
		f.values[key] = value
		return "", nil

	case "xmlquery":
		if len(args) != 2 || args[1] != "--value" {
			return "", fmt.Errorf("xmlquery: expected NAME --value, got %v", args)
		}
		if err := f.Fail[args[0]]; err != nil {
			return "", err
		}
		value, ok := f.values[args[0]]
		if !ok {
			return "", fmt.Errorf("ERROR: No results found for variable %s", args[0])
		}
		return value + "\n", nil

	default:
		return "", fmt.Errorf("%s: command not found", name)
	}
}

// Value returns the stored value for name.
func (f *FakeRunner) Value(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[name]
	return v, ok
}

// Calls returns a copy of every recorded invocation.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CountSets returns how many xmlchange calls targeted name.
func (f *FakeRunner) CountSets(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if path.Base(c.Name) == "xmlchange" && len(c.Args) == 1 && strings.HasPrefix(c.Args[0], name+"=") {
			n++
		}
	}
	return n
}
