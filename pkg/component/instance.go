package component

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/sinks"
)

// State is the lifecycle state of an instance.
type State string

const (
	// StateBound holds validated inputs and no outputs.
	StateBound State = "bound"

	// StateConfigured means Configure wrote every output to its sink.
	StateConfigured State = "configured"

	// StateInspected means outputs were read back from sinks.
	StateInspected State = "inspected"

	// StateRestored means the instance was rebuilt from a manifest entry.
	StateRestored State = "restored"

	// StateSerialized means the instance has been written to a manifest.
	StateSerialized State = "serialized"
)

// Instance is one activation of a descriptor with bound values.
type Instance struct {
	desc    *Descriptor
	inputs  map[string]engine.Value
	outputs map[string]engine.Value
	state   State
}

// Descriptor returns the descriptor the instance was built from.
func (i *Instance) Descriptor() *Descriptor { return i.desc }

// Name returns the lower-cased component name.
func (i *Instance) Name() string { return i.desc.Key() }

// State returns the current lifecycle state.
func (i *Instance) State() State { return i.state }

// GetInput returns a declared input value.
func (i *Instance) GetInput(name string) (engine.Value, error) {
	v, ok := i.inputs[name]
	if !ok {
		return nil, engine.NewError(engine.ErrorKindValidationFailed,
			fmt.Sprintf("unknown input %s", name), nil).WithComponent(i.desc.Name).WithParameter(name)
	}
	return v, nil
}

// GetOutput returns a declared output value. Outputs are empty until the
// instance is configured, inspected or restored.
func (i *Instance) GetOutput(name string) (engine.Value, error) {
	v, ok := i.outputs[name]
	if !ok {
		return nil, engine.NewError(engine.ErrorKindValidationFailed,
			fmt.Sprintf("output %s has no value", name), nil).WithComponent(i.desc.Name).WithParameter(name)
	}
	return v, nil
}

// Inputs returns a copy of the bound inputs.
func (i *Instance) Inputs() map[string]engine.Value {
	return copyValues(i.inputs)
}

// Outputs returns a copy of the output values.
func (i *Instance) Outputs() map[string]engine.Value {
	return copyValues(i.outputs)
}

// Configure computes every declared output and writes each one to its sink
// exactly once. Output values are recorded as the text written.
func (i *Instance) Configure(ctx context.Context, env Env) error {
	if i.state != StateBound {
		return engine.NewError(engine.ErrorKindInvalidState,
			fmt.Sprintf("cannot configure an instance in state %s", i.state), nil).WithComponent(i.desc.Name)
	}
	if len(i.desc.Outputs) == 0 {
		i.state = StateConfigured
		return nil
	}

	computed, err := i.desc.Compute(ctx, i, env)
	if err != nil {
		var ce *engine.ConfigError
		if errors.As(err, &ce) {
			return withComponent(err, i.desc.Name)
		}
		return engine.NewError(engine.ErrorKindValidationFailed, "compute failed", err).WithComponent(i.desc.Name)
	}

	if err := i.checkComputed(computed); err != nil {
		return err
	}

	for _, o := range i.desc.Outputs {
		value := sinks.FormatValue(computed[o.Name])
		if err := i.write(ctx, env, o, value); err != nil {
			return withComponent(err, i.desc.Name)
		}
		i.outputs[o.Name] = value
	}

	i.state = StateConfigured
	return nil
}

func (i *Instance) checkComputed(computed map[string]engine.Value) error {
	declared := make(map[string]bool, len(i.desc.Outputs))
	var missing []string
	for _, o := range i.desc.Outputs {
		declared[o.Name] = true
		if v, ok := computed[o.Name]; !ok || v == nil {
			missing = append(missing, o.Name)
		}
	}
	if len(missing) > 0 {
		return engine.NewError(engine.ErrorKindValidationFailed, "compute did not produce every output", nil).
			WithComponent(i.desc.Name).WithMissing(i.desc.Name, missing)
	}

	var extra []string
	for k := range computed {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		return engine.NewError(engine.ErrorKindValidationFailed, "compute produced undeclared outputs", nil).
			WithComponent(i.desc.Name).WithMissing(i.desc.Name, extra)
	}
	return nil
}

func (i *Instance) write(ctx context.Context, env Env, o OutputParam, value string) error {
	switch o.Sink.Kind {
	case SinkText:
		return env.textSink(o.Sink.Module).Append(i.desc.TagFor(o), []sinks.Entry{{Name: o.Name, Value: value}})
	case SinkRegistry:
		return env.registrySink(o.Sink.Remote).Set(ctx, o.Name, value)
	default:
		return i.desc.invalid(fmt.Sprintf("output %s: unknown sink kind %q", o.Name, o.Sink.Kind))
	}
}

// Serialize snapshots inputs and outputs into a manifest entry.
func (i *Instance) Serialize() engine.ManifestEntry {
	switch i.state {
	case StateConfigured, StateInspected, StateRestored:
		i.state = StateSerialized
	}
	return engine.ManifestEntry{
		Name:    i.desc.Key(),
		Inputs:  copyValues(i.inputs),
		Outputs: copyValues(i.outputs),
	}
}

// OutputFilepaths returns the file-valued outputs whose resolved path exists.
// Relative values are joined to baseDir.
func (i *Instance) OutputFilepaths(baseDir string) []string {
	var paths []string
	for _, o := range i.desc.Outputs {
		if !o.IsFile {
			continue
		}
		s, ok := i.outputs[o.Name].(string)
		if !ok {
			continue
		}
		s = strings.Trim(strings.TrimSpace(s), `"'`)
		if s == "" {
			continue
		}
		if !filepath.IsAbs(s) {
			s = filepath.Join(baseDir, s)
		}
		if _, err := os.Stat(s); err == nil {
			paths = append(paths, s)
		}
	}
	sort.Strings(paths)
	return paths
}

// Equal reports whether a and b come from the same descriptor and render
// every declared output identically. Inputs are ignored.
func Equal(a, b *Instance) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.desc != b.desc && a.desc.Key() != b.desc.Key() {
		return false
	}
	for _, o := range a.desc.Outputs {
		if fmt.Sprint(a.outputs[o.Name]) != fmt.Sprint(b.outputs[o.Name]) {
			return false
		}
	}
	return true
}

// ChangedOutputs lists the declared outputs that render differently in a and
// b. Both must come from the same descriptor.
func ChangedOutputs(a, b *Instance) []string {
	var changed []string
	for _, o := range a.desc.Outputs {
		if fmt.Sprint(a.outputs[o.Name]) != fmt.Sprint(b.outputs[o.Name]) {
			changed = append(changed, o.Name)
		}
	}
	return changed
}

func copyValues(in map[string]engine.Value) map[string]engine.Value {
	out := make(map[string]engine.Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
