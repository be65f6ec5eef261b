package component

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/caseforge/caseforge/pkg/engine"
)

// ComputeFunc derives every declared output value from a bound instance.
type ComputeFunc func(ctx context.Context, inst *Instance, env Env) (map[string]engine.Value, error)

// ValidateFunc checks cross-field constraints on a complete input bag.
type ValidateFunc func(inputs engine.InputBag) error

// Descriptor is the static description of a capability component.
type Descriptor struct {
	// Name is unique across a registry, compared case-insensitively.
	Name string

	// Description is shown by the CLI.
	Description string

	// RequiredFor makes the component mandatory when any token is present.
	RequiredFor []string

	// AllowedFor makes the component eligible only when every token is
	// present. Empty means unrestricted.
	AllowedFor []string

	// ForbiddenFor makes the component ineligible when any token is present.
	ForbiddenFor []string

	Inputs  []InputParam
	Outputs []OutputParam

	// Compute produces output values. Required when Outputs is non-empty.
	Compute ComputeFunc

	// Validate is an optional cross-field check run by New.
	Validate ValidateFunc
}

// Key returns the lower-cased name used for registry and manifest keys.
func (d *Descriptor) Key() string {
	return strings.ToLower(d.Name)
}

// IsRequired reports whether any RequiredFor token is present in fd.
func (d *Descriptor) IsRequired(fd engine.FeatureDescriptor) bool {
	return fd.HasAny(d.RequiredFor)
}

// IsEligible reports whether every AllowedFor token is present and no
// ForbiddenFor token is.
func (d *Descriptor) IsEligible(fd engine.FeatureDescriptor) bool {
	return fd.HasAll(d.AllowedFor) && !fd.HasAny(d.ForbiddenFor)
}

// InputNames returns declared input names in declaration order.
func (d *Descriptor) InputNames() []string {
	names := make([]string, len(d.Inputs))
	for i, p := range d.Inputs {
		names[i] = p.Name
	}
	return names
}

// OutputNames returns declared output names in declaration order.
func (d *Descriptor) OutputNames() []string {
	names := make([]string, len(d.Outputs))
	for i, p := range d.Outputs {
		names[i] = p.Name
	}
	return names
}

// MissingInputs returns the declared input names absent from bag.
func (d *Descriptor) MissingInputs(bag engine.InputBag) []string {
	var missing []string
	for _, p := range d.Inputs {
		if !bag.Has(p.Name) {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// modulePattern keeps user_nl_<module> inside the case directory.
var modulePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// HasTextOutput reports whether any output is written to a text sink.
func (d *Descriptor) HasTextOutput() bool {
	for _, o := range d.Outputs {
		if o.Sink.Kind == SinkText {
			return true
		}
	}
	return false
}

// TagFor returns the text sink block tag for output o.
func (d *Descriptor) TagFor(o OutputParam) string {
	if o.Sink.Tag != "" {
		return o.Sink.Tag
	}
	return d.Key() + ": " + o.Name
}

// Check verifies the descriptor is well formed.
func (d *Descriptor) Check() error {
	if strings.TrimSpace(d.Name) == "" {
		return engine.NewError(engine.ErrorKindValidationFailed, "component name is required", nil)
	}
	if !namePattern.MatchString(d.Name) {
		return d.invalid(fmt.Sprintf("component name %q may only contain letters, digits and _.:-", d.Name))
	}

	seen := make(map[string]bool)
	for _, p := range d.Inputs {
		if p.Name == "" {
			return d.invalid("input with empty name")
		}
		if seen[p.Name] {
			return d.invalid(fmt.Sprintf("duplicate parameter %s", p.Name))
		}
		seen[p.Name] = true
	}

	tags := make(map[string]bool)
	for _, o := range d.Outputs {
		if o.Name == "" {
			return d.invalid("output with empty name")
		}
		if seen[o.Name] {
			return d.invalid(fmt.Sprintf("duplicate parameter %s", o.Name))
		}
		seen[o.Name] = true

		switch o.Sink.Kind {
		case SinkText:
			if o.Sink.Module == "" {
				return d.invalid(fmt.Sprintf("output %s: text sink requires a module", o.Name))
			}
			if !modulePattern.MatchString(o.Sink.Module) || strings.Contains(o.Sink.Module, "..") {
				return d.invalid(fmt.Sprintf("output %s: text sink module %q must be a plain file name suffix", o.Name, o.Sink.Module))
			}
			key := o.Sink.Module + "\x00" + d.TagFor(o)
			if tags[key] {
				return d.invalid(fmt.Sprintf("output %s: tag %q already used in user_nl_%s", o.Name, d.TagFor(o), o.Sink.Module))
			}
			tags[key] = true
		case SinkRegistry:
		default:
			return d.invalid(fmt.Sprintf("output %s: unknown sink kind %q", o.Name, o.Sink.Kind))
		}
	}

	if len(d.Outputs) > 0 && d.Compute == nil {
		return d.invalid("components with outputs need a compute function")
	}
	return nil
}

func (d *Descriptor) invalid(msg string) error {
	return engine.NewError(engine.ErrorKindValidationFailed, msg, nil).WithComponent(d.Name)
}

// New binds inputs to a fresh instance. The bag must hold exactly the
// declared input names.
func (d *Descriptor) New(inputs engine.InputBag) (*Instance, error) {
	declared := make(map[string]bool, len(d.Inputs))
	for _, p := range d.Inputs {
		declared[p.Name] = true
	}

	if missing := d.MissingInputs(inputs); len(missing) > 0 {
		return nil, engine.NewError(engine.ErrorKindValidationFailed, "missing inputs", nil).
			WithComponent(d.Name).WithMissing(d.Name, missing)
	}

	var extra []string
	for _, k := range inputs.Keys() {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		return nil, engine.NewError(engine.ErrorKindUnexpectedInput, "undeclared inputs", nil).
			WithComponent(d.Name).WithMissing(d.Name, extra)
	}

	for _, p := range d.Inputs {
		if !p.IsFile {
			continue
		}
		if err := checkFile(inputs[p.Name]); err != nil {
			return nil, err.WithComponent(d.Name).WithParameter(p.Name)
		}
	}

	if d.Validate != nil {
		if err := d.Validate(inputs); err != nil {
			var ce *engine.ConfigError
			if errors.As(err, &ce) {
				if ce.Component == "" {
					ce.WithComponent(d.Name)
				}
				return nil, ce
			}
			return nil, engine.NewError(engine.ErrorKindValidationFailed, "constraint violated", err).WithComponent(d.Name)
		}
	}

	values := make(map[string]engine.Value, len(d.Inputs))
	for _, p := range d.Inputs {
		values[p.Name] = inputs[p.Name]
	}
	return &Instance{desc: d, inputs: values, outputs: map[string]engine.Value{}, state: StateBound}, nil
}

func checkFile(v engine.Value) *engine.ConfigError {
	p, ok := v.(string)
	if !ok || p == "" {
		return engine.NewError(engine.ErrorKindValidationFailed,
			fmt.Sprintf("file input must be a non-empty path, got %T", v), nil)
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine.NewError(engine.ErrorKindFileNotFound, fmt.Sprintf("file %s does not exist", p), err)
		}
		return engine.NewError(engine.ErrorKindValidationFailed, fmt.Sprintf("cannot stat %s", p), err)
	}
	return nil
}

// Inspect builds an instance by reading every output back from its sink.
// Inputs are placeholders and are never validated.
func (d *Descriptor) Inspect(ctx context.Context, env Env) (*Instance, error) {
	inputs := make(map[string]engine.Value, len(d.Inputs))
	for _, p := range d.Inputs {
		inputs[p.Name] = nil
	}

	outputs := make(map[string]engine.Value, len(d.Outputs))
	for _, o := range d.Outputs {
		var (
			v   string
			err error
		)
		switch o.Sink.Kind {
		case SinkText:
			v, err = env.textSink(o.Sink.Module).Read(o.Name)
		case SinkRegistry:
			v, err = env.registrySink(o.Sink.Remote).Query(ctx, o.Name)
		default:
			err = d.invalid(fmt.Sprintf("output %s: unknown sink kind %q", o.Name, o.Sink.Kind))
		}
		if err != nil {
			return nil, withComponent(err, d.Name)
		}
		outputs[o.Name] = v
	}

	return &Instance{desc: d, inputs: inputs, outputs: outputs, state: StateInspected}, nil
}

// Deserialize rebuilds an instance from a manifest entry without touching
// any sink.
func Deserialize(d *Descriptor, entry engine.ManifestEntry) (*Instance, error) {
	var missing []string
	inputs := make(map[string]engine.Value, len(d.Inputs))
	for _, p := range d.Inputs {
		v, ok := entry.Inputs[p.Name]
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		inputs[p.Name] = v
	}
	outputs := make(map[string]engine.Value, len(d.Outputs))
	for _, o := range d.Outputs {
		v, ok := entry.Outputs[o.Name]
		if !ok {
			missing = append(missing, o.Name)
			continue
		}
		outputs[o.Name] = v
	}
	if len(missing) > 0 {
		return nil, engine.NewError(engine.ErrorKindManifestKeyMissing, "manifest entry is incomplete", nil).
			WithComponent(d.Name).WithMissing(d.Name, missing)
	}
	return &Instance{desc: d, inputs: inputs, outputs: outputs, state: StateRestored}, nil
}

func withComponent(err error, name string) error {
	var ce *engine.ConfigError
	if errors.As(err, &ce) && ce.Component == "" {
		ce.WithComponent(name)
	}
	return err
}
