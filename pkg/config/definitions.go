package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

// Definition is a component declared in YAML. Its outputs are computed by a
// Starlark script that sees every input as a predeclared name and assigns
// each output as a global.
//
//	name: mom_diffusivity
//	allowed_for: [MOM6]
//	inputs:
//	  - name: kappa
//	outputs:
//	  - name: KHTH
//	    sink: {kind: text, module: mom}
//	constraints:
//	  - expr: input.kappa > 0
//	    message: kappa must be positive
//	compute: |
//	  KHTH = kappa * 2
type Definition struct {
	Name         string                  `yaml:"name" validate:"required"`
	Description  string                  `yaml:"description"`
	RequiredFor  []string                `yaml:"required_for" validate:"dive,required"`
	AllowedFor   []string                `yaml:"allowed_for" validate:"dive,required"`
	ForbiddenFor []string                `yaml:"forbidden_for" validate:"dive,required"`
	Inputs       []component.InputParam  `yaml:"inputs" validate:"dive"`
	Outputs      []component.OutputParam `yaml:"outputs" validate:"dive"`
	Constraints  []Constraint            `yaml:"constraints" validate:"dive"`
	Compute      string                  `yaml:"compute" validate:"required_with=Outputs"`

	// Source is the file the definition was read from.
	Source string `yaml:"-"`
}

// DefinitionLoader reads definition files and compiles them to descriptors.
type DefinitionLoader struct {
	starlark *StarlarkEvaluator
}

// NewDefinitionLoader creates a loader whose compute scripts run under eval.
// A nil eval uses the default timeout.
func NewDefinitionLoader(eval *StarlarkEvaluator) *DefinitionLoader {
	if eval == nil {
		eval = NewStarlarkEvaluator(0)
	}
	return &DefinitionLoader{starlark: eval}
}

// LoadPaths reads every definition under paths. Directories contribute their
// *.yaml and *.yml files in name order.
func (l *DefinitionLoader) LoadPaths(paths ...string) ([]*component.Descriptor, error) {
	files, err := expandPaths(paths, ".yaml", ".yml")
	if err != nil {
		return nil, err
	}

	var out []*component.Descriptor
	for _, file := range files {
		defs, err := ReadDefinitionFile(file)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			d, err := l.Compile(def)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// ReadDefinitionFile decodes a file holding one or more YAML documents.
func ReadDefinitionFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range defs {
		defs[i].Source = path
	}
	return defs, nil
}

// ParseDefinitions decodes and validates a multi-document YAML stream.
func ParseDefinitions(data []byte) ([]Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var defs []Definition
	for {
		var def Definition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode definition: %w", err)
		}
		if err := validate.Struct(def); err != nil {
			return nil, fmt.Errorf("invalid definition %q: %w", def.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Compile turns a definition into a registrable descriptor.
func (l *DefinitionLoader) Compile(def Definition) (*component.Descriptor, error) {
	constraints, err := CompileConstraints(def.Name, def.Constraints)
	if err != nil {
		return nil, err
	}

	for i, o := range def.Outputs {
		if o.Sink.Kind == "" {
			def.Outputs[i].Sink.Kind = component.SinkText
		}
	}

	d := &component.Descriptor{
		Name:         def.Name,
		Description:  def.Description,
		RequiredFor:  def.RequiredFor,
		AllowedFor:   def.AllowedFor,
		ForbiddenFor: def.ForbiddenFor,
		Inputs:       def.Inputs,
		Outputs:      def.Outputs,
	}
	if constraints.Len() > 0 {
		d.Validate = constraints.Check
	}
	if strings.TrimSpace(def.Compute) != "" {
		d.Compute = l.compute(def.Name, def.Compute, d.OutputNames())
	}

	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// compute runs the script and keeps only the declared outputs, so helper
// globals never reach a sink.
func (l *DefinitionLoader) compute(name, script string, outputs []string) component.ComputeFunc {
	return func(ctx context.Context, inst *component.Instance, _ component.Env) (map[string]engine.Value, error) {
		result, err := l.starlark.Evaluate(ctx, script, inst.Inputs())
		if err != nil {
			return nil, engine.NewError(engine.ErrorKindValidationFailed, "compute script failed", err).WithComponent(name)
		}
		values := make(map[string]engine.Value, len(outputs))
		for _, o := range outputs {
			if v, ok := result.Output[o]; ok {
				values[o] = v
			}
		}
		return values, nil
	}
}

func expandPaths(paths []string, exts ...string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			for _, want := range exts {
				if ext == want {
					found = append(found, filepath.Join(p, e.Name()))
					break
				}
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
