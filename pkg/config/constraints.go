package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/caseforge/caseforge/pkg/engine"
)

// Constraint is a CEL expression over the component's inputs. Inputs are
// exposed as the map variable `input`.
type Constraint struct {
	Expr string `yaml:"expr" validate:"required"`

	// Message replaces the generated violation message.
	Message string `yaml:"message,omitempty"`

	// Parameter names the input reported with a violation.
	Parameter string `yaml:"parameter,omitempty"`
}

type compiledConstraint struct {
	Constraint
	prg cel.Program
}

// ConstraintSet is a compiled list of constraints for one component.
type ConstraintSet struct {
	component string
	items     []compiledConstraint
}

func newConstraintEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return env, nil
}

// CompileConstraints compiles every expression up front so a broken
// definition fails at load time.
func CompileConstraints(component string, constraints []Constraint) (*ConstraintSet, error) {
	set := &ConstraintSet{component: component}
	if len(constraints) == 0 {
		return set, nil
	}

	env, err := newConstraintEnv()
	if err != nil {
		return nil, err
	}

	for _, c := range constraints {
		ast, issues := env.Compile(c.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("component %s: CEL compile error in %q: %w", component, c.Expr, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("component %s: CEL program error in %q: %w", component, c.Expr, err)
		}
		set.items = append(set.items, compiledConstraint{Constraint: c, prg: prg})
	}
	return set, nil
}

// Len returns the number of constraints.
func (s *ConstraintSet) Len() int {
	return len(s.items)
}

// Check evaluates every constraint against inputs and returns the first
// violation as a ValidationFailed error.
func (s *ConstraintSet) Check(inputs engine.InputBag) error {
	if len(s.items) == 0 {
		return nil
	}

	activation := map[string]any{"input": celValue(map[string]any(inputs))}
	for _, c := range s.items {
		out, _, err := c.prg.Eval(activation)
		if err != nil {
			return engine.NewError(engine.ErrorKindValidationFailed,
				fmt.Sprintf("constraint %q could not be evaluated", c.Expr), err).
				WithComponent(s.component).WithParameter(c.Parameter)
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return engine.NewError(engine.ErrorKindValidationFailed,
				fmt.Sprintf("constraint %q did not return a boolean", c.Expr), nil).
				WithComponent(s.component).WithParameter(c.Parameter)
		}
		if !ok {
			msg := c.Message
			if msg == "" {
				msg = fmt.Sprintf("constraint %q violated", c.Expr)
			}
			return engine.NewError(engine.ErrorKindValidationFailed, msg, nil).
				WithComponent(s.component).WithParameter(c.Parameter)
		}
	}
	return nil
}

// celValue normalises decoder output to the native types CEL adapts.
func celValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = celValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = celValue(item)
		}
		return out
	default:
		return v
	}
}
