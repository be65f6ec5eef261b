package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// DefaultStarlarkTimeout bounds a single compute script.
const DefaultStarlarkTimeout = 5 * time.Second

// StarlarkResult is one compute script run. Error repeats the returned error
// so a result can be logged on its own.
type StarlarkResult struct {
	Output        map[string]any `json:"output,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Error         string         `json:"error,omitempty"`
}

// StarlarkEvaluator runs declarative component compute scripts.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator returns an evaluator bounding each script by timeout,
// or DefaultStarlarkTimeout when zero.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout <= 0 {
		timeout = DefaultStarlarkTimeout
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate runs script with input bound as predeclared names and returns its
// public globals. Names starting with an underscore and functions are
// dropped. The thread is cancelled when ctx ends or the timeout passes.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]any) (*StarlarkResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return &StarlarkResult{Error: err.Error()}, fmt.Errorf("starlark execution cancelled: %w", err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "caseforge",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	stop := context.AfterFunc(evalCtx, func() { thread.Cancel(evalCtx.Err().Error()) })
	defer stop()

	output, err := runScript(thread, script, input)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = fmt.Errorf("starlark execution cancelled: %w", ctx.Err())
		case errors.Is(evalCtx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("starlark execution timeout after %v", se.timeout)
		}
		return &StarlarkResult{ExecutionTime: time.Since(start), Error: err.Error()}, err
	}
	return &StarlarkResult{Output: output, ExecutionTime: time.Since(start)}, nil
}

var starlarkBuiltins = starlark.StringDict{
	"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	"math":   starlarkmath.Module,
	"quote":  starlark.NewBuiltin("quote", builtinQuote),
	"join":   starlark.NewBuiltin("join", builtinJoin),
}

func runScript(thread *starlark.Thread, script string, input map[string]any) (map[string]any, error) {
	predeclared := make(starlark.StringDict, len(starlarkBuiltins)+len(input))
	for k, v := range starlarkBuiltins {
		predeclared[k] = v
	}
	for key, val := range input {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	globals, err := starlark.ExecFile(thread, "compute.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]any, len(globals))
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		v, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = v
	}
	return output, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val)
		}
		return starlark.Float(f), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			starlarkVal, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

// builtinQuote renders a string as a namelist string literal.
func builtinQuote(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
		return nil, err
	}
	return starlark.String(`"` + strings.ReplaceAll(s, `"`, `'`) + `"`), nil
}

// builtinJoin renders a list as a comma separated namelist array.
func builtinJoin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var items starlark.Iterable
	sep := ", "
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "items", &items, "sep?", &sep); err != nil {
		return nil, err
	}

	iter := items.Iterate()
	defer iter.Done()

	var parts []string
	var x starlark.Value
	for iter.Next(&x) {
		if s, ok := x.(starlark.String); ok {
			parts = append(parts, string(s))
			continue
		}
		parts = append(parts, x.String())
	}
	return starlark.String(strings.Join(parts, sep)), nil
}
