package component

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/caseforge/caseforge/pkg/engine"
)

// InputString returns input name as a string.
func (i *Instance) InputString(name string) (string, error) {
	v, err := i.GetInput(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", i.typeError(name, "string", v)
	}
	return s, nil
}

// InputFloat returns input name as a float64. Integers, json.Number and numeric
// strings are accepted.
func (i *Instance) InputFloat(name string) (float64, error) {
	v, err := i.GetInput(name)
	if err != nil {
		return 0, err
	}
	f, ok := ToFloat(v)
	if !ok {
		return 0, i.typeError(name, "number", v)
	}
	return f, nil
}

// InputBool returns input name as a bool.
func (i *Instance) InputBool(name string) (bool, error) {
	v, err := i.GetInput(name)
	if err != nil {
		return false, err
	}
	b, ok := ToBool(v)
	if !ok {
		return false, i.typeError(name, "bool", v)
	}
	return b, nil
}

func (i *Instance) typeError(name, want string, got engine.Value) error {
	return engine.NewError(engine.ErrorKindValidationFailed,
		fmt.Sprintf("input %s must be a %s, got %T", name, want, got), nil).
		WithComponent(i.desc.Name).WithParameter(name)
}

// ToFloat converts the numeric shapes produced by the YAML, JSON and CUE
// decoders to float64.
func ToFloat(v engine.Value) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToBool converts booleans and their common string spellings.
func ToBool(v engine.Value) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	default:
		return false, false
	}
}
