package components

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

// quoted renders s as a namelist string literal.
func quoted(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
}

// absPath returns the absolute form of an input path.
func absPath(inst *component.Instance, name string) (string, error) {
	p, err := inst.InputString(name)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return abs, nil
}

func invalid(name, parameter, msg string) error {
	return engine.NewError(engine.ErrorKindValidationFailed, msg, nil).
		WithComponent(name).WithParameter(parameter)
}

func asInt(bag engine.InputBag, name string) (int, bool) {
	f, ok := component.ToFloat(bag[name])
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
