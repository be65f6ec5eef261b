package registry

import (
	"strings"

	"github.com/caseforge/caseforge/pkg/component"
)

// Skip records an optional component left out of a resolution or
// inspection.
type Skip struct {
	Component string   `json:"component"`
	Missing   []string `json:"missing,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// Active is an ordered set of component instances keyed by lower-cased
// name.
type Active struct {
	instances map[string]*component.Instance
	order     []string

	// Skipped lists the optional components that were left out.
	Skipped []Skip
}

func newActive() *Active {
	return &Active{instances: make(map[string]*component.Instance)}
}

func (a *Active) add(inst *component.Instance) {
	key := inst.Name()
	if _, ok := a.instances[key]; !ok {
		a.order = append(a.order, key)
	}
	a.instances[key] = inst
}

// Get returns the instance for name, or nil.
func (a *Active) Get(name string) *component.Instance {
	if a == nil {
		return nil
	}
	return a.instances[strings.ToLower(name)]
}

// Has reports whether name is active.
func (a *Active) Has(name string) bool {
	return a.Get(name) != nil
}

// Names returns active component names in registration order.
func (a *Active) Names() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.order...)
}

// Instances returns the instances in registration order.
func (a *Active) Instances() []*component.Instance {
	if a == nil {
		return nil
	}
	out := make([]*component.Instance, len(a.order))
	for i, key := range a.order {
		out[i] = a.instances[key]
	}
	return out
}

// Len returns the number of active instances.
func (a *Active) Len() int {
	if a == nil {
		return 0
	}
	return len(a.order)
}

// OutputFilepaths collects the existing file-valued outputs of every
// instance.
func (a *Active) OutputFilepaths(baseDir string) []string {
	var paths []string
	for _, inst := range a.Instances() {
		paths = append(paths, inst.OutputFilepaths(baseDir)...)
	}
	return paths
}
