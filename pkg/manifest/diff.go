package manifest

import (
	"fmt"
	"sort"

	"github.com/caseforge/caseforge/pkg/engine"
)

// OutputChange is one output that differs between two snapshots.
type OutputChange struct {
	Name   string `json:"name"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Change lists the differing outputs of one component.
type Change struct {
	Component string         `json:"component"`
	Outputs   []OutputChange `json:"outputs"`
}

// Report is the result of comparing two snapshots of a case. Added and
// Removed are relative to the first snapshot.
type Report struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Changed   []Change `json:"changed"`
	Unchanged []string `json:"unchanged"`
}

// Empty reports whether the two snapshots matched.
func (r *Report) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// Compare diffs two manifests entry by entry without consulting component
// descriptors. Outputs are compared by their printed form over the union of
// output names.
func Compare(before, after *engine.Manifest) *Report {
	report := &Report{}
	for _, entry := range before.Entries() {
		other, ok := after.Get(entry.Name)
		if !ok {
			report.Removed = append(report.Removed, entry.Name)
			continue
		}
		if changes := compareOutputs(entry.Outputs, other.Outputs); len(changes) > 0 {
			report.Changed = append(report.Changed, Change{Component: entry.Name, Outputs: changes})
		} else {
			report.Unchanged = append(report.Unchanged, entry.Name)
		}
	}
	for _, entry := range after.Entries() {
		if _, ok := before.Get(entry.Name); !ok {
			report.Added = append(report.Added, entry.Name)
		}
	}
	return report
}

func compareOutputs(a, b map[string]engine.Value) []OutputChange {
	names := make(map[string]bool, len(a)+len(b))
	for k := range a {
		names[k] = true
	}
	for k := range b {
		names[k] = true
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []OutputChange
	for _, name := range sorted {
		before, after := render(a, name), render(b, name)
		if before != after {
			changes = append(changes, OutputChange{Name: name, Before: before, After: after})
		}
	}
	return changes
}

func render(values map[string]engine.Value, name string) string {
	v, ok := values[name]
	if !ok {
		return "<absent>"
	}
	return fmt.Sprint(v)
}
