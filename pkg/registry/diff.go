package registry

import (
	"fmt"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/manifest"
)

// Diff compares two instance sets by component.Equal. Added and Removed are
// relative to before.
func Diff(before, after *Active) *manifest.Report {
	report := &manifest.Report{}
	for _, a := range before.Instances() {
		b := after.Get(a.Name())
		if b == nil {
			report.Removed = append(report.Removed, a.Name())
			continue
		}
		if component.Equal(a, b) {
			report.Unchanged = append(report.Unchanged, a.Name())
			continue
		}
		change := manifest.Change{Component: a.Name()}
		for _, name := range component.ChangedOutputs(a, b) {
			prev, _ := a.GetOutput(name)
			next, _ := b.GetOutput(name)
			change.Outputs = append(change.Outputs, manifest.OutputChange{
				Name:   name,
				Before: fmt.Sprint(prev),
				After:  fmt.Sprint(next),
			})
		}
		report.Changed = append(report.Changed, change)
	}
	for _, b := range after.Instances() {
		if !before.Has(b.Name()) {
			report.Added = append(report.Added, b.Name())
		}
	}
	return report
}
