package policy

import (
	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/registry"
)

// NewInput builds the policy input for a resolved plan.
func NewInput(fd engine.FeatureDescriptor, active *registry.Active, operation string) *Input {
	in := &Input{
		FeatureDescriptor: fd.String(),
		Components:        []ComponentInput{},
		Skipped:           []string{},
		Operation:         operation,
	}
	if active == nil {
		return in
	}
	for _, inst := range active.Instances() {
		in.Components = append(in.Components, ComponentInput{
			Name:    inst.Name(),
			Inputs:  inst.Inputs(),
			Outputs: inst.Descriptor().OutputNames(),
		})
	}
	for _, s := range active.Skipped {
		in.Skipped = append(in.Skipped, s.Component)
	}
	return in
}
