package components

import (
	"context"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

// Runoff points the coupler at the runoff-to-ocean mapping file.
func Runoff(reg component.SinkBinding) *component.Descriptor {
	return &component.Descriptor{
		Name:         "runoff",
		Description:  "runoff to ocean mapping",
		AllowedFor:   []string{"DROF"},
		ForbiddenFor: []string{"SROF"},
		Inputs: []component.InputParam{
			{Name: "rof_ocn_mapping_filepath", IsFile: true, Comment: "ESMF mapping weights"},
			{Name: "rof_smoothing_scale", Comment: "e-folding scale in metres"},
		},
		Outputs: []component.OutputParam{
			{Name: "ROF2OCN_LIQ_RMAPNAME", IsFile: true, Sink: reg},
			{Name: "ROF2OCN_ICE_RMAPNAME", IsFile: true, Sink: reg},
			{Name: "RUNOFF_SMOOTHING_SCALE", Sink: component.Text("mom")},
		},
		Validate: func(in engine.InputBag) error {
			scale, ok := component.ToFloat(in["rof_smoothing_scale"])
			if !ok || scale < 0 {
				return invalid("runoff", "rof_smoothing_scale", "smoothing scale must be a non-negative number")
			}
			return nil
		},
		Compute: func(_ context.Context, inst *component.Instance, _ component.Env) (map[string]engine.Value, error) {
			mapping, err := absPath(inst, "rof_ocn_mapping_filepath")
			if err != nil {
				return nil, err
			}
			scale, err := inst.InputFloat("rof_smoothing_scale")
			if err != nil {
				return nil, err
			}
			return map[string]engine.Value{
				"ROF2OCN_LIQ_RMAPNAME":   mapping,
				"ROF2OCN_ICE_RMAPNAME":   mapping,
				"RUNOFF_SMOOTHING_SCALE": scale,
			}, nil
		},
	}
}
