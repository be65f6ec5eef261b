package components

import (
	"context"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

// CICEIce configures the sea-ice model to share the ocean grid.
func CICEIce(reg component.SinkBinding) *component.Descriptor {
	return &component.Descriptor{
		Name:         "cice_ice",
		Description:  "CICE grid and initial state",
		AllowedFor:   []string{"CICE"},
		ForbiddenFor: []string{"SICE"},
		Inputs: []component.InputParam{
			{Name: "cice_grid_filepath", IsFile: true},
			{Name: "case_ocn_nx", Comment: "ocean grid points in x"},
			{Name: "case_ocn_ny", Comment: "ocean grid points in y"},
		},
		Outputs: []component.OutputParam{
			{Name: "grid_file", IsFile: true, Sink: component.Text("cice")},
			{Name: "kmt_file", IsFile: true, Sink: component.Text("cice")},
			{Name: "grid_format", Sink: component.Text("cice")},
			{Name: "ice_ic", Sink: component.Text("cice")},
			{Name: "ICE_NX", Sink: reg},
			{Name: "ICE_NY", Sink: reg},
		},
		Validate: func(in engine.InputBag) error {
			for _, name := range []string{"case_ocn_nx", "case_ocn_ny"} {
				if n, ok := asInt(in, name); !ok || n <= 0 {
					return invalid("cice_ice", name, name+" must be a positive integer")
				}
			}
			return nil
		},
		Compute: func(_ context.Context, inst *component.Instance, _ component.Env) (map[string]engine.Value, error) {
			grid, err := absPath(inst, "cice_grid_filepath")
			if err != nil {
				return nil, err
			}
			nx, err := inst.InputFloat("case_ocn_nx")
			if err != nil {
				return nil, err
			}
			ny, err := inst.InputFloat("case_ocn_ny")
			if err != nil {
				return nil, err
			}
			literal := "'" + grid + "'"
			return map[string]engine.Value{
				"grid_file":   literal,
				"kmt_file":    literal,
				"grid_format": "'nc'",
				"ice_ic":      "'default'",
				"ICE_NX":      int(nx),
				"ICE_NY":      int(ny),
			}, nil
		},
	}
}
