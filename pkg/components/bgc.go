package components

import (
	"context"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

// BGC is mandatory whenever the MARBL biogeochemistry package is enabled.
func BGC(reg component.SinkBinding) *component.Descriptor {
	return &component.Descriptor{
		Name:        "bgc",
		Description: "MARBL biogeochemistry initial conditions",
		RequiredFor: []string{"MARBL"},
		AllowedFor:  []string{"MARBL"},
		Inputs: []component.InputParam{
			{Name: "bgc_ic_filepath", IsFile: true, Comment: "tracer initial conditions"},
		},
		Outputs: []component.OutputParam{
			{Name: "MAX_FIELDS", Sink: component.Text("mom")},
			{Name: "MARBL_TRACERS_IC_FILE", IsFile: true, Sink: component.Text("mom")},
			{Name: "MARBL_CONFIG", Sink: reg},
		},
		Compute: func(_ context.Context, inst *component.Instance, _ component.Env) (map[string]engine.Value, error) {
			ic, err := absPath(inst, "bgc_ic_filepath")
			if err != nil {
				return nil, err
			}
			return map[string]engine.Value{
				"MAX_FIELDS":            200,
				"MARBL_TRACERS_IC_FILE": quoted(ic),
				"MARBL_CONFIG":          "latest",
			}, nil
		},
	}
}

// BGCRiverNutrients reads river nutrient fluxes. It needs both MARBL and a
// data runoff model.
func BGCRiverNutrients() *component.Descriptor {
	return &component.Descriptor{
		Name:        "bgc_river_nutrients",
		Description: "river nutrient fluxes for MARBL",
		AllowedFor:  []string{"MARBL", "DROF"},
		Inputs: []component.InputParam{
			{Name: "river_nutrients_filepath", IsFile: true},
		},
		Outputs: []component.OutputParam{
			{Name: "READ_RIV_FLUXES", Sink: component.Text("mom")},
			{Name: "RIV_FLUX_FILE", IsFile: true, Sink: component.Text("mom")},
		},
		Compute: func(_ context.Context, inst *component.Instance, _ component.Env) (map[string]engine.Value, error) {
			path, err := absPath(inst, "river_nutrients_filepath")
			if err != nil {
				return nil, err
			}
			return map[string]engine.Value{
				"READ_RIV_FLUXES": true,
				"RIV_FLUX_FILE":   quoted(path),
			}, nil
		},
	}
}

// Chlorophyll prescribes shortwave penetration from a chlorophyll climatology.
// MARBL computes chlorophyll itself, so the two are exclusive.
func Chlorophyll() *component.Descriptor {
	return &component.Descriptor{
		Name:         "chlorophyll",
		Description:  "chlorophyll climatology for shortwave penetration",
		AllowedFor:   []string{"MOM6"},
		ForbiddenFor: []string{"MARBL"},
		Inputs: []component.InputParam{
			{Name: "chl_filepath", IsFile: true},
			{Name: "chl_variable", Comment: "variable name inside the file"},
		},
		Outputs: []component.OutputParam{
			{Name: "CHL_FROM_FILE", Sink: component.Text("mom")},
			{Name: "CHL_FILE", IsFile: true, Sink: component.Text("mom")},
			{Name: "CHL_VARNAME", Sink: component.Text("mom")},
			{Name: "VAR_PEN_SW", Sink: component.Text("mom")},
			{Name: "PEN_SW_NBANDS", Sink: component.Text("mom")},
		},
		Validate: func(in engine.InputBag) error {
			if v, _ := in["chl_variable"].(string); v == "" {
				return invalid("chlorophyll", "chl_variable", "chl_variable must be set together with chl_filepath")
			}
			return nil
		},
		Compute: func(_ context.Context, inst *component.Instance, _ component.Env) (map[string]engine.Value, error) {
			path, err := absPath(inst, "chl_filepath")
			if err != nil {
				return nil, err
			}
			variable, err := inst.InputString("chl_variable")
			if err != nil {
				return nil, err
			}
			return map[string]engine.Value{
				"CHL_FROM_FILE": true,
				"CHL_FILE":      quoted(path),
				"CHL_VARNAME":   quoted(variable),
				"VAR_PEN_SW":    true,
				"PEN_SW_NBANDS": 3,
			}, nil
		},
	}
}
