package components

import (
	"context"
	"strconv"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

var datmModes = map[string]string{
	"JRA":  "JRA",
	"ERA5": "ERA5",
	"CORE": "CORE2_IAF",
}

// DataOceanForcing selects the data-atmosphere product and forcing years.
func DataOceanForcing(reg component.SinkBinding) *component.Descriptor {
	return &component.Descriptor{
		Name:        "data_ocean_forcing",
		Description: "data atmosphere forcing product and years",
		AllowedFor:  []string{"DATM"},
		Inputs: []component.InputParam{
			{Name: "forcing_product", Comment: "JRA, ERA5 or CORE"},
			{Name: "forcing_start_year"},
			{Name: "forcing_end_year"},
		},
		Outputs: []component.OutputParam{
			{Name: "DATM_MODE", Comment: "data atmosphere mode", Sink: reg},
			{Name: "DATM_YR_START", Sink: reg},
			{Name: "DATM_YR_END", Sink: reg},
			{Name: "DATM_YR_ALIGN", Sink: reg},
		},
		Validate: func(in engine.InputBag) error {
			product, _ := in["forcing_product"].(string)
			if _, ok := datmModes[product]; !ok {
				return invalid("data_ocean_forcing", "forcing_product", "unknown forcing product "+strconv.Quote(product))
			}
			start, ok := asInt(in, "forcing_start_year")
			if !ok {
				return invalid("data_ocean_forcing", "forcing_start_year", "start year must be an integer")
			}
			end, ok := asInt(in, "forcing_end_year")
			if !ok {
				return invalid("data_ocean_forcing", "forcing_end_year", "end year must be an integer")
			}
			if end < start {
				return invalid("data_ocean_forcing", "forcing_end_year", "end year precedes start year")
			}
			return nil
		},
		Compute: func(_ context.Context, inst *component.Instance, _ component.Env) (map[string]engine.Value, error) {
			product, err := inst.InputString("forcing_product")
			if err != nil {
				return nil, err
			}
			start, err := inst.InputFloat("forcing_start_year")
			if err != nil {
				return nil, err
			}
			end, err := inst.InputFloat("forcing_end_year")
			if err != nil {
				return nil, err
			}
			return map[string]engine.Value{
				"DATM_MODE":     datmModes[product],
				"DATM_YR_START": int(start),
				"DATM_YR_END":   int(end),
				"DATM_YR_ALIGN": int(start),
			}, nil
		},
	}
}
