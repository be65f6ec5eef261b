package components

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

// TidalConstituents are the harmonic constituents the open boundary code
// understands.
var TidalConstituents = map[string]bool{
	"M2": true, "S2": true, "N2": true, "K2": true,
	"K1": true, "O1": true, "P1": true, "Q1": true,
	"MM": true, "MF": true,
}

var refDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Tides enables open-boundary tidal forcing from TPXO harmonics.
func Tides() *component.Descriptor {
	return &component.Descriptor{
		Name:        "tides",
		Description: "open boundary tidal forcing",
		AllowedFor:  []string{"MOM6"},
		Inputs: []component.InputParam{
			{Name: "tidal_constituents", Comment: "comma separated constituent names"},
			{Name: "tidal_reference_date", Comment: "YYYY-MM-DD"},
			{Name: "tpxo_elevation_filepath", IsFile: true},
			{Name: "tpxo_velocity_filepath", IsFile: true},
		},
		Outputs: []component.OutputParam{
			{Name: "TIDES", Comment: "enable tides", Sink: component.Text("mom")},
			{Name: "OBC_TIDE_N_CONSTITUENTS", Sink: component.Text("mom")},
			{Name: "OBC_TIDE_CONSTITUENTS", Sink: component.Text("mom")},
			{Name: "OBC_TIDE_ADD_EQ_PHASE", Sink: component.Text("mom")},
			{Name: "OBC_TIDE_ADD_NODAL", Sink: component.Text("mom")},
			{Name: "OBC_TIDE_REF_DATE", Sink: component.Text("mom")},
		},
		Validate: func(in engine.InputBag) error {
			list, _ := in["tidal_constituents"].(string)
			names := splitConstituents(list)
			if len(names) == 0 {
				return invalid("tides", "tidal_constituents", "at least one constituent is required")
			}
			for _, n := range names {
				if !TidalConstituents[n] {
					return invalid("tides", "tidal_constituents", fmt.Sprintf("unknown constituent %s", n))
				}
			}
			date, _ := in["tidal_reference_date"].(string)
			if !refDatePattern.MatchString(date) {
				return invalid("tides", "tidal_reference_date", "reference date must be YYYY-MM-DD")
			}
			return nil
		},
		Compute: func(_ context.Context, inst *component.Instance, _ component.Env) (map[string]engine.Value, error) {
			list, err := inst.InputString("tidal_constituents")
			if err != nil {
				return nil, err
			}
			date, err := inst.InputString("tidal_reference_date")
			if err != nil {
				return nil, err
			}
			names := splitConstituents(list)
			return map[string]engine.Value{
				"TIDES":                   true,
				"OBC_TIDE_N_CONSTITUENTS": len(names),
				"OBC_TIDE_CONSTITUENTS":   quoted(strings.Join(names, ", ")),
				"OBC_TIDE_ADD_EQ_PHASE":   true,
				"OBC_TIDE_ADD_NODAL":      true,
				"OBC_TIDE_REF_DATE":       strings.ReplaceAll(date, "-", ", "),
			}, nil
		},
	}
}

func splitConstituents(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
