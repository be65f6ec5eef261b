package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		riverNutrientsPolicy(),
		forcingPeriodPolicy(),
		emptyPlanPolicy(),
	}
}

// riverNutrientsPolicy rejects river nutrient fluxes without a runoff
// mapping to deliver them.
func riverNutrientsPolicy() Policy {
	return Policy{
		Name:        "river-nutrients-need-runoff",
		Description: "River nutrient fluxes require the runoff component",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package caseforge.builtin.river_nutrients

import rego.v1

active contains c.name if {
	some c in input.components
}

deny contains violation if {
	"bgc_river_nutrients" in active
	not "runoff" in active
	violation := {
		"message": "bgc_river_nutrients is active but runoff is not; river fluxes would have no mapping",
		"component": "bgc_river_nutrients",
	}
}`,
	}
}

// forcingPeriodPolicy checks the data atmosphere year range.
func forcingPeriodPolicy() Policy {
	return Policy{
		Name:        "forcing-period",
		Description: "Data ocean forcing must cover a non-empty year range",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package caseforge.builtin.forcing

import rego.v1

deny contains violation if {
	some c in input.components
	c.name == "data_ocean_forcing"
	to_number(c.inputs.forcing_start_year) > to_number(c.inputs.forcing_end_year)
	violation := {
		"message": sprintf("forcing_start_year %v is after forcing_end_year %v", [c.inputs.forcing_start_year, c.inputs.forcing_end_year]),
		"component": c.name,
	}
}`,
	}
}

// emptyPlanPolicy warns when nothing would be applied.
func emptyPlanPolicy() Policy {
	return Policy{
		Name:        "empty-plan",
		Description: "Warns when resolution activates no components",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package caseforge.builtin.empty

import rego.v1

deny contains msg if {
	count(input.components) == 0
	msg := sprintf("no components activate for %q", [input.feature_descriptor])
}`,
	}
}
