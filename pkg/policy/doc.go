// Package policy gates apply with Open Policy Agent (OPA) Rego policies.
//
// Every policy module defines a deny set. The engine queries
// data.<package>.deny with an Input document describing the resolved plan:
//
//	{
//	  "feature_descriptor": "2000_DATM%JRA_SLND_SICE_MOM6_DROF%GLOFAS",
//	  "operation": "apply",
//	  "remote": false,
//	  "components": [
//	    {"name": "tides", "inputs": {...}, "outputs": ["TIDES", ...]}
//	  ],
//	  "skipped": ["runoff"]
//	}
//
// A deny element is a string or an object with message, severity and
// component keys. Elements of severity error or critical deny the plan; info
// and warning elements are reported only.
//
// Policy files are .rego or .json. A .rego file is named after its base
// name, and its leading comment block may carry a "severity: warning" line:
//
//	# Tides need an explicit reference date.
//	# severity: warning
//	package caseforge.site
//
//	import rego.v1
//
//	deny contains "tides without reference date" if {
//	    some c in input.components
//	    c.name == "tides"
//	    not c.inputs.tidal_reference_date
//	}
//
// Built-in policies cover cross-component consistency and can be disabled
// by name.
package policy
