// Package config loads everything the CLI reads from disk: the application
// configuration file, input bag files and declarative component definitions.
//
// # Application configuration
//
// AppConfig is decoded from caseforge.yaml with unknown keys rejected and
// validated with struct tags. Relative paths are resolved against the file's
// directory.
//
// # Input bags
//
// InputLoader decodes CUE, YAML and JSON (comments and trailing commas
// allowed) files into an engine.InputBag. Later files override earlier ones.
// YAML timestamps are returned as the date text so that every format yields
// the same value for 2000-01-01.
//
// # Declarative components
//
// A Definition declares a component in YAML. CEL constraints over the map
// variable input become the descriptor's Validate hook; the Starlark compute
// script sees each input as a predeclared name and assigns outputs as
// globals:
//
//	name: mom_diffusivity
//	allowed_for: [MOM6]
//	inputs:
//	  - name: kappa
//	outputs:
//	  - name: KHTH
//	    sink: {kind: text, module: mom}
//	constraints:
//	  - expr: input.kappa > 0
//	compute: |
//	  KHTH = kappa * 2
//
// Scripts run with a timeout, print suppressed, and the math module plus the
// quote and join helpers predeclared. Globals starting with an underscore and
// names that are not declared outputs are dropped.
package config
