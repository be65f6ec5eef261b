// Package engine provides the shared domain types and the error taxonomy for
// the caseforge configuration engine.
//
// # Overview
//
// A model case directory is customised by a set of capability components.
// Each component declares the feature tokens it is required for, allowed for
// or forbidden for, the inputs it needs and the outputs it writes to external
// sinks. The engine resolves which components activate for a
// FeatureDescriptor and an InputBag, applies them in registration order and
// records a Manifest that can be reloaded, inspected and diffed.
//
// # Core Domain Types
//
//   - FeatureDescriptor: opaque token string, tested by substring containment
//   - InputBag: caller supplied values keyed by input name
//   - ManifestEntry: {inputs, outputs} snapshot of one component instance
//   - Manifest: ordered entries keyed by lower-cased component name
//   - RunStatus, Outcome: run history classification
//
// # Error Classification
//
// Every failure raised by the engine is a *ConfigError carrying an ErrorKind:
//
//   - missing_required_input: a mandatory component lacks inputs
//   - unexpected_input: an input bag carries undeclared keys
//   - validation_failed: invalid values or cross-field violations
//   - file_not_found: a file-valued input does not exist
//   - sink_read_not_found: a text sink has no entry during inspection
//   - unsupported_operation: the sink cannot perform the operation
//   - manifest_key_missing: a manifest entry lacks a declared parameter
//
// plus duplicate_component, unknown_component, invalid_state, policy_denied
// and sink_failure for registry and runtime conditions.
//
// Use errors.Is against the sentinel values or IsKind to branch on a kind:
//
//	if engine.IsKind(err, engine.ErrorKindMissingRequiredInput) {
//	    for component, names := range engine.MissingOf(err) {
//	        ...
//	    }
//	}
//
// # Observers
//
// ApplyObserver lets telemetry and the run store follow Resolve and Apply
// without the registry depending on them.
package engine
