// Package registry holds the catalog of capability components and drives
// the resolve, apply and inspect phases.
//
// Components are registered explicitly and iterated in registration order.
// Resolve selects the components that activate for a feature descriptor and
// input bag, Apply configures them in order and records a manifest, and
// InspectAll rebuilds instances from the live sinks so that Diff can compare
// them against a restored manifest.
//
// Apply never undoes the sink writes of components that completed before a
// failure.
package registry
