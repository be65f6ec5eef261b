// Package components contains the built-in configurators for regional ocean
// cases and the RegisterAll assembly step that adds them to a registry.
package components
