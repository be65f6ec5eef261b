// Package component defines capability components: the static Descriptor
// that declares predicates, inputs and outputs, and the Instance that carries
// bound values through the Bound, Configured or Inspected, and Serialized
// states.
package component
