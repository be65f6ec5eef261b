// Package manifest reads and writes manifest files, validates them against
// an embedded JSON schema, computes their BLAKE3 digest and compares two
// manifests entry by entry.
package manifest
