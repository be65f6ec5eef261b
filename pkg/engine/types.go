package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FeatureDescriptor is the opaque token string supplied by the host build
// system (a compset or profile name). Predicates test substring containment of
// tokens; the descriptor is never parsed into a structure.
type FeatureDescriptor string

// Has reports whether token appears anywhere in the descriptor.
func (fd FeatureDescriptor) Has(token string) bool {
	return strings.Contains(string(fd), token)
}

// HasAny reports whether at least one of tokens is present.
func (fd FeatureDescriptor) HasAny(tokens []string) bool {
	for _, token := range tokens {
		if fd.Has(token) {
			return true
		}
	}
	return false
}

// HasAll reports whether every token is present. An empty list is vacuously
// satisfied.
func (fd FeatureDescriptor) HasAll(tokens []string) bool {
	for _, token := range tokens {
		if !fd.Has(token) {
			return false
		}
	}
	return true
}

// Tokens splits the descriptor on whitespace and underscores. Only used for
// display; predicates never depend on it.
func (fd FeatureDescriptor) Tokens() []string {
	return strings.FieldsFunc(string(fd), func(r rune) bool {
		return r == '_' || r == ' ' || r == '\t' || r == '\n'
	})
}

// String implements fmt.Stringer.
func (fd FeatureDescriptor) String() string {
	return string(fd)
}

// Value is an arbitrary input or output value: string, number, path, or a
// nested structure decoded from JSON/YAML/CUE.
type Value = any

// CasePrefix marks input keys derived from the host case context rather than
// supplied directly by a user. The engine treats them as ordinary names.
const CasePrefix = "case_"

// InputBag maps input-parameter names to caller supplied values. It may carry
// more keys than any single component needs.
type InputBag map[string]Value

// Has reports whether name is present.
func (b InputBag) Has(name string) bool {
	_, ok := b[name]
	return ok
}

// Keys returns the bag's keys in sorted order.
func (b InputBag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subset returns a new bag holding only the named keys that are present.
func (b InputBag) Subset(names []string) InputBag {
	out := make(InputBag, len(names))
	for _, name := range names {
		if v, ok := b[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Merge returns a new bag with other's keys layered over b's.
func (b InputBag) Merge(other InputBag) InputBag {
	out := make(InputBag, len(b)+len(other))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ManifestEntry is a pure snapshot of one component instance, independent of
// the live object graph.
type ManifestEntry struct {
	// Name is the lower-cased component name. It is the manifest key and is
	// not repeated inside the entry body.
	Name string `json:"-"`

	// Inputs are the bound input values.
	Inputs map[string]Value `json:"inputs"`

	// Outputs are the computed or inspected output values.
	Outputs map[string]Value `json:"outputs"`
}

// Manifest is an ordered log of manifest entries keyed by lower-cased
// component name. JSON encoding preserves insertion order.
type Manifest struct {
	entries []ManifestEntry
	index   map[string]int
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{index: make(map[string]int)}
}

// Add appends entry, replacing any prior entry with the same name in place.
func (m *Manifest) Add(entry ManifestEntry) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	entry.Name = strings.ToLower(entry.Name)
	if entry.Inputs == nil {
		entry.Inputs = map[string]Value{}
	}
	if entry.Outputs == nil {
		entry.Outputs = map[string]Value{}
	}
	if i, ok := m.index[entry.Name]; ok {
		m.entries[i] = entry
		return
	}
	m.index[entry.Name] = len(m.entries)
	m.entries = append(m.entries, entry)
}

// Get returns the entry for name (case-insensitive).
func (m *Manifest) Get(name string) (ManifestEntry, bool) {
	if m == nil || m.index == nil {
		return ManifestEntry{}, false
	}
	i, ok := m.index[strings.ToLower(name)]
	if !ok {
		return ManifestEntry{}, false
	}
	return m.entries[i], true
}

// Entries returns the entries in insertion order.
func (m *Manifest) Entries() []ManifestEntry {
	if m == nil {
		return nil
	}
	return append([]ManifestEntry(nil), m.entries...)
}

// Names returns entry names in insertion order.
func (m *Manifest) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// MarshalJSON writes the manifest as a single JSON object in insertion order.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range m.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Name)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entry %s: %w", entry.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a manifest object, keeping the file's key order.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("manifest must be a JSON object")
	}

	*m = Manifest{index: make(map[string]int)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read manifest key: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("manifest key must be a string")
		}
		var entry ManifestEntry
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("failed to decode entry %s: %w", name, err)
		}
		entry.Name = name
		m.Add(entry)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to close manifest object: %w", err)
	}
	return nil
}
