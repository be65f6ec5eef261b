package engine

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFeatureDescriptor_Predicates(t *testing.T) {
	fd := FeatureDescriptor("1850_DATM%JRA_SLND_CICE_MOM6%MARBL-BIO_DROF%JRA")

	tests := []struct {
		name   string
		check  func() bool
		expect bool
	}{
		{"has substring", func() bool { return fd.Has("MARBL") }, true},
		{"has missing token", func() bool { return fd.Has("WW3") }, false},
		{"any with one match", func() bool { return fd.HasAny([]string{"WW3", "CICE"}) }, true},
		{"any empty", func() bool { return fd.HasAny(nil) }, false},
		{"all present", func() bool { return fd.HasAll([]string{"MOM6", "DROF"}) }, true},
		{"all with one absent", func() bool { return fd.HasAll([]string{"MOM6", "WW3"}) }, false},
		{"all empty is vacuous", func() bool { return fd.HasAll(nil) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(); got != tt.expect {
				t.Errorf("Expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestInputBag_SubsetAndMerge(t *testing.T) {
	bag := InputBag{"a": 1, "b": "two", "case_root": "/tmp/case"}

	sub := bag.Subset([]string{"a", "missing"})
	if len(sub) != 1 || sub["a"] != 1 {
		t.Fatalf("Expected subset with only a, got %v", sub)
	}

	merged := bag.Merge(InputBag{"a": 5, "c": true})
	if merged["a"] != 5 || merged["c"] != true || merged["b"] != "two" {
		t.Errorf("Unexpected merge result: %v", merged)
	}
	if bag["a"] != 1 {
		t.Errorf("Expected original bag to be unchanged")
	}

	if !reflect.DeepEqual(bag.Keys(), []string{"a", "b", "case_root"}) {
		t.Errorf("Expected sorted keys, got %v", bag.Keys())
	}
}

func TestManifest_AddReplacesInPlace(t *testing.T) {
	m := NewManifest()
	m.Add(ManifestEntry{Name: "Tides", Outputs: map[string]Value{"TIDES": "True"}})
	m.Add(ManifestEntry{Name: "runoff"})
	m.Add(ManifestEntry{Name: "TIDES", Outputs: map[string]Value{"TIDES": "False"}})

	if m.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", m.Len())
	}
	if !reflect.DeepEqual(m.Names(), []string{"tides", "runoff"}) {
		t.Errorf("Expected insertion order preserved, got %v", m.Names())
	}
	entry, ok := m.Get("tides")
	if !ok || entry.Outputs["TIDES"] != "False" {
		t.Errorf("Expected replaced entry, got %+v", entry)
	}
	if entry.Inputs == nil {
		t.Errorf("Expected nil inputs to be normalised to an empty map")
	}
}

func TestManifest_JSONKeepsOrder(t *testing.T) {
	m := NewManifest()
	m.Add(ManifestEntry{Name: "zeta", Inputs: map[string]Value{"x": "1"}})
	m.Add(ManifestEntry{Name: "alpha"})

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Failed to marshal manifest: %v", err)
	}

	want := `{"zeta":{"inputs":{"x":"1"},"outputs":{}},"alpha":{"inputs":{},"outputs":{}}}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}

	var decoded Manifest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal manifest: %v", err)
	}
	if !reflect.DeepEqual(decoded.Names(), []string{"zeta", "alpha"}) {
		t.Errorf("Expected decoded order zeta, alpha, got %v", decoded.Names())
	}
}

func TestManifest_UnmarshalRejectsNonObject(t *testing.T) {
	var m Manifest
	if err := json.Unmarshal([]byte(`[1,2]`), &m); err == nil {
		t.Errorf("Expected error for array manifest")
	}
}

func TestRunStatus_Validate(t *testing.T) {
	if err := RunStatusSucceeded.Validate(); err != nil {
		t.Errorf("Expected valid status, got %v", err)
	}
	if err := RunStatus("bogus").Validate(); err == nil {
		t.Errorf("Expected error for unknown status")
	}
	if RunStatusRunning.IsTerminal() {
		t.Errorf("Expected running to be non-terminal")
	}
}
