package components

import (
	"fmt"

	"github.com/caseforge/caseforge/pkg/component"
)

// Options adjusts how built-in components bind their outputs.
type Options struct {
	// RemoteRegistry routes every registry-sink output through the remote
	// runner.
	RemoteRegistry bool
}

// Registrar is the part of the registry RegisterAll needs.
type Registrar interface {
	Register(d *component.Descriptor) error
}

// Builtins returns every built-in descriptor in application order. Case
// checks come first so later components can rely on the case directory.
func Builtins(opts Options) []*component.Descriptor {
	reg := registryBinding(opts)
	return []*component.Descriptor{
		CaseCheck(),
		DataOceanForcing(reg),
		Tides(),
		Runoff(reg),
		BGC(reg),
		BGCRiverNutrients(),
		Chlorophyll(),
		CICEIce(reg),
	}
}

// RegisterAll registers every built-in component.
func RegisterAll(r Registrar, opts Options) error {
	for _, d := range Builtins(opts) {
		if err := r.Register(d); err != nil {
			return fmt.Errorf("failed to register %s: %w", d.Name, err)
		}
	}
	return nil
}

func registryBinding(opts Options) component.SinkBinding {
	if opts.RemoteRegistry {
		return component.RemoteRegistry()
	}
	return component.Registry()
}
