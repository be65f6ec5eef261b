package component

import (
	"github.com/caseforge/caseforge/pkg/sinks"
)

// InputParam declares one input a component accepts.
type InputParam struct {
	// Name is the input bag key.
	Name string `json:"name" yaml:"name"`

	// IsFile marks path-valued inputs. Their existence is checked when the
	// instance is constructed.
	IsFile bool `json:"is_file,omitempty" yaml:"is_file,omitempty"`

	// Comment is a human-readable description.
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// SinkKind names the external store an output is written to.
type SinkKind string

const (
	// SinkText writes to a user_nl_<module> namelist override file.
	SinkText SinkKind = "text"

	// SinkRegistry writes to the case XML registry.
	SinkRegistry SinkKind = "registry"
)

// SinkBinding describes where an output goes. It is static; the concrete sink
// is built from an Env at Configure or Inspect time.
type SinkBinding struct {
	Kind SinkKind `json:"kind" yaml:"kind"`

	// Module selects the text sink file. Text sinks only.
	Module string `json:"module,omitempty" yaml:"module,omitempty"`

	// Tag overrides the block tag. Text sinks only; when empty the tag is
	// derived from the component and output names.
	Tag string `json:"tag,omitempty" yaml:"tag,omitempty"`

	// Remote routes registry calls through the remote runner. Registry sinks
	// only.
	Remote bool `json:"remote,omitempty" yaml:"remote,omitempty"`
}

// Text binds an output to the text sink of module.
func Text(module string) SinkBinding {
	return SinkBinding{Kind: SinkText, Module: module}
}

// TextTagged binds an output to the text sink of module under an explicit tag.
func TextTagged(module, tag string) SinkBinding {
	return SinkBinding{Kind: SinkText, Module: module, Tag: tag}
}

// Registry binds an output to the case registry.
func Registry() SinkBinding {
	return SinkBinding{Kind: SinkRegistry}
}

// RemoteRegistry binds an output to the case registry on the remote host.
func RemoteRegistry() SinkBinding {
	return SinkBinding{Kind: SinkRegistry, Remote: true}
}

// OutputParam declares one output a component produces.
type OutputParam struct {
	Name    string      `json:"name" yaml:"name"`
	Comment string      `json:"comment,omitempty" yaml:"comment,omitempty"`
	IsFile  bool        `json:"is_file,omitempty" yaml:"is_file,omitempty"`
	Sink    SinkBinding `json:"sink" yaml:"sink"`
}

// Env carries what a component needs to reach its sinks.
type Env struct {
	// CaseDir is the case directory holding text sink files and the registry
	// helper scripts.
	CaseDir string

	// Runners execute registry helper scripts locally or remotely.
	Runners sinks.Runners
}

func (e Env) textSink(module string) *sinks.TextSink {
	return sinks.NewTextSink(e.CaseDir, module)
}

func (e Env) registrySink(remote bool) *sinks.RegistrySink {
	return &sinks.RegistrySink{Dir: e.CaseDir, Remote: remote, Runner: e.Runners.For(remote)}
}
