package registry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/manifest"
)

// Registry holds every known component descriptor and drives resolution,
// application and inspection.
type Registry struct {
	// mu protects the catalog.
	mu sync.RWMutex

	// descriptors maps lower-cased name to descriptor.
	descriptors map[string]*component.Descriptor

	// order keeps registration order for deterministic iteration.
	order []string

	env      component.Env
	logger   zerolog.Logger
	observer engine.ApplyObserver
}

// Option configures a Registry.
type Option func(*Registry)

// WithEnv sets the sink environment used by Apply and InspectAll.
func WithEnv(env component.Env) Option {
	return func(r *Registry) { r.env = env }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithObserver attaches an observer for resolve and apply callbacks.
func WithObserver(observer engine.ApplyObserver) Option {
	return func(r *Registry) { r.observer = observer }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		descriptors: make(map[string]*component.Descriptor),
		logger:      zerolog.Nop(),
		observer:    engine.NopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Env returns the sink environment.
func (r *Registry) Env() component.Env {
	return r.env
}

// Register adds a descriptor. Names are unique case-insensitively.
func (r *Registry) Register(d *component.Descriptor) error {
	if d == nil {
		return engine.NewError(engine.ErrorKindValidationFailed, "descriptor is nil", nil)
	}
	if err := d.Check(); err != nil {
		return fmt.Errorf("invalid descriptor %s: %w", d.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := d.Key()
	if _, exists := r.descriptors[key]; exists {
		return engine.NewError(engine.ErrorKindDuplicateComponent,
			fmt.Sprintf("component %s already registered", key), nil).WithComponent(d.Name)
	}

	r.descriptors[key] = d
	r.order = append(r.order, key)

	r.logger.Debug().Str("component", key).Msg("component registered")
	return nil
}

// Lookup returns the descriptor registered under name, case-insensitively.
func (r *Registry) Lookup(name string) (*component.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[strings.ToLower(name)]
	if !ok {
		return nil, engine.NewError(engine.ErrorKindUnknownComponent,
			fmt.Sprintf("component %s not found", name), nil).WithComponent(name)
	}
	return d, nil
}

// Descriptors returns every descriptor in registration order.
func (r *Registry) Descriptors() []*component.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*component.Descriptor, len(r.order))
	for i, key := range r.order {
		out[i] = r.descriptors[key]
	}
	return out
}

// FindRequired returns the descriptors mandatory for fd in registration
// order.
func (r *Registry) FindRequired(fd engine.FeatureDescriptor) []*component.Descriptor {
	var out []*component.Descriptor
	for _, d := range r.Descriptors() {
		if d.IsRequired(fd) {
			out = append(out, d)
		}
	}
	return out
}

// FindValid returns the descriptors eligible for fd in registration order.
func (r *Registry) FindValid(fd engine.FeatureDescriptor) []*component.Descriptor {
	var out []*component.Descriptor
	for _, d := range r.Descriptors() {
		if d.IsEligible(fd) {
			out = append(out, d)
		}
	}
	return out
}

// Resolve selects and instantiates the active components for fd.
//
// Every required component must have all of its inputs; otherwise a single
// missing_required_input error names each one before anything is
// instantiated. Mandatory components are not subject to the eligibility
// check. Eligible optional components with missing inputs are skipped. A
// construction failure of any selected component aborts resolution.
func (r *Registry) Resolve(ctx context.Context, fd engine.FeatureDescriptor, inputs engine.InputBag) (*Active, error) {
	descriptors := r.Descriptors()

	shortfall := engine.NewError(engine.ErrorKindMissingRequiredInput,
		"required components lack inputs", nil)
	for _, d := range descriptors {
		if !d.IsRequired(fd) {
			continue
		}
		if missing := d.MissingInputs(inputs); len(missing) > 0 {
			shortfall.WithMissing(d.Key(), missing)
		}
	}
	if len(shortfall.Missing) > 0 {
		r.logger.Error().
			Str("feature_descriptor", fd.String()).
			Interface("missing", shortfall.Missing).
			Msg("resolution failed")
		r.observer.ResolveFinished(ctx, fd, nil, nil, shortfall)
		return nil, shortfall
	}

	var selected []*component.Descriptor
	var skipped []Skip
	for _, d := range descriptors {
		if d.IsRequired(fd) {
			selected = append(selected, d)
			continue
		}
		if !d.IsEligible(fd) {
			continue
		}
		if missing := d.MissingInputs(inputs); len(missing) > 0 {
			r.logger.Info().
				Str("component", d.Key()).
				Strs("missing", missing).
				Msg("skipping optional component")
			skipped = append(skipped, Skip{Component: d.Key(), Missing: missing})
			continue
		}
		selected = append(selected, d)
	}

	active := newActive()
	active.Skipped = skipped
	for _, d := range selected {
		inst, err := d.New(inputs.Subset(d.InputNames()))
		if err != nil {
			r.logger.Error().Err(err).Str("component", d.Key()).Msg("component rejected its inputs")
			r.observer.ResolveFinished(ctx, fd, nil, skipNames(skipped), err)
			return nil, err
		}
		active.add(inst)
	}

	r.logger.Info().
		Str("feature_descriptor", fd.String()).
		Strs("active", active.Names()).
		Int("skipped", len(skipped)).
		Msg("resolution complete")
	r.observer.ResolveFinished(ctx, fd, active.Names(), skipNames(skipped), nil)
	return active, nil
}

// Apply configures every active component in order and, once all succeed,
// writes the manifest to manifestSink. A failure stops the sequence
// immediately; sink writes of components already configured are kept.
func (r *Registry) Apply(ctx context.Context, active *Active, manifestSink io.Writer) (*engine.Manifest, error) {
	m := engine.NewManifest()
	if active == nil {
		active = newActive()
	}

	for _, name := range active.Names() {
		inst := active.Get(name)
		start := time.Now()
		err := inst.Configure(ctx, r.env)
		r.observer.ComponentApplied(ctx, name, time.Since(start), err)
		if err != nil {
			r.logger.Error().Err(err).Str("component", name).Msg("configure failed")
			wrapped := fmt.Errorf("failed to configure %s: %w", name, err)
			r.observer.ApplyFinished(ctx, m, wrapped)
			return nil, wrapped
		}
		m.Add(inst.Serialize())
		r.logger.Debug().Str("component", name).Msg("component configured")
	}

	if manifestSink != nil {
		if err := manifest.Encode(manifestSink, m); err != nil {
			wrapped := engine.NewError(engine.ErrorKindSinkFailure, "failed to write manifest", err)
			r.observer.ApplyFinished(ctx, m, wrapped)
			return nil, wrapped
		}
	}

	r.logger.Info().Int("components", m.Len()).Msg("apply complete")
	r.observer.ApplyFinished(ctx, m, nil)
	return m, nil
}

// InspectAll rebuilds instances for every required or eligible component by
// reading their sinks. Components whose text sinks have no entry are skipped.
// Registry variables always hold a value, so an optional component is only
// inspected when at least one of its outputs lives in a text sink.
func (r *Registry) InspectAll(ctx context.Context, fd engine.FeatureDescriptor) (*Active, error) {
	active := newActive()
	for _, d := range r.Descriptors() {
		required := d.IsRequired(fd)
		if !required && !d.IsEligible(fd) {
			continue
		}
		if !required && !d.HasTextOutput() {
			r.logger.Debug().Str("component", d.Key()).Msg("no text sink output, skipping")
			active.Skipped = append(active.Skipped, Skip{Component: d.Key(), Reason: "no text sink output records the component"})
			continue
		}
		inst, err := d.Inspect(ctx, r.env)
		if err != nil {
			if engine.IsKind(err, engine.ErrorKindSinkReadNotFound) {
				r.logger.Info().Str("component", d.Key()).Msg("no sink entries, skipping")
				active.Skipped = append(active.Skipped, Skip{Component: d.Key(), Reason: err.Error()})
				continue
			}
			return nil, fmt.Errorf("failed to inspect %s: %w", d.Key(), err)
		}
		active.add(inst)
	}
	return active, nil
}

// Restore deserializes every manifest entry using the registered
// descriptors.
func (r *Registry) Restore(m *engine.Manifest) (*Active, error) {
	active := newActive()
	for _, entry := range m.Entries() {
		d, err := r.Lookup(entry.Name)
		if err != nil {
			return nil, err
		}
		inst, err := component.Deserialize(d, entry)
		if err != nil {
			return nil, err
		}
		active.add(inst)
	}
	return active, nil
}

func skipNames(skips []Skip) []string {
	names := make([]string, len(skips))
	for i, s := range skips {
		names[i] = s.Component
	}
	return names
}
