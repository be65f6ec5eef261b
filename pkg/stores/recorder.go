package stores

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/manifest"
)

// RunRecorder writes one run's history as registry callbacks arrive. It
// implements engine.ApplyObserver. Storage failures never abort the run;
// they are logged and reported by Err.
type RunRecorder struct {
	store  Store
	logger zerolog.Logger

	mu       sync.Mutex
	run      *Run
	active   []string
	seen     map[string]bool
	position int
	hold     bool
	err      error
}

var _ engine.ApplyObserver = (*RunRecorder)(nil)

// RunInfo identifies a run before it starts.
type RunInfo struct {
	Operation         string
	FeatureDescriptor engine.FeatureDescriptor
	CaseDir           string
}

// BeginRun creates a running run record and returns its recorder.
func BeginRun(ctx context.Context, store Store, logger zerolog.Logger, info RunInfo) (*RunRecorder, error) {
	run := &Run{
		ID:                uuid.NewString(),
		Operation:         info.Operation,
		FeatureDescriptor: info.FeatureDescriptor.String(),
		CaseDir:           info.CaseDir,
		Status:            engine.RunStatusRunning,
		StartedAt:         time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	return &RunRecorder{
		store:  store,
		logger: logger.With().Str("run_id", run.ID).Logger(),
		run:    run,
		seen:   make(map[string]bool),
	}, nil
}

// ID returns the run id.
func (r *RunRecorder) ID() string {
	return r.run.ID
}

// Run returns a copy of the run record as last written.
func (r *RunRecorder) Run() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.run
}

// Err returns the first storage error, if any.
func (r *RunRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ResolveFinished implements engine.ApplyObserver. Skipped components are
// recorded immediately; a failed resolution finishes the run.
func (r *RunRecorder) ResolveFinished(ctx context.Context, _ engine.FeatureDescriptor, active, skipped []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = append([]string(nil), active...)
	for _, name := range skipped {
		r.record(ctx, name, engine.OutcomeSkipped, 0, nil)
	}
	if err != nil {
		r.finish(ctx, engine.RunStatusFailed, nil, err)
	}
}

// ComponentApplied implements engine.ApplyObserver.
func (r *RunRecorder) ComponentApplied(ctx context.Context, component string, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := engine.OutcomeConfigured
	if err != nil {
		outcome = engine.OutcomeFailed
	}
	r.record(ctx, component, outcome, duration, err)
}

// ApplyFinished implements engine.ApplyObserver. Components never reached
// are recorded as not attempted. A successful run stores the manifest and
// its digest.
func (r *RunRecorder) ApplyFinished(ctx context.Context, m *engine.Manifest, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		for _, name := range r.active {
			if !r.seen[name] {
				r.record(ctx, name, engine.OutcomeNotAttempted, 0, nil)
			}
		}
		r.finish(ctx, engine.RunStatusFailed, nil, err)
		return
	}
	if r.hold {
		return
	}
	r.finish(ctx, engine.RunStatusSucceeded, m, nil)
}

// HoldSuccess keeps a successful apply running until Complete is called, for
// callers that still have work the run's outcome depends on. Failures still
// finish the run immediately.
func (r *RunRecorder) HoldSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hold = true
}

// Deny finishes the run as denied by the policy gate.
func (r *RunRecorder) Deny(ctx context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.active {
		if !r.seen[name] {
			r.record(ctx, name, engine.OutcomeNotAttempted, 0, nil)
		}
	}
	r.finish(ctx, engine.RunStatusDenied, nil, err)
}

// Complete finishes a run that resolved without applying, such as a resolve
// or inspect invocation, or an apply held by HoldSuccess. It is a no-op once
// the run is finished.
func (r *RunRecorder) Complete(ctx context.Context, m *engine.Manifest, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.finish(ctx, engine.RunStatusFailed, nil, err)
		return
	}
	r.finish(ctx, engine.RunStatusSucceeded, m, nil)
}

func (r *RunRecorder) record(ctx context.Context, component string, outcome engine.Outcome, duration time.Duration, err error) {
	r.seen[component] = true
	o := &ComponentOutcome{
		RunID:     r.run.ID,
		Component: component,
		Position:  r.position,
		Outcome:   outcome,
		Duration:  duration,
		Error:     errString(err),
	}
	r.position++
	r.fail(r.store.RecordOutcome(ctx, o))
}

func (r *RunRecorder) finish(ctx context.Context, status engine.RunStatus, m *engine.Manifest, err error) {
	if r.run.Status.IsTerminal() {
		return
	}
	r.run.Status = status
	r.run.Error = errString(err)
	if kind := engine.KindOf(err); kind != "" {
		k := string(kind)
		r.run.ErrorKind = &k
	}

	if m != nil {
		var buf bytes.Buffer
		if encErr := manifest.Encode(&buf, m); encErr != nil {
			r.fail(encErr)
		} else {
			text := buf.String()
			r.run.Manifest = &text
		}
		if digest, digErr := manifest.Digest(m); digErr != nil {
			r.fail(digErr)
		} else {
			r.run.ManifestDigest = &digest
		}
	}

	r.fail(r.store.FinishRun(ctx, r.run))
	r.logger.Debug().Str("status", string(status)).Msg("run recorded")
}

func (r *RunRecorder) fail(err error) {
	if err == nil {
		return
	}
	r.logger.Warn().Err(err).Msg("failed to record run history")
	if r.err == nil {
		r.err = err
	}
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
