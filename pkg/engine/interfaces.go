package engine

import (
	"context"
	"time"
)

// ApplyObserver receives lifecycle callbacks from the registry. Implementations
// record metrics, spans or run history; none of them may alter the outcome.
type ApplyObserver interface {
	// ResolveFinished is called once per Resolve with the active component
	// names, the optional components that were skipped and the error, if any.
	ResolveFinished(ctx context.Context, fd FeatureDescriptor, active, skipped []string, err error)

	// ComponentApplied is called after each Configure attempt.
	ComponentApplied(ctx context.Context, component string, duration time.Duration, err error)

	// ApplyFinished is called once per Apply with the manifest built so far.
	ApplyFinished(ctx context.Context, manifest *Manifest, err error)
}

// NopObserver implements ApplyObserver and discards every callback.
type NopObserver struct{}

// ResolveFinished implements ApplyObserver.
func (NopObserver) ResolveFinished(context.Context, FeatureDescriptor, []string, []string, error) {}

// ComponentApplied implements ApplyObserver.
func (NopObserver) ComponentApplied(context.Context, string, time.Duration, error) {}

// ApplyFinished implements ApplyObserver.
func (NopObserver) ApplyFinished(context.Context, *Manifest, error) {}

// Observers fans callbacks out to several observers in order.
type Observers []ApplyObserver

// ResolveFinished implements ApplyObserver.
func (o Observers) ResolveFinished(ctx context.Context, fd FeatureDescriptor, active, skipped []string, err error) {
	for _, obs := range o {
		obs.ResolveFinished(ctx, fd, active, skipped, err)
	}
}

// ComponentApplied implements ApplyObserver.
func (o Observers) ComponentApplied(ctx context.Context, component string, duration time.Duration, err error) {
	for _, obs := range o {
		obs.ComponentApplied(ctx, component, duration, err)
	}
}

// ApplyFinished implements ApplyObserver.
func (o Observers) ApplyFinished(ctx context.Context, manifest *Manifest, err error) {
	for _, obs := range o {
		obs.ApplyFinished(ctx, manifest, err)
	}
}
