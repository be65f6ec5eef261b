package telemetry

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/caseforge/caseforge/pkg/engine"
)

// Telemetry bundles the logger, tracer and metrics built from one Config.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Observer returns the registry observer feeding metrics and spans.
func (t *Telemetry) Observer() engine.ApplyObserver {
	return engine.Observers{t.Metrics, t.Tracer}
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, or
// nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes spans, writes the metrics textfile and closes the log.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Tracer.Shutdown(ctx),
		t.Metrics.WriteTextfile(),
		t.Logger.Close(),
	)
}

// Operation is a traced CLI operation with a logger carrying its trace id.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger zerolog.Logger
}

// StartOperation begins an instrumented operation. Without telemetry in ctx
// the span is a no-op.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *Operation {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		logger := FromContext(ctx).Zerolog()
		return &Operation{Ctx: ctx, Span: trace.SpanFromContext(ctx), Logger: logger}
	}

	spanCtx, span := tel.Tracer.Start(ctx, operation, attrs...)
	logger := tel.Logger.Zerolog().With().Str("operation", operation).Logger()
	if span.SpanContext().IsValid() {
		logger = logger.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
	}
	return &Operation{Ctx: spanCtx, Span: span, Logger: logger}
}

// End finishes the operation, recording success or failure.
func (o *Operation) End(err error) {
	finish(o.Span, err)
	o.Span.End()
}
