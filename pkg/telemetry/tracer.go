package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/caseforge/caseforge/pkg/engine"
)

// Common attribute keys for caseforge tracing.
var (
	AttrFeatureDescriptor = attribute.Key("caseforge.feature_descriptor")
	AttrComponent         = attribute.Key("caseforge.component")
	AttrActive            = attribute.Key("caseforge.active")
	AttrSkipped           = attribute.Key("caseforge.skipped")
	AttrManifestEntries   = attribute.Key("caseforge.manifest.entries")
	AttrErrorKind         = attribute.Key("error.kind")
	AttrRunID             = attribute.Key("run.id")
)

// Tracer wraps the OpenTelemetry tracer. It implements engine.ApplyObserver by
// emitting one span per resolution and per component configure.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TracingConfig
}

var _ engine.ApplyObserver = (*Tracer)(nil)

// NewTracer creates a new tracer with the given configuration.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion, environment string) (*Tracer, error) {
	if !cfg.Enabled {
		// Return a tracer with no-op provider
		return &Tracer{
			provider: sdktrace.NewTracerProvider(),
			tracer:   otel.Tracer(serviceName),
			config:   cfg,
		}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exporter, err = createOTLPExporter(cfg)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	case "none":
		// No exporter - traces are generated but not exported
		exporter = nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(
			exporter,
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
		))
	}

	provider := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return NewTracerWithProvider(provider, serviceName, cfg), nil
}

// NewTracerWithProvider wraps an existing provider. Tests use it with a span
// recorder.
func NewTracerWithProvider(provider *sdktrace.TracerProvider, name string, cfg TracingConfig) *Tracer {
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(name),
		config:   cfg,
	}
}

func createOTLPExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent("caseforge")),
	}

	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	return otlptracegrpc.New(context.Background(), opts...)
}

// Start begins a new span with the given name.
func (t *Tracer) Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// ResolveFinished implements engine.ApplyObserver.
func (t *Tracer) ResolveFinished(ctx context.Context, fd engine.FeatureDescriptor, active, skipped []string, err error) {
	_, span := t.tracer.Start(ctx, "registry.resolve", trace.WithAttributes(
		AttrFeatureDescriptor.String(string(fd)),
		AttrActive.StringSlice(active),
		AttrSkipped.StringSlice(skipped),
	))
	finish(span, err)
	span.End()
}

// ComponentApplied implements engine.ApplyObserver. The span is backdated by
// duration so it covers the configure call.
func (t *Tracer) ComponentApplied(ctx context.Context, component string, duration time.Duration, err error) {
	end := time.Now()
	_, span := t.tracer.Start(ctx, "component.configure",
		trace.WithTimestamp(end.Add(-duration)),
		trace.WithAttributes(AttrComponent.String(component)),
	)
	finish(span, err)
	span.End(trace.WithTimestamp(end))
}

// ApplyFinished implements engine.ApplyObserver. It annotates the caller's
// span, if any.
func (t *Tracer) ApplyFinished(ctx context.Context, manifest *engine.Manifest, err error) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("manifest.flushed", trace.WithAttributes(
		AttrManifestEntries.Int(manifest.Len()),
		attribute.String("caseforge.manifest.names", strings.Join(manifest.Names(), ",")),
	))
	finish(span, err)
}

func finish(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	if kind := engine.KindOf(err); kind != "" {
		span.SetAttributes(AttrErrorKind.String(string(kind)))
	}
	span.SetStatus(codes.Error, err.Error())
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	finish(span, err)
}

// Shutdown gracefully shuts down the tracer, flushing any pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ForceFlush forces all pending spans to be exported immediately.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// TraceID returns the trace ID of the current span in the context.
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
