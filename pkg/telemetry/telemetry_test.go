package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/caseforge/caseforge/pkg/engine"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(*Config){
		"no service": func(c *Config) { c.ServiceName = "" },
		"bad level":  func(c *Config) { c.Logging.Level = "loud" },
		"bad format": func(c *Config) { c.Logging.Format = "xml" },
		"bad exporter": func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		},
		"otlp without endpoint": func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		},
		"sampling rate":     func(c *Config) { c.Tracing.SamplingRate = 2 },
		"textfile suffix":   func(c *Config) { c.Metrics.TextfilePath = "/var/lib/node_exporter/caseforge.txt" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LoggingConfig{Level: "info", Format: "json"})

	zl := logger.Component("registry")
	zl.Debug().Msg("hidden")
	zl.Info().Str("component", "tides").Msg("component registered")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"subsystem":"registry"`)
	assert.Contains(t, out, `"component":"tides"`)
	assert.NoError(t, logger.Close())
}

func TestLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caseforge.log")
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	zl := logger.Zerolog()
	zl.Debug().Msg("to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestLogger_Context(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LoggingConfig{Level: "info", Format: "json"})
	ctx := logger.WithContext(context.Background())
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", ParseLevel("debug").String())
	assert.Equal(t, "info", ParseLevel("nonsense").String())
}

func TestMetrics_Observer(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "caseforge"})
	require.NoError(t, err)
	ctx := context.Background()

	m.ResolveFinished(ctx, "MOM6", []string{"case_check", "tides"}, []string{"runoff"}, nil)
	missing := engine.NewError(engine.ErrorKindMissingRequiredInput, "missing", nil)
	m.ResolveFinished(ctx, "MOM6", nil, nil, missing)

	m.ComponentApplied(ctx, "tides", 20*time.Millisecond, nil)
	m.ComponentApplied(ctx, "bgc", time.Millisecond, errors.New("boom"))

	manifest := engine.NewManifest()
	manifest.Add(engine.ManifestEntry{Name: "tides"})
	m.ApplyFinished(ctx, manifest, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("missing_required_input")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeComponents), "gauge tracks the last resolution")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedComponents.WithLabelValues("runoff")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.componentApplies.WithLabelValues("tides", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.componentApplies.WithLabelValues("bgc", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.applies.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.manifestEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsByKind.WithLabelValues("missing_required_input")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "caseforge_component_configure_duration_seconds")
}

func TestMetrics_Textfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caseforge.prom")
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "caseforge", TextfilePath: path})
	require.NoError(t, err)

	m.ApplyFinished(context.Background(), engine.NewManifest(), nil)
	require.NoError(t, m.WriteTextfile())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `caseforge_applies_total{outcome="ok"} 1`))
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	require.NoError(t, err)
	assert.Nil(t, m.Registry())

	m.ResolveFinished(context.Background(), "", nil, nil, nil)
	m.ComponentApplied(context.Background(), "x", 0, nil)
	m.ApplyFinished(context.Background(), engine.NewManifest(), nil)
	assert.NoError(t, m.WriteTextfile())
}

func TestTracer_Observer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerWithProvider(provider, "caseforge-test", TracingConfig{Enabled: true})

	ctx, root := tracer.Start(context.Background(), "apply")
	tracer.ResolveFinished(ctx, "MOM6", []string{"tides"}, nil, nil)
	tracer.ComponentApplied(ctx, "tides", 50*time.Millisecond, nil)
	fail := engine.NewError(engine.ErrorKindSinkFailure, "xmlchange failed", nil)
	tracer.ComponentApplied(ctx, "bgc", time.Millisecond, fail)
	tracer.ApplyFinished(ctx, engine.NewManifest(), fail)
	root.End()

	spans := recorder.Ended()
	require.Len(t, spans, 4)

	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = append(byName[s.Name()], s)
	}
	require.Len(t, byName["component.configure"], 2)
	configured := byName["component.configure"][0]
	assert.GreaterOrEqual(t, configured.EndTime().Sub(configured.StartTime()), 50*time.Millisecond)
	assert.Equal(t, root.SpanContext().SpanID(), configured.Parent().SpanID())

	failed := byName["component.configure"][1]
	assert.Equal(t, codes.Error, failed.Status().Code)

	apply := byName["apply"][0]
	assert.Equal(t, codes.Error, apply.Status().Code)
	require.Len(t, apply.Events(), 2, "manifest event plus the recorded error")
	assert.Equal(t, "manifest.flushed", apply.Events()[0].Name)

	require.NoError(t, tracer.Shutdown(context.Background()))
}

func TestStartOperation(t *testing.T) {
	op := StartOperation(context.Background(), "inspect")
	op.End(errors.New("ignored"))

	cfg := DefaultConfig()
	cfg.Logging.Output = filepath.Join(t.TempDir(), "log")
	tel, err := NewTelemetry(cfg)
	require.NoError(t, err)
	ctx := tel.WithContext(context.Background())
	assert.Same(t, tel, FromTelemetryContext(ctx))

	op = StartOperation(ctx, "apply")
	assert.NotNil(t, op.Ctx)
	op.End(nil)
	assert.NoError(t, tel.Shutdown(context.Background()))
}
