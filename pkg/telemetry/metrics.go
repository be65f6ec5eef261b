package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caseforge/caseforge/pkg/engine"
)

// Metrics provides Prometheus metrics for resolution and apply. It implements
// engine.ApplyObserver.
type Metrics struct {
	config MetricsConfig

	resolutions       *prometheus.CounterVec
	activeComponents  prometheus.Gauge
	skippedComponents *prometheus.CounterVec

	componentApplies  *prometheus.CounterVec
	componentDuration *prometheus.HistogramVec

	applies         *prometheus.CounterVec
	manifestEntries prometheus.Gauge

	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ engine.ApplyObserver = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of resolutions by outcome",
			},
			[]string{"outcome"},
		),
		activeComponents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_components",
				Help:      "Number of components activated by the last resolution",
			},
		),
		skippedComponents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_components_total",
				Help:      "Optional components skipped for missing inputs",
			},
			[]string{"component"},
		),

		componentApplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "component_configures_total",
				Help:      "Total number of component configure attempts",
			},
			[]string{"component", "outcome"},
		),
		componentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "component_configure_duration_seconds",
				Help:      "Duration of component configure in seconds",
				Buckets:   buckets,
			},
			[]string{"component"},
		),

		applies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_total",
				Help:      "Total number of apply runs by outcome",
			},
			[]string{"outcome"},
		),
		manifestEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "manifest_entries",
				Help:      "Entries recorded by the last apply",
			},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by classification",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.resolutions,
		m.activeComponents,
		m.skippedComponents,
		m.componentApplies,
		m.componentDuration,
		m.applies,
		m.manifestEntries,
		m.errorsByKind,
	)

	return m, nil
}

// outcome labels a callback's error: "ok", or the error kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := engine.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// ResolveFinished implements engine.ApplyObserver.
func (m *Metrics) ResolveFinished(_ context.Context, _ engine.FeatureDescriptor, active, skipped []string, err error) {
	if m.registry == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome(err)).Inc()
	m.activeComponents.Set(float64(len(active)))
	for _, name := range skipped {
		m.skippedComponents.WithLabelValues(name).Inc()
	}
	m.recordError(err)
}

// ComponentApplied implements engine.ApplyObserver.
func (m *Metrics) ComponentApplied(_ context.Context, component string, duration time.Duration, err error) {
	if m.registry == nil {
		return
	}
	m.componentApplies.WithLabelValues(component, outcome(err)).Inc()
	m.componentDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// ApplyFinished implements engine.ApplyObserver.
func (m *Metrics) ApplyFinished(_ context.Context, manifest *engine.Manifest, err error) {
	if m.registry == nil {
		return
	}
	m.applies.WithLabelValues(outcome(err)).Inc()
	m.manifestEntries.Set(float64(manifest.Len()))
	m.recordError(err)
}

func (m *Metrics) recordError(err error) {
	if err == nil {
		return
	}
	m.errorsByKind.WithLabelValues(outcome(err)).Inc()
}

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the gathered metrics to the configured textfile.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
