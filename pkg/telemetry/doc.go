// Package telemetry provides logging, tracing and metrics for caseforge.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus). Tracer and Metrics both implement
// engine.ApplyObserver, so the registry reports resolution and apply progress
// to them without importing this package.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	reg := registry.New(
//	    registry.WithLogger(tel.Logger.Component("registry")),
//	    registry.WithObserver(tel.Observer()),
//	)
//
// # Metrics
//
// A CLI run ends before any scraper arrives, so metrics are gathered in a
// private registry and written to MetricsConfig.TextfilePath on Shutdown, in
// the format node_exporter's textfile collector reads. Exposed series:
//
//   - caseforge_resolutions_total{outcome}
//   - caseforge_active_components
//   - caseforge_skipped_components_total{component}
//   - caseforge_component_configures_total{component,outcome}
//   - caseforge_component_configure_duration_seconds{component}
//   - caseforge_applies_total{outcome}
//   - caseforge_manifest_entries
//   - caseforge_errors_by_kind_total{kind}
//
// outcome is "ok" or the engine error kind.
//
// # Tracing
//
// Exporters: otlp (gRPC), stdout (pretty JSON on stderr) and none. Spans:
// registry.resolve and component.configure, the latter backdated to cover the
// configure call. ApplyFinished annotates the caller's span.
package telemetry
