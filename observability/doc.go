// Package observability provides OpenTelemetry tracing and metrics for task
// execution.
//
// Tracing and metrics export over OTLP/HTTP once a provider is installed:
//
//	p, err := observability.Setup(ctx, cfg, "nwave", version.GetVersion())
//	defer p.Shutdown(ctx)
//
// Without Setup, the global no-op providers are used and every recording
// call is cheap.
//
// Task instruments:
//
//	metrics, err := observability.NewMetrics(observability.Meter(observability.MeterName))
//	metrics.RecordTaskStart(ctx)
//	metrics.RecordTaskEnd(ctx, "completed", elapsed)
package observability
