// Package telemetry installs the OpenTelemetry tracer and meter providers.
//
// Instrumented packages resolve tracers and meters through the otel
// globals, so they work unchanged whether telemetry is enabled or not.
// New sets those globals to OTLP exporters (gRPC or HTTP) when the
// telemetry section of the config enables them:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: "grpc"
//	  insecure: true
//	  sampling_rate: 0.25
//
// A failing exporter degrades the instance (see Health) instead of
// failing startup. Tests install in-memory providers with TestTelemetry.
package telemetry
