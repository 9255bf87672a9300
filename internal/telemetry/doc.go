// Package telemetry sets up OpenTelemetry tracing and metrics for ragdocs.
//
// Telemetry is disabled by default. When enabled, spans and metrics are
// exported over OTLP (HTTP/protobuf by default, gRPC on request) and the
// providers are installed as the otel globals, which is where the vector
// store spans and the MCP tool metrics are recorded.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Exporter failures never stop the server; the instance is marked degraded
// and falls back to the global no-op providers.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
