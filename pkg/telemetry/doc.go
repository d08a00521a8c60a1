// Package telemetry wires OpenTelemetry tracing for meterd.
//
// Setup exports spans over OTLP/gRPC when OTEL_EXPORTER_OTLP_ENDPOINT is set. Middleware wraps
// the HTTP router so each request gets a server span, and quota decisions add child spans.
// LogAttr correlates slog records with the active trace.
package telemetry
