// Package otel publishes the engine's counters as OpenTelemetry observable
// instruments. One callback reads the engine snapshot per collection.
//
// New registers on a caller-owned Meter. NewLogPipeline owns its own
// MeterProvider and pushes each periodic collection into a zap logger.
package otel
