// Package prometheus renders the engine's counters in Prometheus text
// exposition format. Counter names are shopauth_*_total; the one histogram
// is shopauth_validate_latency_seconds.
//
// Nothing is registered globally; callers mount [Exporter.Handler].
package prometheus
