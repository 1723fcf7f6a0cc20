// Package observability provides OpenTelemetry tracing, trace header propagation and Prometheus
// metrics for notification handling.
package observability
